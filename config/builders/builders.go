// Package builders 注册内置 Node 类型，供 YAML 配置驱动的推荐流程使用。
//
//	pipeline:
//	  name: embedding-similarity
//	  nodes:
//	    - type: recall.sample
//	      config: {pool_size: 1000}
//	    - type: filter.judged
//	    - type: rank.similarity
//	      config: {boost_weight: 0.1}
//	    - type: filter.expr
//	      config: {expr: "item.features.similarity > 0.2"}
//	    - type: rerank.diversity
//	      config: {max_per_category: 3}
//	    - type: rerank.topn
package builders

import (
	"fmt"

	"github.com/rushteam/embedrec/config"
	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/filter"
	"github.com/rushteam/embedrec/pipeline"
	"github.com/rushteam/embedrec/pkg/conv"
	"github.com/rushteam/embedrec/rank"
	"github.com/rushteam/embedrec/recall"
	"github.com/rushteam/embedrec/rerank"
)

func init() {
	config.Register("recall.sample", BuildSampleNode)
	config.Register("filter", BuildFilterNode)
	config.Register("filter.judged", BuildJudgedFilterNode)
	config.Register("filter.expr", BuildExprFilterNode)
	config.Register("rank.similarity", BuildSimilarityNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("rerank.diversity", BuildDiversityNode)
}

func rankConfig(deps pipeline.Dependencies) core.RankConfig {
	if deps.Rank != nil {
		return deps.Rank
	}
	return &core.DefaultRankConfig{}
}

func BuildSampleNode(cfg map[string]any, deps pipeline.Dependencies) (pipeline.Node, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("recall.sample requires a catalog store")
	}
	return &recall.SamplePool{
		Catalog:  deps.Catalog,
		PoolSize: int(conv.ConfigGetInt64(cfg, "pool_size", 0)),
		Config:   rankConfig(deps),
	}, nil
}

func BuildSimilarityNode(cfg map[string]any, deps pipeline.Dependencies) (pipeline.Node, error) {
	weight := conv.ConfigGetFloat64(cfg, "boost_weight", rankConfig(deps).DefaultBoostWeight())
	if weight < 0 {
		return nil, fmt.Errorf("boost_weight must be >= 0, got %v", weight)
	}
	return &rank.SimilarityNode{BoostWeight: weight, Logger: deps.Logger}, nil
}

func BuildTopNNode(cfg map[string]any, _ pipeline.Dependencies) (pipeline.Node, error) {
	return &rerank.TopNNode{N: int(conv.ConfigGetInt64(cfg, "n", 0))}, nil
}

func BuildDiversityNode(cfg map[string]any, _ pipeline.Dependencies) (pipeline.Node, error) {
	limit := conv.ConfigGetInt64(cfg, "max_per_category", 0)
	if limit < 0 {
		return nil, fmt.Errorf("max_per_category must be >= 0, got %d", limit)
	}
	return &rerank.DiversityNode{MaxPerCategory: int(limit)}, nil
}

func BuildJudgedFilterNode(_ map[string]any, deps pipeline.Dependencies) (pipeline.Node, error) {
	return &filter.FilterNode{
		Filters: []filter.Filter{&filter.JudgedFilter{}, &filter.EmbeddingFilter{}},
		Logger:  deps.Logger,
	}, nil
}

func BuildExprFilterNode(cfg map[string]any, deps pipeline.Dependencies) (pipeline.Node, error) {
	f, err := buildExprFilter(cfg)
	if err != nil {
		return nil, err
	}
	return &filter.FilterNode{Filters: []filter.Filter{f}, Logger: deps.Logger}, nil
}

// BuildFilterNode 组合多个过滤器：
//
//	type: filter
//	config:
//	  filters:
//	    - {type: judged}
//	    - {type: blacklist, item_ids: [3, 5]}
//	    - {type: expr, expr: "item.score > 0.1"}
func BuildFilterNode(cfg map[string]any, deps pipeline.Dependencies) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]any)
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}

	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		switch filterType := conv.ConfigGet(filterMap, "type", ""); filterType {
		case "judged":
			filters = append(filters, &filter.JudgedFilter{})
		case "embedding":
			filters = append(filters, &filter.EmbeddingFilter{})
		case "blacklist":
			raw, _ := filterMap["item_ids"].([]any)
			ids := make([]int64, 0, len(raw))
			for _, v := range raw {
				if id, ok := conv.ToInt64(v); ok {
					ids = append(ids, id)
				}
			}
			filters = append(filters, filter.NewBlacklistFilter(ids))
		case "expr":
			f, err := buildExprFilter(filterMap)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		default:
			return nil, fmt.Errorf("unknown filter type: %s", filterType)
		}
	}
	return &filter.FilterNode{Filters: filters, Logger: deps.Logger}, nil
}

func buildExprFilter(cfg map[string]any) (*filter.ExprFilter, error) {
	expr := conv.ConfigGet(cfg, "expr", "")
	if expr == "" {
		return nil, fmt.Errorf("expr not found")
	}
	f, err := filter.NewExprFilter(expr)
	if err != nil {
		return nil, fmt.Errorf("expr %q: %w", expr, err)
	}
	return f, nil
}

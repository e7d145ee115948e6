package config

import (
	"fmt"

	"github.com/rushteam/embedrec/pipeline"
)

// DefaultPipelineConfig 返回内置的推荐流程：
//
//	recall.sample → filter.judged → rank.similarity → [filter.expr] → rerank.topn
//
// keepExpr 为空时不加入表达式过滤。
func DefaultPipelineConfig(rc RecommendConfig) *pipeline.Config {
	cfg := &pipeline.Config{}
	cfg.Pipeline.Name = "embedding-similarity"

	nodes := []pipeline.NodeConfig{
		{Type: "recall.sample", Config: map[string]any{"pool_size": rc.PoolSize}},
		{Type: "filter.judged"},
		{Type: "rank.similarity", Config: map[string]any{"boost_weight": rc.BoostWeight}},
	}
	if rc.KeepExpr != "" {
		nodes = append(nodes, pipeline.NodeConfig{Type: "filter.expr", Config: map[string]any{"expr": rc.KeepExpr}})
	}
	nodes = append(nodes, pipeline.NodeConfig{Type: "rerank.topn"})

	cfg.Pipeline.Nodes = nodes
	return cfg
}

// LoadPipeline 加载推荐流程：配置了 PipelineFile 时从 YAML 读取，否则使用内置流程。
func LoadPipeline(rc RecommendConfig, deps pipeline.Dependencies) (*pipeline.Pipeline, error) {
	cfg := DefaultPipelineConfig(rc)
	if rc.PipelineFile != "" {
		loaded, err := pipeline.LoadFromYAML(rc.PipelineFile)
		if err != nil {
			return nil, fmt.Errorf("load pipeline %s: %w", rc.PipelineFile, err)
		}
		cfg = loaded
	}
	if err := ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}
	return cfg.BuildPipeline(DefaultFactory(deps))
}

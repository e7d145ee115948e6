// Package recommend 对外提供推荐入口：构建用户画像，运行排序流程，返回一页推荐结果。
package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/config"
	_ "github.com/rushteam/embedrec/config/builders" // 注册内置 Node
	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/metrics"
	"github.com/rushteam/embedrec/pipeline"
	"github.com/rushteam/embedrec/profile"
	"github.com/rushteam/embedrec/rank"
)

// Recommendation 是结果中的一项。
type Recommendation struct {
	ItemID        int64   `json:"itemId"`
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	Similarity    float64 `json:"similarity"`
	CategoryBoost float64 `json:"categoryBoost"`
	CategoryIDs   []int64 `json:"categoryIds"`
}

// Result 是一页推荐结果，按 Score 降序（同分按 ItemID 升序）。
type Result struct {
	UserID int64            `json:"userId"`
	Items  []Recommendation `json:"items"`
}

// Options 是 Ranker 的依赖与参数。
type Options struct {
	Catalog     core.CatalogStore
	Reviews     core.ReviewStore
	Preferences core.PreferenceStore

	// Vectors 为 nil 时创建一个不带共享存储的缓存
	Vectors *profile.ItemVectorCache

	// Config 为 nil 时使用 config.Default().Recommend
	Config *config.RecommendConfig

	// Pipeline 为 nil 时按 Config 构建（内置流程或 PipelineFile）
	Pipeline *pipeline.Pipeline

	Logger zerolog.Logger
}

// Ranker 是推荐入口，无状态，可并发调用。
type Ranker struct {
	preferences core.PreferenceStore
	users       *profile.UserProfiles
	vectors     *profile.ItemVectorCache
	pipeline    *pipeline.Pipeline
	rank        core.RankConfig
	logger      zerolog.Logger
}

func NewRanker(opts Options) (*Ranker, error) {
	if opts.Catalog == nil || opts.Reviews == nil || opts.Preferences == nil {
		return nil, fmt.Errorf("recommend: catalog, reviews and preferences are required")
	}
	rc := config.Default().Recommend
	if opts.Config != nil {
		rc = *opts.Config
	}
	rankCfg := rc.RankConfig()

	vectors := opts.Vectors
	if vectors == nil {
		vectors = profile.NewItemVectorCache(opts.Catalog, nil, 0, opts.Logger)
	}

	p := opts.Pipeline
	if p == nil {
		var err error
		p, err = config.LoadPipeline(rc, pipeline.Dependencies{
			Catalog: opts.Catalog,
			Rank:    rankCfg,
			Logger:  opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("recommend: %w", err)
		}
	}

	return &Ranker{
		preferences: opts.Preferences,
		users:       profile.NewUserProfiles(opts.Reviews, vectors, opts.Logger),
		vectors:     vectors,
		pipeline:    p,
		rank:        rankCfg,
		logger:      opts.Logger,
	}, nil
}

// PageSize 规范化页大小：<= 0 使用默认值，超过上限时截断。
func (r *Ranker) PageSize(n int) int {
	if n <= 0 {
		return r.rank.DefaultPageSize()
	}
	if limit := r.rank.MaxPageSize(); limit > 0 && n > limit {
		return limit
	}
	return n
}

// Rank 返回用户的一页推荐。
// 用户没有评价（或评价物品都没有向量）时返回空结果而不是错误。
func (r *Ranker) Rank(ctx context.Context, userID int64, pageSize int) (*Result, error) {
	start := time.Now()
	result := &Result{UserID: userID, Items: []Recommendation{}}
	defer func() { metrics.ObserveRecommend(start, len(result.Items)) }()

	log := r.logger.With().Int64("user_id", userID).Logger()
	scope := r.vectors.Scope()

	up, err := r.users.BuildWithScope(ctx, userID, scope)
	if err != nil {
		if core.IsNoJudgments(err) {
			log.Debug().Msg("no usable judgments, returning empty page")
			metrics.RecommendEmpty.WithLabelValues("no_judgments").Inc()
			return result, nil
		}
		return nil, fmt.Errorf("build user profile: %w", err)
	}

	preferred, err := r.preferences.PreferredCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load preferred categories: %w", err)
	}
	prefSet := make(map[int64]struct{}, len(preferred))
	for _, id := range preferred {
		prefSet[id] = struct{}{}
	}

	rctx := &core.RecommendContext{
		UserID:    userID,
		PageSize:  r.PageSize(pageSize),
		Profile:   up.Vector,
		Judged:    up.Judged,
		Preferred: prefSet,
		Vectors:   scope,
		Params:    map[string]any{},
	}

	items, err := r.pipeline.Run(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}
	items = r.finalize(rctx, items)

	for _, it := range items {
		rec := Recommendation{
			ItemID:        it.ID,
			Score:         it.Score,
			Similarity:    it.Features[rank.FeatureSimilarity],
			CategoryBoost: it.Features[rank.FeatureCategoryBoost],
			CategoryIDs:   append([]int64{}, it.CategoryIDs()...),
		}
		if it.Catalog != nil {
			rec.Name = it.Catalog.Name
		}
		result.Items = append(result.Items, rec)
	}
	if len(result.Items) == 0 {
		metrics.RecommendEmpty.WithLabelValues("no_candidates").Inc()
	}

	log.Debug().
		Int("judgments_used", up.Used).
		Int("preferred", len(prefSet)).
		Int("page_size", rctx.PageSize).
		Int("returned", len(result.Items)).
		Msg("recommendation ranked")
	return result, nil
}

// finalize 保证结果页的约束与流程配置无关：剔除已评价物品，
// 按 rank.Less 排序，截断到页大小。自定义流程可能缺少过滤、排序或截断节点。
func (r *Ranker) finalize(rctx *core.RecommendContext, items []*core.Item) []*core.Item {
	out := items[:0]
	for _, it := range items {
		if rctx.HasJudged(it.ID) {
			r.logger.Warn().Int64("user_id", rctx.UserID).Int64("item_id", it.ID).
				Msg("pipeline returned a judged item, dropped")
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return rank.Less(out[i], out[j]) })
	if len(out) > rctx.PageSize {
		out = out[:rctx.PageSize]
	}
	return out
}

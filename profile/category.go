package profile

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/metrics"
	"github.com/rushteam/embedrec/pkg/vecmath"
)

const kindCategory = "category"

// CategoryVectors 管理类目向量：读路径只查存储，Ensure 在缺失时调用外部 API 并写回。
// 一个类目向量一旦写入成功，就不会再被重新获取（除非存储中的值无法解码）。
type CategoryVectors struct {
	catalog  core.CatalogStore
	embedder core.Embedder
	workers  int
	logger   zerolog.Logger
}

// EnsureReport 是 EnsureAll 的统计结果。
type EnsureReport struct {
	Total   int `json:"total"`
	Cached  int `json:"cached"`
	Fetched int `json:"fetched"`
	Failed  int `json:"failed"`
}

// NewCategoryVectors 创建类目向量管理器。workers <= 0 时串行执行 EnsureAll。
func NewCategoryVectors(catalog core.CatalogStore, embedder core.Embedder, workers int, logger zerolog.Logger) *CategoryVectors {
	if workers <= 0 {
		workers = 1
	}
	return &CategoryVectors{
		catalog:  catalog,
		embedder: embedder,
		workers:  workers,
		logger:   logger,
	}
}

// Get 返回已存储的类目向量，不触发外部调用。
func (c *CategoryVectors) Get(ctx context.Context, categoryID int64) ([]float64, bool) {
	cat, err := c.catalog.GetCategory(ctx, categoryID)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			c.logger.Warn().Err(err).Int64("category_id", categoryID).Msg("load category failed")
		}
		return nil, false
	}
	return c.stored(cat)
}

// Ensure 返回类目向量；缺失时调用外部 API 获取并写回存储。
// 任何失败都只记录日志并返回 false，调用方把它视为“暂无向量”。
func (c *CategoryVectors) Ensure(ctx context.Context, categoryID int64) ([]float64, bool) {
	cat, err := c.catalog.GetCategory(ctx, categoryID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			c.logger.Warn().Int64("category_id", categoryID).Msg("category not found")
		} else {
			c.logger.Warn().Err(err).Int64("category_id", categoryID).Msg("load category failed")
		}
		metrics.BackfillUnits.WithLabelValues(kindCategory, "failed").Inc()
		return nil, false
	}
	vec, outcome := c.ensure(ctx, cat)
	metrics.BackfillUnits.WithLabelValues(kindCategory, outcome).Inc()
	return vec, vec != nil
}

// EnsureAll 对全部类目执行 Ensure，单个类目失败不影响其他类目。
// 只有列出类目失败时才返回错误。
func (c *CategoryVectors) EnsureAll(ctx context.Context) (EnsureReport, error) {
	cats, err := c.catalog.ListCategories(ctx)
	if err != nil {
		return EnsureReport{}, err
	}

	var cached, fetched, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for _, cat := range cats {
		g.Go(func() error {
			_, outcome := c.ensure(ctx, cat)
			metrics.BackfillUnits.WithLabelValues(kindCategory, outcome).Inc()
			switch outcome {
			case "cached":
				cached.Add(1)
			case "fetched":
				fetched.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := EnsureReport{
		Total:   len(cats),
		Cached:  int(cached.Load()),
		Fetched: int(fetched.Load()),
		Failed:  int(failed.Load()),
	}
	c.logger.Info().
		Int("total", report.Total).
		Int("cached", report.Cached).
		Int("fetched", report.Fetched).
		Int("failed", report.Failed).
		Msg("category embedding backfill finished")
	return report, nil
}

// ensure 返回向量与结果类别：cached / fetched / failed。
func (c *CategoryVectors) ensure(ctx context.Context, cat *core.Category) ([]float64, string) {
	if vec, ok := c.stored(cat); ok {
		return vec, "cached"
	}

	log := c.logger.With().Int64("category_id", cat.ID).Str("category", cat.Name).Logger()

	vec, err := c.embedder.Embed(ctx, cat.Name)
	if err != nil {
		log.Warn().Err(err).Str("embedder", c.embedder.Name()).Msg("embedding fetch failed, category left unembedded")
		return nil, "failed"
	}
	if len(vec) == 0 {
		log.Warn().Msg("embedder returned empty vector, category left unembedded")
		return nil, "failed"
	}

	data, err := vecmath.Encode(vec)
	if err != nil {
		log.Warn().Err(err).Msg("encode category embedding failed")
		return nil, "failed"
	}
	if err := c.catalog.SaveCategoryEmbedding(ctx, cat.ID, data); err != nil {
		log.Warn().Err(err).Msg("save category embedding failed")
		return nil, "failed"
	}

	log.Debug().Int("dim", len(vec)).Msg("category embedding stored")
	return vec, "fetched"
}

// stored 解码已存储的向量；无法解码时视为缺失。
func (c *CategoryVectors) stored(cat *core.Category) ([]float64, bool) {
	if !cat.HasEmbedding() {
		return nil, false
	}
	vec, err := vecmath.Decode(cat.Embedding)
	if err != nil {
		c.logger.Error().Err(err).Int64("category_id", cat.ID).Msg("malformed stored category embedding")
		return nil, false
	}
	return vec, true
}

package profile

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/metrics"
	"github.com/rushteam/embedrec/pkg/vecmath"
)

const kindItem = "item"

// ItemProfiles 计算并保存物品平均向量。重复执行是幂等的。
type ItemProfiles struct {
	catalog    core.CatalogStore
	categories *CategoryVectors
	cache      *ItemVectorCache
	batchSize  int
	workers    int
	logger     zerolog.Logger
}

// ItemOptions 是 ItemProfiles 的可选参数。
type ItemOptions struct {
	// BatchSize 是 ComputeAndStoreRange 在 batchSize <= 0 时使用的批大小
	BatchSize int

	// Workers 是单批内的并发数
	Workers int

	// Cache 在物品向量写入后失效（可选）
	Cache *ItemVectorCache
}

// ItemFailure 记录单个物品的处理失败。
type ItemFailure struct {
	ItemID int64  `json:"item_id"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// RangeReport 是 ComputeAndStoreRange 的统计结果。
type RangeReport struct {
	StartID     int64         `json:"start_id"`
	Selected    int           `json:"selected"`
	Stored      int           `json:"stored"`
	Incomplete  int           `json:"incomplete"`
	Failed      int           `json:"failed"`
	NextStartID int64         `json:"next_start_id"`
	Failures    []ItemFailure `json:"failures,omitempty"`
}

// Done 判断本批是否已到达目录末尾。
func (r RangeReport) Done(batchSize int) bool {
	return r.Selected < batchSize
}

func NewItemProfiles(catalog core.CatalogStore, categories *CategoryVectors, opts ItemOptions, logger zerolog.Logger) *ItemProfiles {
	if opts.BatchSize <= 0 {
		opts.BatchSize = core.DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &ItemProfiles{
		catalog:    catalog,
		categories: categories,
		cache:      opts.Cache,
		batchSize:  opts.BatchSize,
		workers:    opts.Workers,
		logger:     logger,
	}
}

// BatchSize 返回默认批大小。
func (p *ItemProfiles) BatchSize() int {
	return p.batchSize
}

// ComputeAndStore 计算物品的平均向量并写回。
//
//   - 没有任何可用的类目向量：不写入，返回 (nil, nil)
//   - 类目向量维度不一致：返回 core.ErrDimensionMismatch，不写入
func (p *ItemProfiles) ComputeAndStore(ctx context.Context, item *core.CatalogItem) ([]float64, error) {
	log := p.logger.With().Int64("item_id", item.ID).Logger()

	vectors := make([][]float64, 0, len(item.CategoryIDs))
	for _, cid := range item.CategoryIDs {
		if vec, ok := p.categories.Get(ctx, cid); ok {
			vectors = append(vectors, vec)
		}
	}
	if len(vectors) == 0 {
		log.Info().Int("categories", len(item.CategoryIDs)).Msg("no category embeddings available, average left unset")
		metrics.BackfillUnits.WithLabelValues(kindItem, "incomplete").Inc()
		return nil, nil
	}

	avg, err := vecmath.Mean(vectors)
	if err != nil {
		metrics.BackfillUnits.WithLabelValues(kindItem, "failed").Inc()
		if errors.Is(err, vecmath.ErrDimension) {
			log.Error().Err(err).Msg("category embeddings disagree on dimension")
			return nil, core.Wrap(core.ErrDimensionMismatch, err, "item %d", item.ID)
		}
		return nil, err
	}

	data, err := vecmath.Encode(avg)
	if err != nil {
		metrics.BackfillUnits.WithLabelValues(kindItem, "failed").Inc()
		return nil, err
	}
	if err := p.catalog.SaveItemEmbedding(ctx, item.ID, data); err != nil {
		metrics.BackfillUnits.WithLabelValues(kindItem, "failed").Inc()
		return nil, err
	}
	if err := p.cache.Invalidate(ctx, item.ID); err != nil {
		log.Warn().Err(err).Msg("invalidate shared item vector failed")
	}

	metrics.BackfillUnits.WithLabelValues(kindItem, "stored").Inc()
	log.Debug().Int("used", len(vectors)).Int("dim", len(avg)).Msg("item average embedding stored")
	return avg, nil
}

// ComputeAndStoreByID 读取物品后执行 ComputeAndStore。
func (p *ItemProfiles) ComputeAndStoreByID(ctx context.Context, itemID int64) ([]float64, error) {
	item, err := p.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return p.ComputeAndStore(ctx, item)
}

// ComputeAndStoreRange 处理 ID >= startID 的一批物品（按 ID 升序，最多 batchSize 个）。
// 单个物品失败不影响其他物品；只有读取这一批失败时才返回错误。
// 返回的 NextStartID 可作为下一批的游标。
func (p *ItemProfiles) ComputeAndStoreRange(ctx context.Context, startID int64, batchSize int) (RangeReport, error) {
	if batchSize <= 0 {
		batchSize = p.batchSize
	}
	report := RangeReport{StartID: startID, NextStartID: startID}

	items, err := p.catalog.ItemsInRange(ctx, startID, batchSize)
	if err != nil {
		return report, err
	}
	report.Selected = len(items)
	if len(items) == 0 {
		return report, nil
	}
	report.NextStartID = items[len(items)-1].ID + 1

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for _, item := range items {
		g.Go(func() error {
			vec, err := p.ComputeAndStore(ctx, item)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				report.Failures = append(report.Failures, ItemFailure{ItemID: item.ID, Err: err, Reason: err.Error()})
				p.logger.Warn().Err(err).Int64("item_id", item.ID).Msg("item average embedding failed")
			case vec == nil:
				report.Incomplete++
			default:
				report.Stored++
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].ItemID < report.Failures[j].ItemID })
	p.logger.Info().
		Int64("start_id", startID).
		Int("batch_size", batchSize).
		Int("selected", report.Selected).
		Int("stored", report.Stored).
		Int("incomplete", report.Incomplete).
		Int("failed", report.Failed).
		Int64("next_start_id", report.NextStartID).
		Msg("item average embedding batch finished")
	return report, nil
}

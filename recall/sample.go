package recall

import (
	"context"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pipeline"
)

// SamplePool 从目录中取一个有界的候选池：按 ID 升序、已计算平均向量的前 PoolSize 个物品。
// 候选池只用于限制全量比较的开销，不影响算法正确性。
// SamplePool 同时实现了 Source 和 Node 接口。
type SamplePool struct {
	Catalog core.CatalogStore

	// PoolSize <= 0 时使用 Config.DefaultPoolSize()
	PoolSize int
	Config   core.RankConfig
}

func (r *SamplePool) Name() string        { return "recall.sample" }
func (r *SamplePool) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 忽略输入，直接召回候选池。
func (r *SamplePool) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

func (r *SamplePool) Recall(ctx context.Context, _ *core.RecommendContext) ([]*core.Item, error) {
	catalogItems, err := r.Catalog.SampleItems(ctx, r.poolSize())
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, len(catalogItems))
	for _, ci := range catalogItems {
		it := core.NewItem(ci)
		it.PutLabel("recall_source", core.Label{Value: "sample", Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

func (r *SamplePool) poolSize() int {
	if r.PoolSize > 0 {
		return r.PoolSize
	}
	cfg := r.Config
	if cfg == nil {
		cfg = &core.DefaultRankConfig{}
	}
	return cfg.DefaultPoolSize()
}

var (
	_ Source        = (*SamplePool)(nil)
	_ pipeline.Node = (*SamplePool)(nil)
)

package filter

import (
	"context"

	"github.com/rushteam/embedrec/core"
)

// JudgedFilter 剔除用户已经评价过的物品。
type JudgedFilter struct{}

func (f *JudgedFilter) Name() string {
	return "filter.judged"
}

func (f *JudgedFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	return rctx.HasJudged(item.ID), nil
}

// EmbeddingFilter 剔除尚未计算平均向量的物品。
type EmbeddingFilter struct{}

func (f *EmbeddingFilter) Name() string {
	return "filter.embedding"
}

func (f *EmbeddingFilter) ShouldFilter(_ context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	return !item.Catalog.HasEmbedding(), nil
}

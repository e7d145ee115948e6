package rerank

import (
	"context"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pipeline"
)

// TopNNode 在排序后截取前 N 个物品。
//
// N <= 0 时使用请求的页大小 rctx.PageSize；两者都不大于 0 时不截断。
type TopNNode struct {
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	limit := n.N
	if limit <= 0 && rctx != nil {
		limit = rctx.PageSize
	}
	if limit <= 0 || len(items) <= limit {
		return items, nil
	}
	return items[:limit], nil
}

var _ pipeline.Node = (*TopNNode)(nil)

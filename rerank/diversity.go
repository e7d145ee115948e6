package rerank

import (
	"context"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pipeline"
)

// DiversityNode 限制同一主类目（物品的第一个类目）在结果中出现的次数，保持原有顺序。
// 没有类目的物品不受限制。放在排序之后、截断之前使用。
type DiversityNode struct {
	// MaxPerCategory <= 0 时不做限制
	MaxPerCategory int
}

func (n *DiversityNode) Name() string {
	return "rerank.diversity"
}

func (n *DiversityNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *DiversityNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.MaxPerCategory <= 0 || len(items) == 0 {
		return items, nil
	}

	seen := make(map[int64]int, 32)
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		cats := it.CategoryIDs()
		if len(cats) == 0 {
			out = append(out, it)
			continue
		}
		primary := cats[0]
		if seen[primary] >= n.MaxPerCategory {
			continue
		}
		seen[primary]++
		out = append(out, it)
	}
	return out, nil
}

var _ pipeline.Node = (*DiversityNode)(nil)

package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pipeline"
)

// FilterNode 是过滤 Node，可以组合多个过滤器。
// 任何一个过滤器返回 true，该候选就会被剔除。
type FilterNode struct {
	Filters []Filter
	Logger  zerolog.Logger
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		reason := ""
		for _, f := range n.Filters {
			drop, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				// 过滤器错误时记录但不中断流程，视为该过滤器不生效
				n.Logger.Warn().Err(err).Str("filter", f.Name()).Int64("item_id", item.ID).
					Msg("filter failed, keeping candidate")
				continue
			}
			if drop {
				reason = f.Name()
				break
			}
		}

		if reason != "" {
			item.PutLabel("filtered", core.Label{Value: "true", Source: reason})
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

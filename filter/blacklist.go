package filter

import (
	"context"

	"github.com/rushteam/embedrec/core"
)

// BlacklistFilter 过滤掉运营配置的黑名单物品。
type BlacklistFilter struct {
	ItemIDs map[int64]struct{}
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []int64) *BlacklistFilter {
	ids := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		ids[id] = struct{}{}
	}
	return &BlacklistFilter{ItemIDs: ids}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(_ context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	_, ok := f.ItemIDs[item.ID]
	return ok, nil
}

package core

// Item 是推荐链路中的统一承载结构：候选物品、分数、特征、标签。
// Labels 用于解释；Score 用于排序决策；Catalog 指向目录中的原始记录。
type Item struct {
	ID       int64
	Score    float64
	Features map[string]float64
	Labels   map[string]Label
	Catalog  *CatalogItem
}

// NewItem 基于目录记录创建候选。
func NewItem(ci *CatalogItem) *Item {
	return &Item{
		ID:       ci.ID,
		Features: make(map[string]float64),
		Labels:   make(map[string]Label),
		Catalog:  ci,
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// SetFeature 写入一个数值特征（similarity、category_boost 等）。
func (it *Item) SetFeature(key string, v float64) {
	if it.Features == nil {
		it.Features = make(map[string]float64)
	}
	it.Features[key] = v
}

// CategoryIDs 返回候选的类目 ID 列表。
func (it *Item) CategoryIDs() []int64 {
	if it.Catalog == nil {
		return nil
	}
	return it.Catalog.CategoryIDs
}

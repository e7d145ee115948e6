package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rushteam/embedrec/core"
)

// MemoryCatalog 是内存实现的目录/评价/偏好存储，用于测试与演示。
// 读写都返回副本，调用方修改结果不会影响存储内容。
type MemoryCatalog struct {
	mu          sync.RWMutex
	categories  map[int64]*core.Category
	items       map[int64]*core.CatalogItem
	judgments   map[int64][]core.Judgment
	preferences map[int64][]int64
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		categories:  make(map[int64]*core.Category),
		items:       make(map[int64]*core.CatalogItem),
		judgments:   make(map[int64][]core.Judgment),
		preferences: make(map[int64][]int64),
	}
}

// PutCategory 新增或覆盖类目。
func (m *MemoryCatalog) PutCategory(c core.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = copyCategory(&c)
}

// PutItem 新增或覆盖物品。
func (m *MemoryCatalog) PutItem(it core.CatalogItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = copyItem(&it)
}

// AddJudgment 追加一条评价；同一用户对同一物品重复评价时覆盖旧值。
func (m *MemoryCatalog) AddJudgment(j core.Judgment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.judgments[j.UserID]
	for i := range list {
		if list[i].ItemID == j.ItemID {
			list[i] = j
			return
		}
	}
	m.judgments[j.UserID] = append(list, j)
}

// SetPreferences 设置用户偏好类目（去重）。
func (m *MemoryCatalog) SetPreferences(userID int64, categoryIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[userID] = dedupIDs(categoryIDs)
}

func (m *MemoryCatalog) GetCategory(_ context.Context, id int64) (*core.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	return copyCategory(c), nil
}

func (m *MemoryCatalog) ListCategories(_ context.Context) ([]*core.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, copyCategory(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryCatalog) SaveCategoryEmbedding(_ context.Context, id int64, embedding []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return core.ErrStoreNotFound
	}
	c.Embedding = append([]byte(nil), embedding...)
	return nil
}

func (m *MemoryCatalog) GetItem(_ context.Context, id int64) (*core.CatalogItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	return copyItem(it), nil
}

func (m *MemoryCatalog) ItemsInRange(_ context.Context, startID int64, limit int) ([]*core.CatalogItem, error) {
	return m.sortedItems(limit, func(it *core.CatalogItem) bool { return it.ID >= startID }), nil
}

func (m *MemoryCatalog) SampleItems(_ context.Context, limit int) ([]*core.CatalogItem, error) {
	return m.sortedItems(limit, (*core.CatalogItem).HasEmbedding), nil
}

func (m *MemoryCatalog) SaveItemEmbedding(_ context.Context, id int64, embedding []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return core.ErrStoreNotFound
	}
	it.AverageEmbedding = append([]byte(nil), embedding...)
	return nil
}

func (m *MemoryCatalog) JudgmentsByUser(_ context.Context, userID int64) ([]core.Judgment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Judgment(nil), m.judgments[userID]...), nil
}

func (m *MemoryCatalog) PreferredCategories(_ context.Context, userID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.preferences[userID]...), nil
}

func (m *MemoryCatalog) sortedItems(limit int, keep func(*core.CatalogItem) bool) []*core.CatalogItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.items))
	for id, it := range m.items {
		if keep(it) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*core.CatalogItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyItem(m.items[id]))
	}
	return out
}

func copyCategory(c *core.Category) *core.Category {
	cp := *c
	cp.Embedding = append([]byte(nil), c.Embedding...)
	if len(cp.Embedding) == 0 {
		cp.Embedding = nil
	}
	return &cp
}

func copyItem(it *core.CatalogItem) *core.CatalogItem {
	cp := *it
	cp.CategoryIDs = append([]int64(nil), it.CategoryIDs...)
	cp.AverageEmbedding = append([]byte(nil), it.AverageEmbedding...)
	if len(cp.AverageEmbedding) == 0 {
		cp.AverageEmbedding = nil
	}
	return &cp
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var (
	_ core.CatalogStore    = (*MemoryCatalog)(nil)
	_ core.ReviewStore     = (*MemoryCatalog)(nil)
	_ core.PreferenceStore = (*MemoryCatalog)(nil)
)

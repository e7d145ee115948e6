package profile

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/metrics"
	"github.com/rushteam/embedrec/pkg/vecmath"
)

const itemVectorKeyPrefix = "itemvec:"

// ItemVectorCache 是物品平均向量的查找缓存。
//
// 两级结构：
//   - ItemVectorScope：单次请求内的解码结果（普通 map），请求结束即丢弃
//   - shared（可选）：跨请求共享的 core.Store，保存已编码的原始向量，key 为 itemvec:{id}
//
// 物品平均向量变更后必须调用 Invalidate，否则共享缓存在 TTL 内可能返回旧值。
// 每次 Invalidate 推进该物品的版本号；读目录之前记下版本号，回写共享缓存时版本已变化则放弃，
// 避免与回填并发的 Lookup 把旧值重新写回。版本号只在进程内有效。
type ItemVectorCache struct {
	catalog core.CatalogStore
	shared  core.Store
	ttl     time.Duration
	logger  zerolog.Logger

	mu          sync.Mutex
	generations map[int64]uint64
}

// NewItemVectorCache 创建缓存；shared 为 nil 时只使用请求内缓存。
func NewItemVectorCache(catalog core.CatalogStore, shared core.Store, ttl time.Duration, logger zerolog.Logger) *ItemVectorCache {
	return &ItemVectorCache{
		catalog:     catalog,
		shared:      shared,
		ttl:         ttl,
		logger:      logger,
		generations: make(map[int64]uint64),
	}
}

// Scope 返回新的请求级缓存。
func (c *ItemVectorCache) Scope() *ItemVectorScope {
	return &ItemVectorScope{
		cache:   c,
		vectors: make(map[int64][]float64),
		errs:    make(map[int64]error),
	}
}

// Invalidate 删除共享缓存中的物品向量。
func (c *ItemVectorCache) Invalidate(ctx context.Context, itemID int64) error {
	if c == nil || c.shared == nil {
		return nil
	}
	c.mu.Lock()
	c.generations[itemID]++
	c.mu.Unlock()
	return c.shared.Delete(ctx, itemVectorKey(itemID))
}

func (c *ItemVectorCache) generation(itemID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[itemID]
}

// storeIfCurrent 仅在读目录以来没有发生 Invalidate 时回写共享缓存。
func (c *ItemVectorCache) storeIfCurrent(ctx context.Context, itemID int64, gen uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[itemID] != gen {
		c.logger.Debug().Int64("item_id", itemID).Msg("item vector changed during lookup, skip shared write")
		return
	}
	if err := c.shared.Set(ctx, itemVectorKey(itemID), data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Int64("item_id", itemID).Msg("write shared item vector failed")
	}
}

func itemVectorKey(itemID int64) string {
	return itemVectorKeyPrefix + strconv.FormatInt(itemID, 10)
}

// ItemVectorScope 是单次请求内的物品向量缓存，同一物品在一次请求中只解码一次。
type ItemVectorScope struct {
	cache *ItemVectorCache

	mu      sync.Mutex
	vectors map[int64][]float64
	errs    map[int64]error
}

// Lookup 按物品 ID 查找平均向量：请求内缓存 → 共享缓存 → 目录存储。
//
// 错误：
//   - core.ErrStoreNotFound：物品不存在
//   - core.ErrEmptyEmbedding：物品尚未计算平均向量
//   - core.ErrMalformedEmbedding：存储的向量无法解码
func (s *ItemVectorScope) Lookup(ctx context.Context, itemID int64) ([]float64, error) {
	if vec, err, ok := s.get(itemID); ok {
		return vec, err
	}

	if vec, ok := s.fromShared(ctx, itemID); ok {
		s.put(itemID, vec, nil)
		return vec, nil
	}

	gen := s.cache.generation(itemID)
	item, err := s.cache.catalog.GetItem(ctx, itemID)
	if err != nil {
		if core.IsStoreNotFound(err) {
			s.put(itemID, nil, err)
		}
		return nil, err
	}

	vec, err := s.decode(item)
	s.put(itemID, vec, err)
	if err == nil && s.cache.shared != nil {
		s.cache.storeIfCurrent(ctx, itemID, gen, item.AverageEmbedding)
	}
	return vec, err
}

// Resolve 解码已加载的目录物品，实现 core.VectorResolver。
func (s *ItemVectorScope) Resolve(_ context.Context, item *core.CatalogItem) ([]float64, error) {
	if vec, err, ok := s.get(item.ID); ok {
		return vec, err
	}
	vec, err := s.decode(item)
	s.put(item.ID, vec, err)
	return vec, err
}

func (s *ItemVectorScope) decode(item *core.CatalogItem) ([]float64, error) {
	if !item.HasEmbedding() {
		return nil, core.Wrap(core.ErrEmptyEmbedding, nil, "item %d", item.ID)
	}
	vec, err := vecmath.Decode(item.AverageEmbedding)
	if err != nil {
		return nil, core.Wrap(core.ErrMalformedEmbedding, err, "item %d", item.ID)
	}
	return vec, nil
}

func (s *ItemVectorScope) fromShared(ctx context.Context, itemID int64) ([]float64, bool) {
	shared := s.cache.shared
	if shared == nil {
		return nil, false
	}

	key := itemVectorKey(itemID)
	data, err := shared.Get(ctx, key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			s.cache.logger.Warn().Err(err).Str("store", shared.Name()).Int64("item_id", itemID).
				Msg("read shared item vector failed")
		}
		metrics.ItemVectorCache.WithLabelValues("miss").Inc()
		return nil, false
	}

	vec, err := vecmath.Decode(data)
	if err != nil {
		// 共享缓存中的坏值直接删除，回源目录存储
		s.cache.logger.Warn().Err(err).Int64("item_id", itemID).Msg("drop malformed shared item vector")
		_ = shared.Delete(ctx, key)
		metrics.ItemVectorCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.ItemVectorCache.WithLabelValues("hit").Inc()
	return vec, true
}

func (s *ItemVectorScope) get(itemID int64) ([]float64, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.vectors[itemID]; ok {
		return vec, nil, true
	}
	if err, ok := s.errs[itemID]; ok {
		return nil, err, true
	}
	return nil, nil, false
}

func (s *ItemVectorScope) put(itemID int64, vec []float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errs[itemID] = err
		return
	}
	s.vectors[itemID] = vec
}

var _ core.VectorResolver = (*ItemVectorScope)(nil)

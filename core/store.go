package core

import (
	"context"
	"time"
)

// Store 是 KV 存储的领域接口，用作物品向量的跨请求共享缓存。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 值为已序列化的向量（JSON 数组），由调用方负责编解码
//
// 实现：
//   - store.MemoryStore（进程内，带 TTL）
//   - store.RedisStore（多实例共享）
//   - store.BadgerStore（嵌入式持久化）
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值；不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除单个 key，key 不存在不视为错误
	Delete(ctx context.Context, key string) error

	// Close 关闭连接/释放资源
	Close() error
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 或记录不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	return hasCode(err, ModuleStore, ErrorCodeNotFound)
}

// IsStoreNotSupported 检查错误是否为操作不支持
func IsStoreNotSupported(err error) bool {
	return hasCode(err, ModuleStore, ErrorCodeNotSupported)
}

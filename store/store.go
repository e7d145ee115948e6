// Package store 包含领域接口的基础设施实现：
//
//   - core.Store：MemoryStore / RedisStore / BadgerStore（物品向量共享缓存）
//   - core.CatalogStore + core.ReviewStore + core.PreferenceStore：
//     MemoryCatalog（测试/演示）与 SQLiteCatalog（持久化）
//
// 接口定义在 core 包，此包只包含实现。
package store

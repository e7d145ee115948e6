// Package profile 维护推荐所需的三类向量：
//
//   - CategoryVectors：类目名称的文本向量，按需调用 core.Embedder 获取并写回目录存储
//   - ItemProfiles：物品平均向量，等于其已有向量的类目向量逐维平均
//   - UserProfiles：用户画像向量，等于已评价物品平均向量的加权和（不做归一化）
//
// ItemVectorCache 为单次推荐请求缓存物品向量的解码结果，并可选地通过 core.Store
// 在请求间共享；物品平均向量写入后由 ItemProfiles 负责失效共享缓存。
package profile

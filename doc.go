// Package embedrec 是一个基于类目文本向量的内容推荐服务。
//
// 数据流：
//   - 类目名称经外部文本向量 API 得到类目向量（profile.CategoryVectors）
//   - 物品向量是其类目向量的逐维平均（profile.ItemProfiles）
//   - 用户画像是已评价物品向量按评价权重的加权和（profile.UserProfiles）
//   - 推荐按 Pipeline 执行：召回候选池 → 剔除已评价 → 余弦相似度 + 偏好类目加权 → 截断
//
// 回填（类目向量、物品平均向量）由 backfill.Runner 在后台执行，
// HTTP 入口见 server 包，命令行入口见 cmd/embedrec。
package embedrec

import "github.com/rushteam/embedrec/pipeline"

// 轻量 facade：便于直接 import "embedrec" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall = pipeline.KindRecall
	KindFilter = pipeline.KindFilter
	KindRank   = pipeline.KindRank
	KindReRank = pipeline.KindReRank
)

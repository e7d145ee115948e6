package pipeline

import (
	"context"

	"github.com/rushteam/embedrec/core"
)

// Kind 用于标记 Node 类型，方便观测/编排（例如按阶段打点）。
type Kind string

const (
	KindRecall Kind = "recall" // 召回阶段：生成候选池
	KindFilter Kind = "filter" // 过滤阶段：剔除已评价/无向量/不满足表达式的候选
	KindRank   Kind = "rank"   // 排序阶段：相似度 + 类目加权打分并排序
	KindReRank Kind = "rerank" // 重排阶段：按页大小截断
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用“输入 items -> 输出 items”的形态，Recall 生成、Filter 剔除、Rank 排序、ReRank 截断。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}

package core

import "context"

// VectorResolver 将目录物品解码为向量，实现方可在一次请求内缓存解码结果。
type VectorResolver interface {
	Resolve(ctx context.Context, item *CatalogItem) ([]float64, error)
}

// RecommendContext 承载单次推荐请求的用户信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID   int64
	PageSize int

	// Profile 是用户画像向量（评价加权和）
	Profile []float64

	// Judged 是用户已评价的物品 ID，召回后需剔除
	Judged map[int64]struct{}

	// Preferred 是用户选择的偏好类目 ID，用于类目加权
	Preferred map[int64]struct{}

	// Vectors 解码候选物品的平均向量；为 nil 时由节点直接解码
	Vectors VectorResolver

	// Labels 是用户级标签
	Labels map[string]Label

	// Params 请求级参数（供表达式过滤使用）
	Params map[string]any
}

// HasJudged 判断用户是否已评价过该物品。
func (rctx *RecommendContext) HasJudged(itemID int64) bool {
	if rctx == nil || rctx.Judged == nil {
		return false
	}
	_, ok := rctx.Judged[itemID]
	return ok
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

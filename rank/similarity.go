// Package rank 提供基于向量相似度的排序节点。
package rank

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pipeline"
	"github.com/rushteam/embedrec/pkg/vecmath"
)

const (
	FeatureSimilarity    = "similarity"
	FeatureCategoryBoost = "category_boost"

	// LabelSimilarity 标记无法计算余弦的候选（Value 为 "undefined"）
	LabelSimilarity = "similarity"
)

// SimilarityNode 按用户画像对候选打分：
//
//	similarity = cosine(profile, candidate)
//	boost      = BoostWeight * |preferred ∩ candidateCategories| / |preferred|（无偏好类目时为 0）
//	score      = similarity + boost
//
// 结果按 Less 排序。任一向量范数为 0 时 similarity 取 vecmath.MinSimilarity，不加 boost，
// 并打上 LabelSimilarity 标签，排在所有可计算的候选之后。向量缺失、无法解码或与画像维度不一致的候选被剔除。
type SimilarityNode struct {
	BoostWeight float64
	Logger      zerolog.Logger
}

func (n *SimilarityNode) Name() string        { return "rank.similarity" }
func (n *SimilarityNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *SimilarityNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	profile := rctx.Profile

	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		vec, err := n.resolve(ctx, rctx, it)
		if err != nil {
			if core.IsMalformedEmbedding(err) {
				n.Logger.Error().Err(err).Int64("item_id", it.ID).Msg("candidate embedding malformed, excluded")
			} else {
				n.Logger.Debug().Err(err).Int64("item_id", it.ID).Msg("candidate has no embedding, excluded")
			}
			continue
		}
		if len(profile) > 0 && len(vec) != len(profile) {
			n.Logger.Error().Int64("item_id", it.ID).Int("dim", len(vec)).Int("profile_dim", len(profile)).
				Msg("candidate embedding dimension mismatch, excluded")
			continue
		}

		sim, ok := vecmath.Cosine(profile, vec)
		boost := 0.0
		if ok {
			boost = n.BoostWeight * overlap(rctx.Preferred, it.CategoryIDs())
			delete(it.Labels, LabelSimilarity)
		} else {
			sim = vecmath.MinSimilarity
			// 直接覆盖，重复打分时不累积
			if it.Labels == nil {
				it.Labels = make(map[string]core.Label)
			}
			it.Labels[LabelSimilarity] = core.Label{Value: "undefined", Source: "rank"}
		}

		it.Score = sim + boost
		it.SetFeature(FeatureSimilarity, sim)
		it.SetFeature(FeatureCategoryBoost, boost)
		it.PutLabel("rank_model", core.Label{Value: "cosine", Source: "rank"})
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out, nil
}

// Less 定义推荐顺序：可计算相似度的候选在前，其次 Score 降序，同分按 ID 升序。
func Less(a, b *core.Item) bool {
	if ua, ub := Undefined(a), Undefined(b); ua != ub {
		return ub
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// Undefined 判断候选的余弦相似度是否无法计算。
func Undefined(it *core.Item) bool {
	lbl, ok := it.Labels[LabelSimilarity]
	return ok && lbl.Value == "undefined"
}

func (n *SimilarityNode) resolve(ctx context.Context, rctx *core.RecommendContext, it *core.Item) ([]float64, error) {
	if it.Catalog == nil {
		return nil, core.Wrap(core.ErrEmptyEmbedding, nil, "item %d", it.ID)
	}
	if rctx.Vectors != nil {
		return rctx.Vectors.Resolve(ctx, it.Catalog)
	}
	if !it.Catalog.HasEmbedding() {
		return nil, core.Wrap(core.ErrEmptyEmbedding, nil, "item %d", it.ID)
	}
	vec, err := vecmath.Decode(it.Catalog.AverageEmbedding)
	if err != nil {
		return nil, core.Wrap(core.ErrMalformedEmbedding, err, "item %d", it.ID)
	}
	return vec, nil
}

// overlap 返回候选类目覆盖偏好类目的比例。
func overlap(preferred map[int64]struct{}, categories []int64) float64 {
	if len(preferred) == 0 {
		return 0
	}
	matched := make(map[int64]struct{}, len(categories))
	for _, cid := range categories {
		if _, ok := preferred[cid]; ok {
			matched[cid] = struct{}{}
		}
	}
	return float64(len(matched)) / float64(len(preferred))
}

var _ pipeline.Node = (*SimilarityNode)(nil)

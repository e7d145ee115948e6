package profile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pkg/vecmath"
)

// UserProfile 是单次请求内的用户画像。
type UserProfile struct {
	UserID int64

	// Vector 是已评价物品平均向量的加权和
	Vector []float64

	// Judged 是用户评价过的全部物品（含没有向量的物品）
	Judged map[int64]struct{}

	// Used 是参与计算的评价条数
	Used int
}

// UserProfiles 根据用户的评价构建画像向量。
type UserProfiles struct {
	reviews core.ReviewStore
	cache   *ItemVectorCache
	logger  zerolog.Logger
}

func NewUserProfiles(reviews core.ReviewStore, cache *ItemVectorCache, logger zerolog.Logger) *UserProfiles {
	return &UserProfiles{reviews: reviews, cache: cache, logger: logger}
}

// Build 使用新的请求级缓存构建画像。
func (b *UserProfiles) Build(ctx context.Context, userID int64) (*UserProfile, error) {
	return b.BuildWithScope(ctx, userID, b.cache.Scope())
}

// BuildWithScope 构建画像：profile[i] = Σ weight(j) * embedding(j)[i]。
//
// 结果不按评价条数归一化；后续只比较余弦相似度，缩放不影响排序。
// 没有评价、或所有评价物品都没有可用向量时返回 core.ErrNoJudgments（画像中仍带有 Judged）。
func (b *UserProfiles) BuildWithScope(ctx context.Context, userID int64, scope *ItemVectorScope) (*UserProfile, error) {
	judgments, err := b.reviews.JudgmentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &UserProfile{UserID: userID, Judged: make(map[int64]struct{}, len(judgments))}
	for _, j := range judgments {
		p.Judged[j.ItemID] = struct{}{}
	}
	if len(judgments) == 0 {
		return p, core.Wrap(core.ErrNoJudgments, nil, "user %d has no judgments", userID)
	}

	log := b.logger.With().Int64("user_id", userID).Logger()

	var acc []float64
	for _, j := range judgments {
		vec, err := scope.Lookup(ctx, j.ItemID)
		switch {
		case err == nil:
		case core.IsEmptyEmbedding(err), core.IsStoreNotFound(err):
			log.Debug().Int64("item_id", j.ItemID).Msg("judged item has no embedding, skipped")
			continue
		case core.IsMalformedEmbedding(err):
			log.Error().Err(err).Int64("item_id", j.ItemID).Msg("judged item embedding malformed, skipped")
			continue
		default:
			return nil, err
		}

		next, err := vecmath.AddScaled(acc, vec, j.Status.Weight())
		if err != nil {
			log.Error().Err(err).Int64("item_id", j.ItemID).Msg("judged item embedding dimension mismatch, skipped")
			continue
		}
		acc = next
		p.Used++
	}

	if p.Used == 0 {
		return p, core.Wrap(core.ErrNoJudgments, nil, "user %d has no judged items with embeddings", userID)
	}
	p.Vector = acc
	return p, nil
}

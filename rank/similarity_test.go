package rank

import (
	"context"
	"math"
	"testing"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pkg/vecmath"
)

func candidate(id int64, emb string, categories ...int64) *core.Item {
	ci := &core.CatalogItem{ID: id, CategoryIDs: categories}
	if emb != "" {
		ci.AverageEmbedding = []byte(emb)
	}
	return core.NewItem(ci)
}

func TestSimilarityNodeScores(t *testing.T) {
	rctx := &core.RecommendContext{
		Profile:   []float64{1, 0},
		Preferred: map[int64]struct{}{10: {}, 20: {}},
	}
	items := []*core.Item{
		candidate(1, "[0,1]", 10, 20), // sim 0, boost 0.1
		candidate(2, "[1,1]"),         // sim 0.7071
		candidate(3, "[1,0]", 10),     // sim 1, boost 0.05
		candidate(4, "[0,0]", 10, 20), // zero norm
		candidate(5, ""),              // no embedding
		candidate(6, "not-json"),      // malformed
		candidate(7, "[1,0,0]"),       // dimension mismatch
	}

	n := &SimilarityNode{BoostWeight: 0.1}
	got, err := n.Process(context.Background(), rctx, items)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := []struct {
		id    int64
		score float64
		boost float64
	}{
		{3, 1.05, 0.05},
		{2, math.Sqrt2 / 2, 0},
		{1, 0.1, 0.1},
		{4, vecmath.MinSimilarity, 0},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for i, w := range want {
		it := got[i]
		if it.ID != w.id {
			t.Errorf("position %d = item %d, want %d", i, it.ID, w.id)
			continue
		}
		if math.Abs(it.Score-w.score) > 1e-9 {
			t.Errorf("item %d score = %v, want %v", it.ID, it.Score, w.score)
		}
		if math.Abs(it.Features[FeatureCategoryBoost]-w.boost) > 1e-9 {
			t.Errorf("item %d boost = %v, want %v", it.ID, it.Features[FeatureCategoryBoost], w.boost)
		}
	}
}

func TestSimilarityNodeTieBreak(t *testing.T) {
	rctx := &core.RecommendContext{Profile: []float64{1, 0}}
	items := []*core.Item{candidate(9, "[2,0]"), candidate(4, "[1,0]"), candidate(6, "[3,0]")}

	got, err := (&SimilarityNode{}).Process(context.Background(), rctx, items)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int64{4, 6, 9} {
		if got[i].ID != want {
			t.Errorf("position %d = %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestSimilarityNodeUndefinedRanksLast(t *testing.T) {
	rctx := &core.RecommendContext{Profile: []float64{1, 0}}
	// item 2 的余弦恰为 -1，与零向量的 MinSimilarity 同分
	items := []*core.Item{candidate(2, "[-1,0]"), candidate(1, "[0,0]"), candidate(3, "[0,1]")}

	got, err := (&SimilarityNode{BoostWeight: 0.1}).Process(context.Background(), rctx, items)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int64{3, 2, 1} {
		if got[i].ID != want {
			t.Fatalf("position %d = %d, want %d", i, got[i].ID, want)
		}
	}
	last := got[2]
	if !Undefined(last) || Undefined(got[1]) {
		t.Errorf("undefined flags = %v, %v", Undefined(got[1]), Undefined(last))
	}
	if last.Score != -1 || last.Features[FeatureSimilarity] != -1 {
		t.Errorf("zero vector score = %v, similarity = %v, want -1", last.Score, last.Features[FeatureSimilarity])
	}
}

type countingResolver struct{ calls int }

func (r *countingResolver) Resolve(_ context.Context, item *core.CatalogItem) ([]float64, error) {
	r.calls++
	return vecmath.Decode(item.AverageEmbedding)
}

func TestSimilarityNodeUsesResolver(t *testing.T) {
	res := &countingResolver{}
	rctx := &core.RecommendContext{Profile: []float64{1, 0}, Vectors: res}

	got, err := (&SimilarityNode{}).Process(context.Background(), rctx,
		[]*core.Item{candidate(1, "[1,0]"), candidate(2, "[0,1]")})
	if err != nil {
		t.Fatal(err)
	}
	if res.calls != 2 || len(got) != 2 {
		t.Errorf("resolver calls = %d, items = %d; want 2, 2", res.calls, len(got))
	}
}

func TestOverlap(t *testing.T) {
	pref := map[int64]struct{}{1: {}, 2: {}, 3: {}, 4: {}}
	tests := []struct {
		name       string
		preferred  map[int64]struct{}
		categories []int64
		want       float64
	}{
		{"no preferences", nil, []int64{1}, 0},
		{"none matched", pref, []int64{9}, 0},
		{"half", pref, []int64{1, 3, 9}, 0.5},
		{"duplicates count once", pref, []int64{2, 2, 2}, 0.25},
		{"all", pref, []int64{4, 3, 2, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overlap(tt.preferred, tt.categories); got != tt.want {
				t.Errorf("overlap() = %v, want %v", got, tt.want)
			}
		})
	}
}

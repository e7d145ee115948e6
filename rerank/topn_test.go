package rerank

import (
	"context"
	"testing"

	"github.com/rushteam/embedrec/core"
)

func TestTopNNode(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		pageSize int
		want     int
	}{
		{"fixed n", 2, 10, 2},
		{"page size", 0, 3, 3},
		{"no limit", 0, 0, 5},
		{"limit above length", 8, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]*core.Item, 5)
			for i := range items {
				items[i] = &core.Item{ID: int64(i + 1)}
			}
			got, err := (&TopNNode{N: tt.n}).Process(context.Background(), &core.RecommendContext{PageSize: tt.pageSize}, items)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
			if len(got) > 0 && got[0].ID != 1 {
				t.Errorf("order changed: first = %d", got[0].ID)
			}
		})
	}
}

func TestTopNNodeNilContext(t *testing.T) {
	got, _ := (&TopNNode{}).Process(context.Background(), nil, []*core.Item{{ID: 1}, {ID: 2}})
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestDiversityNode(t *testing.T) {
	mk := func(id int64, cats ...int64) *core.Item {
		return core.NewItem(&core.CatalogItem{ID: id, CategoryIDs: cats})
	}
	items := []*core.Item{mk(1, 10), mk(2, 10, 20), mk(3, 10), mk(4, 20), mk(5), mk(6, 20, 10)}

	tests := []struct {
		name string
		max  int
		want []int64
	}{
		{"disabled", 0, []int64{1, 2, 3, 4, 5, 6}},
		{"one per category", 1, []int64{1, 4, 5}},
		{"two per category", 2, []int64{1, 2, 4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := (&DiversityNode{MaxPerCategory: tt.max}).Process(context.Background(), nil, items)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d items, want %v", len(got), tt.want)
			}
			for i := range tt.want {
				if got[i].ID != tt.want[i] {
					t.Errorf("position %d = %d, want %d", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

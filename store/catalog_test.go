package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rushteam/embedrec/core"
)

type catalogUnderTest interface {
	core.CatalogStore
	core.ReviewStore
	core.PreferenceStore
}

type fixture struct {
	categories  []core.Category
	items       []core.CatalogItem
	judgments   []core.Judgment
	preferences map[int64][]int64
}

func testFixture() fixture {
	return fixture{
		categories: []core.Category{
			{ID: 1, Name: "Strategy"},
			{ID: 2, Name: "Puzzle", Embedding: []byte("[1,0]")},
		},
		items: []core.CatalogItem{
			{ID: 1, Name: "a", CategoryIDs: []int64{1, 2}},
			{ID: 3, Name: "c", CategoryIDs: []int64{2}, AverageEmbedding: []byte("[1,0]")},
			{ID: 5, Name: "e", AverageEmbedding: []byte("[0,1]")},
		},
		judgments: []core.Judgment{
			{UserID: 7, ItemID: 3, Status: core.ReviewGood},
			{UserID: 7, ItemID: 5, Status: core.ReviewBad},
		},
		preferences: map[int64][]int64{7: {2}},
	}
}

func seedMemory(f fixture) catalogUnderTest {
	m := NewMemoryCatalog()
	for _, c := range f.categories {
		m.PutCategory(c)
	}
	for _, it := range f.items {
		m.PutItem(it)
	}
	for _, j := range f.judgments {
		m.AddJudgment(j)
	}
	for u, cats := range f.preferences {
		m.SetPreferences(u, cats...)
	}
	return m
}

func seedSQLite(t *testing.T, f fixture, path string) catalogUnderTest {
	t.Helper()
	ctx := context.Background()
	s, err := NewSQLiteCatalog(path)
	if err != nil {
		t.Fatalf("NewSQLiteCatalog() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, c := range f.categories {
		if err := s.UpsertCategory(ctx, c.ID, c.Name); err != nil {
			t.Fatal(err)
		}
		if c.HasEmbedding() {
			if err := s.SaveCategoryEmbedding(ctx, c.ID, c.Embedding); err != nil {
				t.Fatal(err)
			}
		}
	}
	for _, it := range f.items {
		if err := s.UpsertItem(ctx, it.ID, it.Name, it.CategoryIDs...); err != nil {
			t.Fatal(err)
		}
		if it.HasEmbedding() {
			if err := s.SaveItemEmbedding(ctx, it.ID, it.AverageEmbedding); err != nil {
				t.Fatal(err)
			}
		}
	}
	for _, j := range f.judgments {
		if err := s.PutJudgment(ctx, j); err != nil {
			t.Fatal(err)
		}
	}
	for u, cats := range f.preferences {
		for _, c := range cats {
			if err := s.AddPreference(ctx, u, c); err != nil {
				t.Fatal(err)
			}
		}
	}
	return s
}

func catalogs(t *testing.T) map[string]catalogUnderTest {
	f := testFixture()
	return map[string]catalogUnderTest{
		"memory":      seedMemory(f),
		"sqlite":      seedSQLite(t, f, ":memory:"),
		"sqlite-file": seedSQLite(t, f, filepath.Join(t.TempDir(), "catalog.db")),
	}
}

func itemIDs(items []*core.CatalogItem) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestCatalogContract(t *testing.T) {
	ctx := context.Background()
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("categories", func(t *testing.T) {
				cat, err := c.GetCategory(ctx, 1)
				if err != nil || cat.Name != "Strategy" || cat.HasEmbedding() {
					t.Fatalf("GetCategory(1) = %+v, %v", cat, err)
				}
				if _, err := c.GetCategory(ctx, 99); !core.IsStoreNotFound(err) {
					t.Errorf("GetCategory(99) error = %v, want not found", err)
				}

				list, err := c.ListCategories(ctx)
				if err != nil || len(list) != 2 || list[0].ID != 1 || list[1].ID != 2 {
					t.Fatalf("ListCategories() = %v, %v", list, err)
				}
				if string(list[1].Embedding) != "[1,0]" {
					t.Errorf("category 2 embedding = %s", list[1].Embedding)
				}
			})

			t.Run("items", func(t *testing.T) {
				it, err := c.GetItem(ctx, 1)
				if err != nil {
					t.Fatalf("GetItem(1) error = %v", err)
				}
				if !reflect.DeepEqual(it.CategoryIDs, []int64{1, 2}) || it.HasEmbedding() {
					t.Errorf("GetItem(1) = %+v", it)
				}
				if _, err := c.GetItem(ctx, 2); !core.IsStoreNotFound(err) {
					t.Errorf("GetItem(2) error = %v, want not found", err)
				}

				tests := []struct {
					start int64
					limit int
					want  []int64
				}{
					{0, 10, []int64{1, 3, 5}},
					{2, 10, []int64{3, 5}},
					{0, 2, []int64{1, 3}},
					{0, 0, []int64{1, 3, 5}},
					{6, 10, []int64{}},
				}
				for _, tt := range tests {
					got, err := c.ItemsInRange(ctx, tt.start, tt.limit)
					if err != nil {
						t.Fatalf("ItemsInRange(%d, %d) error = %v", tt.start, tt.limit, err)
					}
					if ids := itemIDs(got); !reflect.DeepEqual(ids, tt.want) {
						t.Errorf("ItemsInRange(%d, %d) = %v, want %v", tt.start, tt.limit, ids, tt.want)
					}
				}

				got, _ := c.ItemsInRange(ctx, 3, 1)
				if len(got) != 1 || !reflect.DeepEqual(got[0].CategoryIDs, []int64{2}) {
					t.Errorf("ItemsInRange(3, 1) categories = %+v", got)
				}
			})

			t.Run("sample", func(t *testing.T) {
				got, err := c.SampleItems(ctx, 10)
				if err != nil {
					t.Fatal(err)
				}
				if ids := itemIDs(got); !reflect.DeepEqual(ids, []int64{3, 5}) {
					t.Errorf("SampleItems(10) = %v, want [3 5]", ids)
				}
				got, _ = c.SampleItems(ctx, 1)
				if ids := itemIDs(got); !reflect.DeepEqual(ids, []int64{3}) {
					t.Errorf("SampleItems(1) = %v, want [3]", ids)
				}
			})

			t.Run("reviews and preferences", func(t *testing.T) {
				js, err := c.JudgmentsByUser(ctx, 7)
				if err != nil || len(js) != 2 {
					t.Fatalf("JudgmentsByUser(7) = %v, %v", js, err)
				}
				if js[0].ItemID != 3 || js[0].Status != core.ReviewGood || js[1].Status != core.ReviewBad {
					t.Errorf("JudgmentsByUser(7) = %+v", js)
				}
				if js, _ := c.JudgmentsByUser(ctx, 8); len(js) != 0 {
					t.Errorf("JudgmentsByUser(8) = %v, want empty", js)
				}

				prefs, err := c.PreferredCategories(ctx, 7)
				if err != nil || !reflect.DeepEqual(prefs, []int64{2}) {
					t.Errorf("PreferredCategories(7) = %v, %v", prefs, err)
				}
			})

			// 写入放在最后，前面的只读断言依赖初始数据
			t.Run("writes", func(t *testing.T) {
				if err := c.SaveCategoryEmbedding(ctx, 1, []byte("[0,1]")); err != nil {
					t.Fatalf("SaveCategoryEmbedding() error = %v", err)
				}
				cat, _ := c.GetCategory(ctx, 1)
				if string(cat.Embedding) != "[0,1]" {
					t.Errorf("category 1 embedding = %s", cat.Embedding)
				}
				if err := c.SaveCategoryEmbedding(ctx, 99, []byte("[1]")); !core.IsStoreNotFound(err) {
					t.Errorf("SaveCategoryEmbedding(99) error = %v, want not found", err)
				}

				if err := c.SaveItemEmbedding(ctx, 1, []byte("[0.5,0.5]")); err != nil {
					t.Fatalf("SaveItemEmbedding() error = %v", err)
				}
				got, _ := c.SampleItems(ctx, 0)
				if ids := itemIDs(got); !reflect.DeepEqual(ids, []int64{1, 3, 5}) {
					t.Errorf("SampleItems after save = %v, want [1 3 5]", ids)
				}
				if err := c.SaveItemEmbedding(ctx, 2, []byte("[1]")); !core.IsStoreNotFound(err) {
					t.Errorf("SaveItemEmbedding(2) error = %v, want not found", err)
				}
			})
		})
	}
}

func TestMemoryCatalogReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCatalog()
	m.PutItem(core.CatalogItem{ID: 1, CategoryIDs: []int64{1}})

	it, _ := m.GetItem(ctx, 1)
	it.CategoryIDs[0] = 42

	again, _ := m.GetItem(ctx, 1)
	if again.CategoryIDs[0] != 1 {
		t.Errorf("stored item modified through returned copy")
	}
}

func TestMemoryCatalogJudgmentOverwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCatalog()
	m.AddJudgment(core.Judgment{UserID: 1, ItemID: 2, Status: core.ReviewBad})
	m.AddJudgment(core.Judgment{UserID: 1, ItemID: 2, Status: core.ReviewPerfect})

	js, _ := m.JudgmentsByUser(ctx, 1)
	if len(js) != 1 || js[0].Status != core.ReviewPerfect {
		t.Errorf("JudgmentsByUser() = %+v, want single PERFECT", js)
	}
}

func TestSQLiteUpsertItemReplacesCategories(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteCatalog(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_ = s.UpsertItem(ctx, 1, "a", 1, 2, 2)
	_ = s.SaveItemEmbedding(ctx, 1, []byte("[1]"))
	_ = s.UpsertItem(ctx, 1, "a2", 3)

	it, err := s.GetItem(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if it.Name != "a2" || !reflect.DeepEqual(it.CategoryIDs, []int64{3}) {
		t.Errorf("GetItem() = %+v, want name a2 and categories [3]", it)
	}
	if string(it.AverageEmbedding) != "[1]" {
		t.Errorf("upsert dropped stored embedding: %s", it.AverageEmbedding)
	}
}

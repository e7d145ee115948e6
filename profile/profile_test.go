package profile

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/core"
	"github.com/rushteam/embedrec/pkg/vecmath"
	"github.com/rushteam/embedrec/store"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	errs    map[string]error
	calls   map[string]int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: make(map[string][]float64),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	if err, ok := f.errs[text]; ok {
		return nil, err
	}
	return f.vectors[text], nil
}

func (f *fakeEmbedder) callCount(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func mustEncode(t *testing.T, v []float64) []byte {
	t.Helper()
	data, err := vecmath.Encode(v)
	if err != nil {
		t.Fatalf("encode %v: %v", v, err)
	}
	return data
}

func storedItemVector(t *testing.T, catalog *store.MemoryCatalog, id int64) []float64 {
	t.Helper()
	it, err := catalog.GetItem(context.Background(), id)
	if err != nil {
		t.Fatalf("GetItem(%d): %v", id, err)
	}
	if !it.HasEmbedding() {
		return nil
	}
	vec, err := vecmath.Decode(it.AverageEmbedding)
	if err != nil {
		t.Fatalf("decode item %d: %v", id, err)
	}
	return vec
}

func approxEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

// scenarioCatalog：类目 A=[1,0]、B=[0,1]；物品 X{A,B}，Y{A}。
func scenarioCatalog(t *testing.T) *store.MemoryCatalog {
	catalog := store.NewMemoryCatalog()
	catalog.PutCategory(core.Category{ID: 1, Name: "A", Embedding: mustEncode(t, []float64{1, 0})})
	catalog.PutCategory(core.Category{ID: 2, Name: "B", Embedding: mustEncode(t, []float64{0, 1})})
	catalog.PutItem(core.CatalogItem{ID: 10, Name: "X", CategoryIDs: []int64{1, 2}})
	catalog.PutItem(core.CatalogItem{ID: 20, Name: "Y", CategoryIDs: []int64{1}})
	return catalog
}

func TestCategoryVectorsEnsure(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	catalog.PutCategory(core.Category{ID: 1, Name: "Strategy"})

	emb := newFakeEmbedder()
	emb.vectors["Strategy"] = []float64{0.1, 0.2, 0.3}
	cv := NewCategoryVectors(catalog, emb, 1, zerolog.Nop())

	if _, ok := cv.Get(ctx, 1); ok {
		t.Fatal("Get should not report a vector before Ensure")
	}

	vec, ok := cv.Ensure(ctx, 1)
	if !ok || !approxEqual(vec, []float64{0.1, 0.2, 0.3}) {
		t.Fatalf("Ensure = %v, %v", vec, ok)
	}

	// 已存储的向量不再重新获取
	if _, ok := cv.Ensure(ctx, 1); !ok {
		t.Fatal("second Ensure failed")
	}
	if n := emb.callCount("Strategy"); n != 1 {
		t.Errorf("embedder called %d times, want 1", n)
	}

	got, ok := cv.Get(ctx, 1)
	if !ok || !approxEqual(got, vec) {
		t.Errorf("Get = %v, %v", got, ok)
	}

	if _, ok := cv.Ensure(ctx, 99); ok {
		t.Error("Ensure for unknown category should report absent")
	}
}

func TestCategoryVectorsEnsureFailureLeavesUnset(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	catalog.PutCategory(core.Category{ID: 1, Name: "Party"})

	emb := newFakeEmbedder()
	emb.errs["Party"] = core.Wrap(core.ErrRateLimitExceeded, nil, "test")
	cv := NewCategoryVectors(catalog, emb, 1, zerolog.Nop())

	if _, ok := cv.Ensure(ctx, 1); ok {
		t.Fatal("Ensure should report absent on embedder failure")
	}
	cat, _ := catalog.GetCategory(ctx, 1)
	if cat.HasEmbedding() {
		t.Error("failed fetch must leave the stored value unset")
	}
}

func TestCategoryVectorsMalformedIsRefetched(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	catalog.PutCategory(core.Category{ID: 1, Name: "Puzzle", Embedding: []byte("not-json")})

	emb := newFakeEmbedder()
	emb.vectors["Puzzle"] = []float64{1, 1}
	cv := NewCategoryVectors(catalog, emb, 1, zerolog.Nop())

	if _, ok := cv.Get(ctx, 1); ok {
		t.Fatal("malformed stored vector should read as absent")
	}
	if vec, ok := cv.Ensure(ctx, 1); !ok || !approxEqual(vec, []float64{1, 1}) {
		t.Fatalf("Ensure = %v, %v", vec, ok)
	}
}

func TestEnsureAllContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	catalog.PutCategory(core.Category{ID: 1, Name: "A", Embedding: mustEncode(t, []float64{1, 0})})
	catalog.PutCategory(core.Category{ID: 2, Name: "B"})
	catalog.PutCategory(core.Category{ID: 3, Name: "C"})
	catalog.PutCategory(core.Category{ID: 4, Name: "D"})

	emb := newFakeEmbedder()
	emb.vectors["B"] = []float64{0, 1}
	emb.errs["C"] = core.Wrap(core.ErrTransportFailure, nil, "status 500")
	emb.vectors["D"] = []float64{1, 1}
	cv := NewCategoryVectors(catalog, emb, 3, zerolog.Nop())

	report, err := cv.EnsureAll(ctx)
	if err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	want := EnsureReport{Total: 4, Cached: 1, Fetched: 2, Failed: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}
	if emb.callCount("A") != 0 {
		t.Error("cached category must not be fetched")
	}
	for _, id := range []int64{2, 4} {
		if _, ok := cv.Get(ctx, id); !ok {
			t.Errorf("category %d should be stored", id)
		}
	}
	if _, ok := cv.Get(ctx, 3); ok {
		t.Error("failed category should stay unset")
	}
}

func TestComputeAndStore(t *testing.T) {
	ctx := context.Background()

	t.Run("mean of category vectors", func(t *testing.T) {
		catalog := scenarioCatalog(t)
		ip := NewItemProfiles(catalog, NewCategoryVectors(catalog, newFakeEmbedder(), 1, zerolog.Nop()), ItemOptions{}, zerolog.Nop())

		vec, err := ip.ComputeAndStoreByID(ctx, 10)
		if err != nil {
			t.Fatalf("ComputeAndStore: %v", err)
		}
		if !approxEqual(vec, []float64{0.5, 0.5}) {
			t.Errorf("average = %v, want [0.5 0.5]", vec)
		}
		if got := storedItemVector(t, catalog, 10); !approxEqual(got, []float64{0.5, 0.5}) {
			t.Errorf("stored = %v", got)
		}
	})

	t.Run("missing categories are skipped", func(t *testing.T) {
		catalog := scenarioCatalog(t)
		catalog.PutCategory(core.Category{ID: 3, Name: "C"})
		catalog.PutItem(core.CatalogItem{ID: 30, CategoryIDs: []int64{1, 3, 404}})
		ip := NewItemProfiles(catalog, NewCategoryVectors(catalog, newFakeEmbedder(), 1, zerolog.Nop()), ItemOptions{}, zerolog.Nop())

		vec, err := ip.ComputeAndStoreByID(ctx, 30)
		if err != nil {
			t.Fatal(err)
		}
		if !approxEqual(vec, []float64{1, 0}) {
			t.Errorf("average = %v, want [1 0]", vec)
		}
	})

	t.Run("no category vectors leaves average unset", func(t *testing.T) {
		catalog := scenarioCatalog(t)
		catalog.PutCategory(core.Category{ID: 3, Name: "C"})
		catalog.PutItem(core.CatalogItem{ID: 30, CategoryIDs: []int64{3}})
		catalog.PutItem(core.CatalogItem{ID: 31})
		ip := NewItemProfiles(catalog, NewCategoryVectors(catalog, newFakeEmbedder(), 1, zerolog.Nop()), ItemOptions{}, zerolog.Nop())

		for _, id := range []int64{30, 31} {
			vec, err := ip.ComputeAndStoreByID(ctx, id)
			if err != nil || vec != nil {
				t.Errorf("item %d: got %v, %v; want nil, nil", id, vec, err)
			}
			if got := storedItemVector(t, catalog, id); got != nil {
				t.Errorf("item %d should not be zero-filled, got %v", id, got)
			}
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		catalog := scenarioCatalog(t)
		catalog.PutCategory(core.Category{ID: 3, Name: "C", Embedding: mustEncode(t, []float64{1, 2, 3})})
		catalog.PutItem(core.CatalogItem{ID: 30, CategoryIDs: []int64{1, 3}})
		ip := NewItemProfiles(catalog, NewCategoryVectors(catalog, newFakeEmbedder(), 1, zerolog.Nop()), ItemOptions{}, zerolog.Nop())

		_, err := ip.ComputeAndStoreByID(ctx, 30)
		if !core.IsDimensionMismatch(err) {
			t.Fatalf("err = %v, want dimension mismatch", err)
		}
		if !errors.Is(err, core.ErrDimensionMismatch) {
			t.Error("errors.Is should match the sentinel")
		}
		if got := storedItemVector(t, catalog, 30); got != nil {
			t.Errorf("mismatched item must not be stored, got %v", got)
		}
	})
}

func TestComputeAndStoreRange(t *testing.T) {
	ctx := context.Background()
	catalog := scenarioCatalog(t)
	catalog.PutCategory(core.Category{ID: 3, Name: "C", Embedding: mustEncode(t, []float64{1, 2, 3})})
	catalog.PutItem(core.CatalogItem{ID: 25, CategoryIDs: []int64{1, 3}}) // 维度不一致
	catalog.PutItem(core.CatalogItem{ID: 26})                             // 无类目
	catalog.PutItem(core.CatalogItem{ID: 40, CategoryIDs: []int64{2}})

	ip := NewItemProfiles(catalog, NewCategoryVectors(catalog, newFakeEmbedder(), 1, zerolog.Nop()), ItemOptions{Workers: 4}, zerolog.Nop())

	report, err := ip.ComputeAndStoreRange(ctx, 11, 3)
	if err != nil {
		t.Fatal(err)
	}
	if report.Selected != 3 || report.Stored != 1 || report.Failed != 1 || report.Incomplete != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.NextStartID != 27 {
		t.Errorf("NextStartID = %d, want 27", report.NextStartID)
	}
	if len(report.Failures) != 1 || report.Failures[0].ItemID != 25 || !core.IsDimensionMismatch(report.Failures[0].Err) {
		t.Errorf("failures = %+v", report.Failures)
	}
	if storedItemVector(t, catalog, 10) != nil {
		t.Error("item below startID must not be touched")
	}
	if storedItemVector(t, catalog, 40) != nil {
		t.Error("item beyond batch must not be touched")
	}

	next, err := ip.ComputeAndStoreRange(ctx, report.NextStartID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if next.Selected != 1 || next.Stored != 1 || !next.Done(3) {
		t.Errorf("second batch = %+v", next)
	}

	empty, err := ip.ComputeAndStoreRange(ctx, 1000, 3)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Selected != 0 || empty.NextStartID != 1000 {
		t.Errorf("empty batch = %+v", empty)
	}
}

func TestComputeAndStoreRangeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	catalog := scenarioCatalog(t)
	ip := NewItemProfiles(catalog, NewCategoryVectors(catalog, newFakeEmbedder(), 1, zerolog.Nop()), ItemOptions{}, zerolog.Nop())

	snapshot := func() map[int64][]byte {
		out := make(map[int64][]byte)
		items, _ := catalog.ItemsInRange(ctx, 0, 0)
		for _, it := range items {
			out[it.ID] = it.AverageEmbedding
		}
		return out
	}

	first, err := ip.ComputeAndStoreRange(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	afterFirst := snapshot()

	second, err := ip.ComputeAndStoreRange(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	afterSecond := snapshot()

	if first.Stored != second.Stored || first.NextStartID != second.NextStartID {
		t.Errorf("reports differ: %+v vs %+v", first, second)
	}
	for id, v := range afterFirst {
		if !bytes.Equal(v, afterSecond[id]) {
			t.Errorf("item %d changed between runs: %s vs %s", id, v, afterSecond[id])
		}
	}
}

func TestUserProfilesBuild(t *testing.T) {
	ctx := context.Background()

	newBuilder := func(catalog *store.MemoryCatalog) *UserProfiles {
		return NewUserProfiles(catalog, NewItemVectorCache(catalog, nil, 0, zerolog.Nop()), zerolog.Nop())
	}

	t.Run("weighted sum", func(t *testing.T) {
		catalog := store.NewMemoryCatalog()
		catalog.PutItem(core.CatalogItem{ID: 1, AverageEmbedding: mustEncode(t, []float64{1, 0})})
		catalog.PutItem(core.CatalogItem{ID: 2, AverageEmbedding: mustEncode(t, []float64{0, 1})})
		catalog.PutItem(core.CatalogItem{ID: 3, AverageEmbedding: mustEncode(t, []float64{1, 1})})
		catalog.PutItem(core.CatalogItem{ID: 4, AverageEmbedding: mustEncode(t, []float64{2, 2})})
		catalog.PutItem(core.CatalogItem{ID: 5}) // 无向量，跳过
		catalog.AddJudgment(core.Judgment{UserID: 7, ItemID: 1, Status: core.ReviewPerfect})
		catalog.AddJudgment(core.Judgment{UserID: 7, ItemID: 2, Status: core.ReviewGood})
		catalog.AddJudgment(core.Judgment{UserID: 7, ItemID: 3, Status: core.ReviewBad})
		catalog.AddJudgment(core.Judgment{UserID: 7, ItemID: 4, Status: core.ReviewNormal})
		catalog.AddJudgment(core.Judgment{UserID: 7, ItemID: 5, Status: core.ReviewPerfect})

		p, err := newBuilder(catalog).Build(ctx, 7)
		if err != nil {
			t.Fatal(err)
		}
		// 1.0*[1,0] + 0.7*[0,1] + 0.3*[1,1] + 0.5*[2,2]
		want := []float64{2.3, 2.0}
		if !approxEqual(p.Vector, want) {
			t.Errorf("Vector = %v, want %v", p.Vector, want)
		}
		if p.Used != 4 || len(p.Judged) != 5 {
			t.Errorf("Used = %d, Judged = %d", p.Used, len(p.Judged))
		}
	})

	t.Run("no judgments", func(t *testing.T) {
		_, err := newBuilder(store.NewMemoryCatalog()).Build(ctx, 1)
		if !core.IsNoJudgments(err) {
			t.Errorf("err = %v, want no judgments", err)
		}
	})

	t.Run("no resolvable embeddings", func(t *testing.T) {
		catalog := store.NewMemoryCatalog()
		catalog.PutItem(core.CatalogItem{ID: 1})
		catalog.PutItem(core.CatalogItem{ID: 2, AverageEmbedding: []byte("{bad")})
		catalog.AddJudgment(core.Judgment{UserID: 1, ItemID: 1, Status: core.ReviewGood})
		catalog.AddJudgment(core.Judgment{UserID: 1, ItemID: 2, Status: core.ReviewGood})
		catalog.AddJudgment(core.Judgment{UserID: 1, ItemID: 404, Status: core.ReviewGood})

		p, err := newBuilder(catalog).Build(ctx, 1)
		if !core.IsNoJudgments(err) {
			t.Fatalf("err = %v, want no judgments", err)
		}
		if len(p.Judged) != 3 {
			t.Errorf("Judged = %v, want all three items", p.Judged)
		}
	})

	t.Run("dimension mismatch skipped", func(t *testing.T) {
		catalog := store.NewMemoryCatalog()
		catalog.PutItem(core.CatalogItem{ID: 1, AverageEmbedding: mustEncode(t, []float64{1, 0})})
		catalog.PutItem(core.CatalogItem{ID: 2, AverageEmbedding: mustEncode(t, []float64{1, 0, 0})})
		catalog.AddJudgment(core.Judgment{UserID: 1, ItemID: 1, Status: core.ReviewGood})
		catalog.AddJudgment(core.Judgment{UserID: 1, ItemID: 2, Status: core.ReviewGood})

		p, err := newBuilder(catalog).Build(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if p.Used != 1 || !approxEqual(p.Vector, []float64{0.7, 0}) {
			t.Errorf("profile = %+v", p)
		}
	})
}

func TestItemVectorCacheShared(t *testing.T) {
	ctx := context.Background()
	catalog := scenarioCatalog(t)
	shared := store.NewMemoryStore()
	defer shared.Close()

	cache := NewItemVectorCache(catalog, shared, time.Minute, zerolog.Nop())
	ip := NewItemProfiles(catalog, NewCategoryVectors(catalog, newFakeEmbedder(), 1, zerolog.Nop()), ItemOptions{Cache: cache}, zerolog.Nop())

	if _, err := ip.ComputeAndStoreByID(ctx, 20); err != nil {
		t.Fatal(err)
	}

	vec, err := cache.Scope().Lookup(ctx, 20)
	if err != nil || !approxEqual(vec, []float64{1, 0}) {
		t.Fatalf("Lookup = %v, %v", vec, err)
	}
	if _, err := shared.Get(ctx, "itemvec:20"); err != nil {
		t.Fatalf("shared entry not written: %v", err)
	}

	// 类目关联变化后重新计算：写入即失效共享缓存
	catalog.PutItem(core.CatalogItem{ID: 20, Name: "Y", CategoryIDs: []int64{2}})
	if _, err := ip.ComputeAndStoreByID(ctx, 20); err != nil {
		t.Fatal(err)
	}
	if _, err := shared.Get(ctx, "itemvec:20"); !core.IsStoreNotFound(err) {
		t.Fatalf("shared entry should be invalidated, err = %v", err)
	}
	vec, err = cache.Scope().Lookup(ctx, 20)
	if err != nil || !approxEqual(vec, []float64{0, 1}) {
		t.Errorf("Lookup after invalidation = %v, %v", vec, err)
	}
}

// racingCatalog 在 GetItem 读出旧值之后、返回之前执行 afterRead，模拟并发回填。
type racingCatalog struct {
	*store.MemoryCatalog
	afterRead func()
}

func (c *racingCatalog) GetItem(ctx context.Context, id int64) (*core.CatalogItem, error) {
	item, err := c.MemoryCatalog.GetItem(ctx, id)
	if c.afterRead != nil {
		c.afterRead()
		c.afterRead = nil
	}
	return item, err
}

func TestItemVectorCacheSkipsStaleWrite(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryCatalog()
	base.PutItem(core.CatalogItem{ID: 7, AverageEmbedding: []byte("[1,0]")})
	shared := store.NewMemoryStore()
	defer shared.Close()

	catalog := &racingCatalog{MemoryCatalog: base}
	cache := NewItemVectorCache(catalog, shared, time.Minute, zerolog.Nop())
	catalog.afterRead = func() {
		if err := base.SaveItemEmbedding(ctx, 7, []byte("[0,1]")); err != nil {
			t.Error(err)
		}
		if err := cache.Invalidate(ctx, 7); err != nil {
			t.Error(err)
		}
	}

	vec, err := cache.Scope().Lookup(ctx, 7)
	if err != nil || !approxEqual(vec, []float64{1, 0}) {
		t.Fatalf("first Lookup = %v, %v", vec, err)
	}
	if _, err := shared.Get(ctx, "itemvec:7"); !core.IsStoreNotFound(err) {
		t.Fatalf("stale vector written back to shared cache, err = %v", err)
	}

	vec, err = cache.Scope().Lookup(ctx, 7)
	if err != nil || !approxEqual(vec, []float64{0, 1}) {
		t.Errorf("Lookup after backfill = %v, %v", vec, err)
	}
	if data, err := shared.Get(ctx, "itemvec:7"); err != nil || string(data) != "[0,1]" {
		t.Errorf("shared entry = %s, %v", data, err)
	}
}

func TestItemVectorScopeErrors(t *testing.T) {
	ctx := context.Background()
	catalog := store.NewMemoryCatalog()
	catalog.PutItem(core.CatalogItem{ID: 1})
	catalog.PutItem(core.CatalogItem{ID: 2, AverageEmbedding: []byte("[1,")})
	scope := NewItemVectorCache(catalog, nil, 0, zerolog.Nop()).Scope()

	if _, err := scope.Lookup(ctx, 1); !core.IsEmptyEmbedding(err) {
		t.Errorf("unset embedding: err = %v", err)
	}
	if _, err := scope.Lookup(ctx, 2); !core.IsMalformedEmbedding(err) {
		t.Errorf("malformed embedding: err = %v", err)
	}
	if _, err := scope.Lookup(ctx, 3); !core.IsStoreNotFound(err) {
		t.Errorf("missing item: err = %v", err)
	}
}

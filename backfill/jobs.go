package backfill

import (
	"context"
	"fmt"

	"github.com/rushteam/embedrec/profile"
)

// Job 是一个回填任务。任务类型固定为本包定义的几种。
type Job interface {
	Name() string
	run(ctx context.Context, r *Runner) (any, error)
}

// CategoryJob 确保单个类目有向量。
type CategoryJob struct {
	ID int64
}

func (j CategoryJob) Name() string { return fmt.Sprintf("category:%d", j.ID) }

func (j CategoryJob) run(ctx context.Context, r *Runner) (any, error) {
	if _, ok := r.categories.Ensure(ctx, j.ID); !ok {
		return nil, fmt.Errorf("category %d left without embedding", j.ID)
	}
	return nil, nil
}

// AllCategoriesJob 确保全部类目有向量。
type AllCategoriesJob struct{}

func (AllCategoriesJob) Name() string { return "categories" }

func (AllCategoriesJob) run(ctx context.Context, r *Runner) (any, error) {
	return r.categories.EnsureAll(ctx)
}

// ItemRangeJob 计算 ID >= StartID 的一批物品平均向量。
type ItemRangeJob struct {
	StartID   int64
	BatchSize int
}

func (j ItemRangeJob) Name() string {
	return fmt.Sprintf("items:%d+%d", j.StartID, j.BatchSize)
}

func (j ItemRangeJob) run(ctx context.Context, r *Runner) (any, error) {
	r.rangeMu.Lock()
	defer r.rangeMu.Unlock()
	return r.items.ComputeAndStoreRange(ctx, j.StartID, j.BatchSize)
}

// ItemSweepJob 从 StartID 开始按批推进游标，直到目录末尾。
type ItemSweepJob struct {
	StartID   int64
	BatchSize int
}

// SweepReport 是 ItemSweepJob 的汇总结果。
type SweepReport struct {
	Batches    int   `json:"batches"`
	Selected   int   `json:"selected"`
	Stored     int   `json:"stored"`
	Incomplete int   `json:"incomplete"`
	Failed     int   `json:"failed"`
	NextID     int64 `json:"next_id"`
}

func (j ItemSweepJob) Name() string { return fmt.Sprintf("items:sweep@%d", j.StartID) }

func (j ItemSweepJob) run(ctx context.Context, r *Runner) (any, error) {
	r.rangeMu.Lock()
	defer r.rangeMu.Unlock()

	batch := j.BatchSize
	if batch <= 0 {
		batch = r.items.BatchSize()
	}

	report := SweepReport{NextID: j.StartID}
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rr, err := r.items.ComputeAndStoreRange(ctx, report.NextID, batch)
		if err != nil {
			return report, err
		}
		report.add(rr)
		if rr.Done(batch) {
			return report, nil
		}
	}
}

func (s *SweepReport) add(rr profile.RangeReport) {
	s.Batches++
	s.Selected += rr.Selected
	s.Stored += rr.Stored
	s.Incomplete += rr.Incomplete
	s.Failed += rr.Failed
	s.NextID = rr.NextStartID
}

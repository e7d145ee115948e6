// Package backfill 在后台执行类目向量与物品平均向量的回填，不阻塞推荐请求。
//
// Runner 由一个有界队列、若干消费协程与可选的 cron 调度组成。
// 物品区间任务共用一把锁串行执行，避免重叠区间被并发写入。
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/rushteam/embedrec/metrics"
	"github.com/rushteam/embedrec/profile"
)

var (
	ErrQueueFull = errors.New("backfill: queue is full")
	ErrStopped   = errors.New("backfill: runner stopped")
)

// CategoryBackfiller 由 profile.CategoryVectors 实现。
type CategoryBackfiller interface {
	Ensure(ctx context.Context, categoryID int64) ([]float64, bool)
	EnsureAll(ctx context.Context) (profile.EnsureReport, error)
}

// ItemBackfiller 由 profile.ItemProfiles 实现。
type ItemBackfiller interface {
	ComputeAndStoreRange(ctx context.Context, startID int64, batchSize int) (profile.RangeReport, error)
	BatchSize() int
}

// Options 是 Runner 的参数。
type Options struct {
	Workers   int
	QueueSize int

	// CategoryCron / ItemCron 为空时不启用对应的定时回填
	CategoryCron string
	ItemCron     string

	// SweepBatchSize 是定时物品回填的批大小，<= 0 使用 ItemBackfiller.BatchSize()
	SweepBatchSize int

	// OnDone 在每个任务结束后调用（可选）
	OnDone func(Result)
}

// Result 是一个任务的执行结果。
type Result struct {
	Job    string
	Report any
	Err    error
	Took   time.Duration
}

type Runner struct {
	categories CategoryBackfiller
	items      ItemBackfiller
	opts       Options
	logger     zerolog.Logger

	queue   chan Job
	rangeMu sync.Mutex
	cron    *cron.Cron

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRunner(categories CategoryBackfiller, items ItemBackfiller, opts Options, logger zerolog.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Runner{
		categories: categories,
		items:      items,
		opts:       opts,
		logger:     logger,
		queue:      make(chan Job, opts.QueueSize),
		cron:       cron.New(),
	}
}

// Start 启动消费协程与定时任务。ctx 取消时正在执行的任务随之取消。
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if r.started {
		return nil
	}

	if r.opts.CategoryCron != "" {
		if _, err := r.cron.AddFunc(r.opts.CategoryCron, func() { r.schedule(AllCategoriesJob{}) }); err != nil {
			return fmt.Errorf("category cron %q: %w", r.opts.CategoryCron, err)
		}
	}
	if r.opts.ItemCron != "" {
		sweep := ItemSweepJob{BatchSize: r.opts.SweepBatchSize}
		if _, err := r.cron.AddFunc(r.opts.ItemCron, func() { r.schedule(sweep) }); err != nil {
			return fmt.Errorf("item cron %q: %w", r.opts.ItemCron, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.workerLoop(runCtx, i+1)
	}
	r.cron.Start()
	r.started = true

	r.logger.Info().Int("workers", r.opts.Workers).Int("queue_size", r.opts.QueueSize).
		Str("category_cron", r.opts.CategoryCron).Str("item_cron", r.opts.ItemCron).
		Msg("backfill runner started")
	return nil
}

// Submit 将任务放入队列，队列已满时返回 ErrQueueFull（不阻塞）。
func (r *Runner) Submit(job Job) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrStopped
	}
	select {
	case r.queue <- job:
		metrics.BackfillQueueDepth.Set(float64(len(r.queue)))
		r.logger.Debug().Str("job", job.Name()).Msg("backfill job queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Run 在当前协程同步执行任务（CLI 使用）。
func (r *Runner) Run(ctx context.Context, job Job) Result {
	start := time.Now()
	report, err := job.run(ctx, r)
	res := Result{Job: job.Name(), Report: report, Err: err, Took: time.Since(start)}

	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Warn().Err(err)
	}
	ev.Str("job", res.Job).Dur("took", res.Took).Interface("report", report).Msg("backfill job finished")

	if r.opts.OnDone != nil {
		r.opts.OnDone(res)
	}
	return res
}

// Stop 停止定时任务并关闭队列，等待已排队的任务执行完。
// ctx 到期时取消仍在执行的任务并返回 ctx.Err()。
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if !started {
		return nil
	}

	<-r.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.logger.Info().Msg("backfill runner stopped")
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) schedule(job Job) {
	if err := r.Submit(job); err != nil {
		r.logger.Warn().Err(err).Str("job", job.Name()).Msg("scheduled backfill skipped")
	}
}

func (r *Runner) workerLoop(ctx context.Context, id int) {
	defer r.wg.Done()
	for job := range r.queue {
		metrics.BackfillQueueDepth.Set(float64(len(r.queue)))
		r.safeRun(ctx, id, job)
	}
}

func (r *Runner) safeRun(ctx context.Context, id int, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Int("worker", id).Str("job", job.Name()).Interface("panic", rec).Msg("backfill job panicked")
		}
	}()
	r.Run(ctx, job)
}

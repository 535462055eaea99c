package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeventeLantos/campaign-messaging/internal/model"
)

// Store is the slice of the campaign store the worker drives.
type Store interface {
	ListActiveCampaigns(ctx context.Context) ([]string, error)
	DequeueOne(ctx context.Context, campaignID string) (*model.Message, error)
}

// BatchProcessor dispatches one campaign's batch and blocks until every
// message has a terminal outcome.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, campaignID string, msgs []model.Message) (sent, failed int)
}

// Options tune the worker loop. Zero durations and counts fall back to
// the defaults below.
type Options struct {
	// BatchSize is the maximum number of messages pulled per campaign
	// per cycle.
	BatchSize int
	// MaxConcurrentBatches caps how many campaigns are processed in one
	// cycle; campaigns beyond the cap wait for the next cycle.
	MaxConcurrentBatches int
	// CycleDelay is an optional pause after every busy cycle.
	CycleDelay time.Duration
	// IdleWait is the sleep after an empty cycle.
	IdleWait time.Duration
	// LongIdleWait is the sleep once EmptyCycleLimit consecutive empty
	// cycles have accumulated.
	LongIdleWait time.Duration
	// EmptyCycleLimit is the number of consecutive empty cycles before
	// the worker switches to LongIdleWait.
	EmptyCycleLimit int
	// QuietPause is the sleep after a cycle where active campaigns
	// yielded no messages and no CycleDelay is configured.
	QuietPause time.Duration
}

const (
	defaultIdleWait     = time.Second
	defaultLongIdleWait = 5 * time.Second
	defaultEmptyLimit   = 10
	defaultQuietPause   = 500 * time.Millisecond
)

// Worker repeatedly discovers active campaigns, pulls a bounded batch
// from each and runs the batches concurrently. It has no terminal state
// of its own: Stop is the only exit, and a stop lets the in-flight
// cycle finish rather than abandoning it. An unexpected fault in the
// cycle body is fatal; the worker logs it and stays stopped until the
// process owner restarts it.
type Worker struct {
	store Store
	proc  BatchProcessor
	opts  Options

	running atomic.Bool
	fatal   atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	emptyCycles int
}

func New(store Store, proc BatchProcessor, opts Options) (*Worker, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if proc == nil {
		return nil, errors.New("processor must not be nil")
	}
	if opts.BatchSize <= 0 {
		return nil, errors.New("batch size must be > 0")
	}
	if opts.MaxConcurrentBatches <= 0 {
		return nil, errors.New("max concurrent batches must be > 0")
	}

	if opts.IdleWait <= 0 {
		opts.IdleWait = defaultIdleWait
	}
	if opts.LongIdleWait <= 0 {
		opts.LongIdleWait = defaultLongIdleWait
	}
	if opts.EmptyCycleLimit <= 0 {
		opts.EmptyCycleLimit = defaultEmptyLimit
	}
	if opts.QuietPause <= 0 {
		opts.QuietPause = defaultQuietPause
	}

	return &Worker{
		store: store,
		proc:  proc,
		opts:  opts,
		done:  make(chan struct{}),
	}, nil
}

func (w *Worker) Start() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running.Store(true)
	w.fatal.Store(false)
	w.emptyCycles = 0

	go w.run(ctx)
	return true
}

// Stop cancels the loop and waits for the in-flight cycle, including
// its dispatches, to finish.
func (w *Worker) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running.Load() {
		return false
	}

	w.cancel()
	<-w.done
	w.running.Store(false)

	slog.Info("worker stopped")
	return true
}

func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker cycle panicked, worker terminated", "panic", r)
		}
	}()

	slog.Info("worker started",
		"batch_size", w.opts.BatchSize,
		"max_concurrent_batches", w.opts.MaxConcurrentBatches,
		"cycle_delay", w.opts.CycleDelay.String(),
	)

	for {
		if ctx.Err() != nil {
			slog.Info("worker stopping")
			return
		}
		w.cycle(ctx)
		if w.fatal.Load() {
			slog.Error("worker terminated after batch fault")
			return
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	campaigns, err := w.store.ListActiveCampaigns(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Store trouble is treated like an empty cycle: back off and
		// try again, nothing is lost.
		slog.Error("listing active campaigns failed", "error", err)
		w.idle(ctx)
		return
	}

	if len(campaigns) == 0 {
		w.idle(ctx)
		return
	}
	w.emptyCycles = 0

	if len(campaigns) > w.opts.MaxConcurrentBatches {
		campaigns = campaigns[:w.opts.MaxConcurrentBatches]
	}

	// Batches already pulled off the queue must finish even when the
	// worker is being stopped, so dispatch runs detached from the
	// loop's cancellation.
	batchCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	dispatched := 0
	for _, id := range campaigns {
		batch := w.dequeueBatch(ctx, id)
		if len(batch) == 0 {
			continue
		}
		dispatched += len(batch)

		wg.Add(1)
		go func(id string, batch []model.Message) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("batch processing panicked", "campaign", id, "panic", r)
					w.fatal.Store(true)
				}
			}()
			w.proc.ProcessBatch(batchCtx, id, batch)
		}(id, batch)
	}
	wg.Wait()

	switch {
	case w.opts.CycleDelay > 0:
		w.sleep(ctx, w.opts.CycleDelay)
	case dispatched == 0:
		w.sleep(ctx, w.opts.QuietPause)
	}
}

// dequeueBatch pops up to BatchSize messages, stopping early when the
// queue empties.
func (w *Worker) dequeueBatch(ctx context.Context, campaignID string) []model.Message {
	batch := make([]model.Message, 0, w.opts.BatchSize)
	for len(batch) < w.opts.BatchSize {
		msg, err := w.store.DequeueOne(ctx, campaignID)
		if err != nil {
			slog.Error("dequeue failed", "campaign", campaignID, "error", err)
			break
		}
		if msg == nil {
			break
		}
		batch = append(batch, *msg)
	}
	return batch
}

func (w *Worker) idle(ctx context.Context) {
	w.emptyCycles++
	if w.emptyCycles >= w.opts.EmptyCycleLimit {
		w.emptyCycles = 0
		w.sleep(ctx, w.opts.LongIdleWait)
		return
	}
	w.sleep(ctx, w.opts.IdleWait)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

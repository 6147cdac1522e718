// Package scheduler drives the three independent periodic tasks of
// C11: batch clustering, incremental assignment, and matrix rebuild.
// Grounded directly on the teacher's mempool.Poller.Run (ticker +
// select loop with a secondary cleanup ticker) and
// scanner.BlockScanner (atomic.Bool non-overlap guard, per-item
// cancellation checkpoints, periodic progress logging).
package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// TaskFunc is one scheduled unit of work. It must check ctx
// periodically at well-defined checkpoints (between endpoints,
// between clusters, between matrix cells) and return promptly once
// ctx is done.
type TaskFunc func(ctx context.Context) error

// UnassignedFraction reports the current fraction of eligible
// endpoints with no SGT assignment, used to trigger an out-of-cycle
// batch clustering run.
type UnassignedFraction func() float64

// Config holds the periods and thresholds for all three tasks, with
// the documented defaults from §4.11.
type Config struct {
	BatchClusterPeriod      time.Duration // default 24h
	UnassignedTriggerFrac   float64       // default 0.2
	UnassignedCheckPeriod   time.Duration // how often to poll UnassignedFraction, default 5m
	IncrementalPeriod       time.Duration // default 5m
	MatrixRebuildPeriod     time.Duration // default 15m
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchClusterPeriod:    24 * time.Hour,
		UnassignedTriggerFrac: 0.2,
		UnassignedCheckPeriod: 5 * time.Minute,
		IncrementalPeriod:     5 * time.Minute,
		MatrixRebuildPeriod:   15 * time.Minute,
	}
}

// Scheduler owns one task instance per kind and runs them as
// independent goroutines against a shared context. Each kind is
// guarded against overlapping runs by its own atomic.Bool, following
// scanner.BlockScanner's isRunning guard; a tick arriving while the
// previous run of that kind is still executing is skipped and counted
// rather than queued.
type Scheduler struct {
	cfg Config

	batchFn       TaskFunc
	incrementalFn TaskFunc
	matrixFn      TaskFunc
	unassigned    UnassignedFraction

	batchRunning       atomic.Bool
	incrementalRunning atomic.Bool
	matrixRunning      atomic.Bool

	batchSkipped       atomic.Int64
	incrementalSkipped atomic.Int64
	matrixSkipped      atomic.Int64
}

// New builds a Scheduler. Any of batchFn/incrementalFn/matrixFn may be
// nil to disable that task (e.g. in tests exercising only one kind).
func New(cfg Config, batchFn, incrementalFn, matrixFn TaskFunc, unassigned UnassignedFraction) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		batchFn:       batchFn,
		incrementalFn: incrementalFn,
		matrixFn:      matrixFn,
		unassigned:    unassigned,
	}
}

// Run blocks until ctx is cancelled, driving all three tasks on their
// independent tickers.
func (s *Scheduler) Run(ctx context.Context) {
	var batchTicker, unassignedTicker, incrementalTicker, matrixTicker *time.Ticker

	if s.batchFn != nil {
		batchTicker = time.NewTicker(s.cfg.BatchClusterPeriod)
		defer batchTicker.Stop()
		if s.unassigned != nil {
			unassignedTicker = time.NewTicker(s.cfg.UnassignedCheckPeriod)
			defer unassignedTicker.Stop()
		}
	}
	if s.incrementalFn != nil {
		incrementalTicker = time.NewTicker(s.cfg.IncrementalPeriod)
		defer incrementalTicker.Stop()
	}
	if s.matrixFn != nil {
		matrixTicker = time.NewTicker(s.cfg.MatrixRebuildPeriod)
		defer matrixTicker.Stop()
	}

	batchC := tickerChan(batchTicker)
	unassignedC := tickerChan(unassignedTicker)
	incrementalC := tickerChan(incrementalTicker)
	matrixC := tickerChan(matrixTicker)

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopping")
			return
		case <-batchC:
			s.runGuarded("batch clustering", &s.batchRunning, &s.batchSkipped, s.batchFn, ctx)
		case <-unassignedC:
			if s.unassigned() >= s.cfg.UnassignedTriggerFrac {
				log.Printf("scheduler: unassigned fraction over threshold, triggering batch clustering")
				s.runGuarded("batch clustering (triggered)", &s.batchRunning, &s.batchSkipped, s.batchFn, ctx)
			}
		case <-incrementalC:
			s.runGuarded("incremental assignment", &s.incrementalRunning, &s.incrementalSkipped, s.incrementalFn, ctx)
		case <-matrixC:
			s.runGuarded("matrix rebuild", &s.matrixRunning, &s.matrixSkipped, s.matrixFn, ctx)
		}
	}
}

// runGuarded launches fn in its own goroutine if no run of this kind
// is already in progress; otherwise it increments the skip counter.
func (s *Scheduler) runGuarded(name string, running *atomic.Bool, skipped *atomic.Int64, fn TaskFunc, ctx context.Context) {
	if fn == nil {
		return
	}
	if !running.CompareAndSwap(false, true) {
		skipped.Add(1)
		log.Printf("scheduler: %s already running, skipping this tick (skipped %d total)", name, skipped.Load())
		return
	}
	go func() {
		defer running.Store(false)
		start := time.Now()
		if err := fn(ctx); err != nil {
			log.Printf("scheduler: %s failed after %s: %v", name, time.Since(start), err)
			return
		}
		log.Printf("scheduler: %s completed in %s", name, time.Since(start))
	}()
}

// SkipCounts reports how many ticks of each kind were skipped due to
// an overlapping run, for observability.
func (s *Scheduler) SkipCounts() (batch, incremental, matrix int64) {
	return s.batchSkipped.Load(), s.incrementalSkipped.Load(), s.matrixSkipped.Load()
}

func tickerChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

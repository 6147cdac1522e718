package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	var runs atomic.Int64
	block := make(chan struct{})
	started := make(chan struct{}, 1)

	slow := func(ctx context.Context) error {
		runs.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}

	cfg := Config{
		BatchClusterPeriod:    20 * time.Millisecond,
		UnassignedCheckPeriod: time.Hour,
		IncrementalPeriod:     time.Hour,
		MatrixRebuildPeriod:   time.Hour,
	}
	s := New(cfg, slow, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	go s.Run(ctx)

	<-started
	time.Sleep(60 * time.Millisecond) // several more ticks would fire while slow() blocks
	close(block)
	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)

	batchSkipped, _, _ := s.SkipCounts()
	if batchSkipped == 0 {
		t.Error("expected at least one overlapping tick to be skipped")
	}
	if runs.Load() != 1 {
		t.Errorf("expected exactly 1 run to actually execute while blocked, got %d", runs.Load())
	}
}

func TestScheduler_UnassignedFractionTriggersBatch(t *testing.T) {
	var triggered atomic.Bool
	batchFn := func(ctx context.Context) error {
		triggered.Store(true)
		return nil
	}
	cfg := Config{
		BatchClusterPeriod:    time.Hour,
		UnassignedCheckPeriod: 10 * time.Millisecond,
		UnassignedTriggerFrac: 0.2,
		IncrementalPeriod:     time.Hour,
		MatrixRebuildPeriod:   time.Hour,
	}
	s := New(cfg, batchFn, nil, nil, func() float64 { return 0.9 })

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if !triggered.Load() {
		t.Error("expected high unassigned fraction to trigger a batch run")
	}
}

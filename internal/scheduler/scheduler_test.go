package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"delivery-platform/internal/shared/logger"
)

func TestRunOnceSkipsOverlappingRuns(t *testing.T) {
	s := New(logger.NewLogger("scheduler-test"))

	var runs atomic.Int32
	release := make(chan struct{})
	job := &Job{Name: "slow", Run: func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}}

	go s.runOnce(context.Background(), job)

	// wait for the first run to be in flight
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	// the overlapping tick is dropped, not queued
	s.runOnce(context.Background(), job)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	assert.Eventually(t, func() bool { return !job.inflight.Load() }, time.Second, time.Millisecond)

	// after the first run finishes the job can fire again
	s.runOnce(context.Background(), job)
	assert.Equal(t, int32(2), runs.Load())
}

func TestRunOnceAppliesTimeout(t *testing.T) {
	s := New(logger.NewLogger("scheduler-test"))

	var sawDeadline atomic.Bool
	job := &Job{Name: "timed", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(true)
		return ctx.Err()
	}}

	s.runOnce(context.Background(), job)
	assert.True(t, sawDeadline.Load())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	s := New(logger.NewLogger("scheduler-test"))

	var runs atomic.Int32
	s.Register("tick", time.Hour, 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	s.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

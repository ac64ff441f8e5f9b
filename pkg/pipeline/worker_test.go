package pipeline

import (
	"context"
	"sync/atomic"
	"testing"

	"voiceboost/pkg/models"
)

func TestWorkerPoolProcessesQueuedJobs(t *testing.T) {
	var processed atomic.Int32
	pool := NewWorkerPool(2, 8, func(context.Context, *models.Job) {
		processed.Add(1)
	})
	pool.Start(context.Background())

	for i := 0; i < 5; i++ {
		if !pool.TrySubmit(&models.Job{ID: "j"}) {
			t.Fatal("TrySubmit() rejected job with room in queue")
		}
	}
	pool.Stop()

	if got := processed.Load(); got != 5 {
		t.Fatalf("processed %d jobs, want 5", got)
	}
}

func TestWorkerPoolTrySubmitWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, func(context.Context, *models.Job) {})

	if !pool.TrySubmit(&models.Job{}) {
		t.Fatal("first TrySubmit() should fit")
	}
	if pool.TrySubmit(&models.Job{}) {
		t.Fatal("second TrySubmit() should report a full queue")
	}
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()
}

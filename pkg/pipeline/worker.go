package pipeline

import (
	"context"
	"sync"

	"voiceboost/pkg/models"
)

type WorkerPool struct {
	workers    int
	taskQueue  chan *models.Job
	workerFunc func(context.Context, *models.Job)
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

func NewWorkerPool(workers, queueSize int, workerFunc func(context.Context, *models.Job)) *WorkerPool {
	return &WorkerPool{
		workers:    workers,
		taskQueue:  make(chan *models.Job, queueSize),
		workerFunc: workerFunc,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx)
	}
}

// TrySubmit queues job without blocking. It reports false when the queue is
// full.
func (wp *WorkerPool) TrySubmit(job *models.Job) bool {
	select {
	case wp.taskQueue <- job:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for the workers. Jobs still queued are
// processed first unless the pool's context has been cancelled.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() { close(wp.taskQueue) })
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context) {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.taskQueue:
			if !ok {
				return
			}
			wp.workerFunc(ctx, job)

		case <-ctx.Done():
			return
		}
	}
}

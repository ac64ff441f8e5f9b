package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"voiceboost/pkg/config"
	"voiceboost/pkg/metrics"
	"voiceboost/pkg/models"
	"voiceboost/pkg/storage"
)

// Runner is the part of Orchestrator the Manager drives.
type Runner interface {
	Preflight(upload *models.Upload) error
	Run(ctx context.Context, upload *models.Upload, report ProgressFunc) (*models.Result, error)
}

// Manager accepts uploads, queues them as jobs and runs them on a worker
// pool. Live state lives in the job store; finished jobs are also written
// to the history store.
type Manager struct {
	config  config.PipelineConfig
	runner  Runner
	jobs    storage.JobStore
	history storage.HistoryStore
	metrics *metrics.Metrics
	logger  *zap.Logger

	pool *WorkerPool

	mu      sync.RWMutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(cfg config.PipelineConfig, runner Runner, jobs storage.JobStore, history storage.HistoryStore, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config:  cfg,
		runner:  runner,
		jobs:    jobs,
		history: history,
		metrics: m,
		logger:  logger,
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("manager already started")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.pool = NewWorkerPool(m.config.Workers, m.config.QueueSize, m.process)
	m.pool.Start(m.ctx)

	m.wg.Add(1)
	go m.runJanitor()

	m.started = true
	m.logger.Info("pipeline manager started",
		zap.Int("workers", m.config.Workers),
		zap.Int("queue_size", m.config.QueueSize))
	return nil
}

// Stop cancels running jobs and waits for workers and the janitor.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.cancel()
	m.mu.Unlock()

	m.pool.Stop()
	m.wg.Wait()
	m.abortUnfinished()
	m.logger.Info("pipeline manager stopped")
}

// abortUnfinished marks jobs the workers never picked up as aborted and
// records them in history.
func (m *Manager) abortUnfinished() {
	for _, job := range m.jobs.List() {
		if job.State.Terminal() {
			continue
		}
		err := m.jobs.Update(job.ID, func(j *models.Job) {
			j.State = models.StateAborted
			j.Error = UserMessage(ErrShuttingDown)
			j.ErrorKind = string(KindOf(ErrShuttingDown))
			j.FinishedAt = time.Now()
			j.Upload = nil
		})
		if err != nil {
			continue
		}
		m.logger.Warn("job abandoned at shutdown", zap.String("job_id", job.ID), zap.String("file", job.FileName))
		m.metrics.JobRejected("shutdown")
		if snapshot, err := m.jobs.Get(job.ID); err == nil {
			m.record(snapshot)
		}
	}
}

// Submit runs the pre-flight checks and queues the upload. A job that fails
// pre-flight is returned together with the error and is recorded in history
// but never queued.
func (m *Manager) Submit(upload *models.Upload) (*models.Job, error) {
	job := models.NewJob(upload)
	logger := m.logger.With(zap.String("job_id", job.ID), zap.String("file", upload.FileName))

	if err := m.runner.Preflight(upload); err != nil {
		job.State = models.StateAborted
		job.Error = UserMessage(err)
		job.ErrorKind = string(KindOf(err))
		job.FinishedAt = time.Now()
		job.Upload = nil
		logger.Warn("upload rejected", zap.String("kind", job.ErrorKind), zap.Error(err))
		m.record(job)
		m.metrics.JobRejected(job.ErrorKind)
		return job, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return nil, ErrShuttingDown
	}
	if err := m.jobs.Create(job); err != nil {
		return nil, err
	}
	if !m.pool.TrySubmit(job) {
		_ = m.jobs.Delete(job.ID)
		logger.Warn("pipeline queue is full")
		return nil, ErrQueueFull
	}

	m.metrics.ObserveUpload(upload.Size())
	logger.Info("job queued", zap.Int64("size", upload.Size()))
	return job.Clone(), nil
}

func (m *Manager) Job(id string) (*models.Job, error) {
	return m.jobs.Get(id)
}

func (m *Manager) History(limit int) ([]*models.JobRecord, error) {
	return m.history.List(limit)
}

func (m *Manager) process(ctx context.Context, job *models.Job) {
	logger := m.logger.With(zap.String("job_id", job.ID), zap.String("file", job.FileName))
	m.metrics.JobStarted()

	_ = m.jobs.Update(job.ID, func(j *models.Job) {
		j.StartedAt = time.Now()
	})

	// Terminal states are published below together with the result or error,
	// so a reader never sees presented without a result.
	result, err := m.runner.Run(ctx, job.Upload, func(state models.State, p models.Progress) {
		_ = m.jobs.Update(job.ID, func(j *models.Job) {
			if !state.Terminal() {
				j.State = state
			}
			j.Progress = p
		})
	})

	updateErr := m.jobs.Update(job.ID, func(j *models.Job) {
		j.FinishedAt = time.Now()
		j.Upload = nil
		if err != nil {
			j.State = models.StateAborted
			j.Error = UserMessage(err)
			j.ErrorKind = string(KindOf(err))
			return
		}
		j.State = models.StatePresented
		j.Result = result
	})
	if updateErr != nil {
		logger.Warn("job vanished before completion", zap.Error(updateErr))
	}

	outcome := string(models.StatePresented)
	if err != nil {
		outcome = string(KindOf(err))
		logger.Error("job failed", zap.String("kind", outcome), zap.Error(err))
	} else {
		logger.Info("job presented", zap.Duration("elapsed", result.Elapsed))
	}
	m.metrics.JobFinished(outcome)

	if snapshot, err := m.jobs.Get(job.ID); err == nil {
		m.record(snapshot)
	}
}

func (m *Manager) record(job *models.Job) {
	if err := m.history.Put(models.NewJobRecord(job)); err != nil {
		m.logger.Warn("record job history", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (m *Manager) runJanitor() {
	defer m.wg.Done()

	interval := m.config.ResultTTL.Duration / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.jobs.Sweep(time.Now().Add(-m.config.ResultTTL.Duration)); n > 0 {
				m.logger.Debug("evicted finished jobs", zap.Int("count", n))
			}
		case <-m.ctx.Done():
			return
		}
	}
}

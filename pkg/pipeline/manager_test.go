package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"voiceboost/pkg/config"
	"voiceboost/pkg/models"
	"voiceboost/pkg/storage"
)

type memHistory struct {
	mu   sync.Mutex
	recs map[string]*models.JobRecord
}

func newMemHistory() *memHistory {
	return &memHistory{recs: make(map[string]*models.JobRecord)}
}

func (h *memHistory) Put(rec *models.JobRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs[rec.ID] = rec
	return nil
}

func (h *memHistory) Get(id string) (*models.JobRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.recs[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return rec, nil
}

func (h *memHistory) List(int) ([]*models.JobRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*models.JobRecord
	for _, r := range h.recs {
		out = append(out, r)
	}
	return out, nil
}

func (h *memHistory) Close() error { return nil }

func testPipelineConfig() config.PipelineConfig {
	cfg := config.Default().Pipeline
	cfg.QueueSize = 2
	return cfg
}

func waitForState(t *testing.T, m *Manager, id string, want models.State) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Job(id)
		if err != nil {
			t.Fatalf("Job(%s) error: %v", id, err)
		}
		if job.State == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach %s", id, want)
	return nil
}

func TestManagerRunsJobToPresented(t *testing.T) {
	o, root := newTestOrchestrator(t, &fakeTranscoder{}, halveEnhancer())
	history := newMemHistory()
	core, logs := observer.New(zap.InfoLevel)

	m := NewManager(testPipelineConfig(), o, storage.NewMemoryStore(), history, nil, zap.New(core))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	job, err := m.Submit(upload("talk.mp4", 512))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	done := waitForState(t, m, job.ID, models.StatePresented)
	if done.Progress.Percent != 100 {
		t.Errorf("Progress = %+v, want 100%%", done.Progress)
	}
	if done.Result == nil || done.Result.FileName != "enhanced_talk.mp4" {
		t.Fatalf("Result = %+v", done.Result)
	}
	if done.Upload != nil {
		t.Error("upload bytes kept after completion")
	}
	assertNoWorkspace(t, root)

	deadline := time.Now().Add(time.Second)
	for {
		if rec, err := history.Get(job.ID); err == nil {
			if rec.State != models.StatePresented {
				t.Errorf("history state = %s", rec.State)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job not recorded in history")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if logs.FilterMessage("job presented").Len() == 0 {
		t.Error("expected a \"job presented\" log entry")
	}
}

func TestManagerRejectsPreflightFailures(t *testing.T) {
	o, root := newTestOrchestrator(t, &fakeTranscoder{missing: true}, halveEnhancer())
	history := newMemHistory()
	jobs := storage.NewMemoryStore()

	m := NewManager(testPipelineConfig(), o, jobs, history, nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	job, err := m.Submit(upload("clip.mp4", 10))
	if KindOf(err) != KindTool {
		t.Fatalf("Submit() error = %v, want tool failure", err)
	}
	if job.State != models.StateAborted || job.Error == "" {
		t.Fatalf("job = %+v", job)
	}
	if len(jobs.List()) != 0 {
		t.Error("rejected job was queued")
	}
	if _, err := history.Get(job.ID); err != nil {
		t.Errorf("rejected job not recorded: %v", err)
	}
	assertNoWorkspace(t, root)
}

func TestManagerRecordsAbortedJob(t *testing.T) {
	failing := enhancerFunc(func(context.Context, models.Waveform) (models.Waveform, error) {
		return models.Waveform{}, errors.New("weights corrupted")
	})
	o, _ := newTestOrchestrator(t, &fakeTranscoder{}, failing)

	m := NewManager(testPipelineConfig(), o, storage.NewMemoryStore(), newMemHistory(), nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	job, err := m.Submit(upload("clip.mov", 10))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	done := waitForState(t, m, job.ID, models.StateAborted)
	if done.ErrorKind != string(KindUnclassified) {
		t.Errorf("ErrorKind = %q", done.ErrorKind)
	}
	if done.Error != "Error during audio enhancement: weights corrupted" {
		t.Errorf("Error = %q", done.Error)
	}
	if done.Result != nil {
		t.Error("aborted job exposes a result")
	}
}

type blockingRunner struct {
	release chan struct{}
}

func (b *blockingRunner) Preflight(*models.Upload) error { return nil }

func (b *blockingRunner) Run(ctx context.Context, _ *models.Upload, _ ProgressFunc) (*models.Result, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &models.Result{}, nil
}

func TestManagerQueueFull(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	cfg := testPipelineConfig()
	cfg.QueueSize = 1

	m := NewManager(cfg, runner, storage.NewMemoryStore(), newMemHistory(), nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()
	defer close(runner.release)

	var sawFull bool
	for i := 0; i < 5; i++ {
		if _, err := m.Submit(upload("clip.mp4", 1)); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Fatal("expected ErrQueueFull with one worker busy and a queue of one")
	}
}

func TestManagerSubmitAfterStop(t *testing.T) {
	m := NewManager(testPipelineConfig(), &blockingRunner{release: make(chan struct{})}, storage.NewMemoryStore(), newMemHistory(), nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	m.Stop()

	if _, err := m.Submit(upload("clip.mp4", 1)); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("Submit() after Stop = %v, want ErrShuttingDown", err)
	}
}

// watchingRunner checks the store from inside every progress report.
type watchingRunner struct {
	Runner
	jobs storage.JobStore

	mu       sync.Mutex
	terminal []*models.Job
}

func (w *watchingRunner) Run(ctx context.Context, u *models.Upload, report ProgressFunc) (*models.Result, error) {
	return w.Runner.Run(ctx, u, func(state models.State, p models.Progress) {
		report(state, p)
		for _, j := range w.jobs.List() {
			if j.State.Terminal() {
				w.mu.Lock()
				w.terminal = append(w.terminal, j)
				w.mu.Unlock()
			}
		}
	})
}

func TestManagerPublishesTerminalStateWithOutcome(t *testing.T) {
	tests := []struct {
		name     string
		enhancer Enhancer
		want     models.State
	}{
		{"presented", halveEnhancer(), models.StatePresented},
		{"aborted", enhancerFunc(func(context.Context, models.Waveform) (models.Waveform, error) {
			return models.Waveform{}, errors.New("weights corrupted")
		}), models.StateAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(t, &fakeTranscoder{}, tt.enhancer)
			jobs := storage.NewMemoryStore()
			runner := &watchingRunner{Runner: o, jobs: jobs}

			m := NewManager(testPipelineConfig(), runner, jobs, newMemHistory(), nil, nil)
			if err := m.Start(context.Background()); err != nil {
				t.Fatalf("Start() error: %v", err)
			}
			defer m.Stop()

			job, err := m.Submit(upload("talk.mp4", 512))
			if err != nil {
				t.Fatalf("Submit() error: %v", err)
			}
			done := waitForState(t, m, job.ID, tt.want)

			switch tt.want {
			case models.StatePresented:
				if done.Result == nil {
					t.Fatal("presented job has no result")
				}
			case models.StateAborted:
				if done.Error == "" {
					t.Fatal("aborted job has no error message")
				}
			}

			runner.mu.Lock()
			defer runner.mu.Unlock()
			for _, j := range runner.terminal {
				t.Errorf("job visible as %s before its outcome was stored (result=%v error=%q)", j.State, j.Result, j.Error)
			}
		})
	}
}

func TestManagerStopAbortsQueuedJobs(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	cfg := testPipelineConfig()
	cfg.Workers = 1
	cfg.QueueSize = 4
	jobs := storage.NewMemoryStore()
	history := newMemHistory()

	m := NewManager(cfg, runner, jobs, history, nil, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := m.Submit(upload("clip.mp4", 1))
		if err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
		ids = append(ids, job.ID)
	}
	m.Stop()

	for _, id := range ids {
		job, err := m.Job(id)
		if err != nil {
			t.Fatalf("Job(%s) error: %v", id, err)
		}
		if !job.State.Terminal() {
			t.Errorf("job %s left in state %s after Stop", id, job.State)
		}
		if job.State == models.StateAborted && job.Error != UserMessage(ErrShuttingDown) {
			t.Errorf("job %s Error = %q", id, job.Error)
		}
		if _, err := history.Get(id); err != nil {
			t.Errorf("job %s not recorded in history: %v", id, err)
		}
	}
}

package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"voiceboost/pkg/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

// JobStore holds jobs that are queued, running or recently finished,
// including their in-memory results.
type JobStore interface {
	Create(job *models.Job) error
	Get(id string) (*models.Job, error)
	Update(id string, fn func(*models.Job)) error
	Delete(id string) error
	List() []*models.Job
	// Sweep removes terminal jobs finished before the cutoff and returns how
	// many were removed.
	Sweep(before time.Time) int
}

type memoryStore struct {
	jobs map[string]*models.Job
	mu   sync.RWMutex
}

func NewMemoryStore() JobStore {
	return &memoryStore{
		jobs: make(map[string]*models.Job),
	}
}

func (s *memoryStore) Create(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *memoryStore) Get(id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *memoryStore) Update(id string, fn func(*models.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	fn(job)
	return nil
}

func (s *memoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// List returns all jobs, newest first.
func (s *memoryStore) List() []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (s *memoryStore) Sweep(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.State.Terminal() && !job.FinishedAt.IsZero() && job.FinishedAt.Before(before) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/ossamaweb/auto-vid/internal/model"
)

// MemoryStore is a process-local Store used by the local renderer and tests.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]model.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]model.Job), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryStore) Update(_ context.Context, jobID string, u model.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.lookup(jobID)
	if !ok {
		return ErrJobNotFound
	}
	s.jobs[jobID] = job.Apply(u)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.lookup(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryStore) lookup(jobID string) (model.Job, bool) {
	job, ok := s.jobs[jobID]
	if !ok {
		return model.Job{}, false
	}
	if !job.TTL.IsZero() && !s.now().Before(job.TTL) {
		delete(s.jobs, jobID)
		return model.Job{}, false
	}
	return job, true
}

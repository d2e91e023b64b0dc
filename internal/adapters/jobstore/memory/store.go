// Package memory implements ports.JobStore with an in-process map. The
// default store when no database is configured; job history does not
// survive a restart.
package memory

import (
	"context"
	"sync"

	"bulk-sms-dispatch/internal/domain"
)

// Store implements ports.JobStore.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*entry
}

// entry holds one job behind its own lock, so concurrent progress reports
// for the same job serialize without blocking other jobs.
type entry struct {
	mu  sync.Mutex
	job domain.DispatchJob
}

// New returns an empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]*entry)}
}

// Create persists a new job.
func (s *Store) Create(_ context.Context, job domain.DispatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &entry{job: job}
	return nil
}

// Get returns a snapshot of the job.
func (s *Store) Get(_ context.Context, id string) (domain.DispatchJob, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return domain.DispatchJob{}, domain.ErrJobNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, nil
}

// Update applies fn to the job under its per-job lock.
func (s *Store) Update(_ context.Context, id string, fn func(*domain.DispatchJob) error) error {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrJobNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&e.job)
}

// Delete removes a job. Called by an external pruner once jobs expire.
func (s *Store) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

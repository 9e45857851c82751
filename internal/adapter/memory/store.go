// Package memory is a process-local job store. It backs tests and
// single-run deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/repository"
)

// Store holds jobs and results. Jobs and Results return the repository
// views over the shared state.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*entity.Job
	results map[int64]*entity.Result
	byJob   map[string][]int64
	order   []string
	nextID  int64
	now     func() time.Time
}

type jobRepo struct{ *Store }

type resultRepo struct{ *Store }

var (
	_ repository.JobRepository    = jobRepo{}
	_ repository.ResultRepository = resultRepo{}
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]*entity.Job),
		results: make(map[int64]*entity.Result),
		byJob:   make(map[string][]int64),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Jobs returns the job repository view.
func (s *Store) Jobs() repository.JobRepository { return jobRepo{s} }

// Results returns the result repository view.
func (s *Store) Results() repository.ResultRepository { return resultRepo{s} }

func (s jobRepo) CreateWithCodes(_ context.Context, job *entity.Job, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("duplicate code %q in job %s", c, job.ID)
		}
		seen[c] = struct{}{}
	}

	now := s.now()
	stored := *job
	stored.Status = entity.JobQueued
	stored.TotalCodes = len(codes)
	stored.CreatedAt = now
	s.jobs[job.ID] = &stored
	s.order = append(s.order, job.ID)
	job.Status, job.TotalCodes, job.CreatedAt = stored.Status, stored.TotalCodes, now

	ids := make([]int64, 0, len(codes))
	for _, c := range codes {
		s.nextID++
		s.results[s.nextID] = &entity.Result{
			ID:        s.nextID,
			JobID:     job.ID,
			Code:      c,
			Status:    entity.ResultPending,
			Source:    entity.SourceNone,
			CreatedAt: now,
			UpdatedAt: now,
		}
		ids = append(ids, s.nextID)
	}
	s.byJob[job.ID] = ids
	return nil
}

func (s jobRepo) Get(_ context.Context, id string) (*entity.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyJob(j), nil
}

func (s jobRepo) List(_ context.Context, limit int) ([]*entity.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snapshotJobs(nil)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s jobRepo) ListByStatus(_ context.Context, statuses ...entity.JobStatus) ([]*entity.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snapshotJobs(func(j *entity.Job) bool { return slices.Contains(statuses, j.Status) })
	return out, nil
}

func (s jobRepo) MarkRunning(_ context.Context, id string) error {
	return s.updateJob(id, func(j *entity.Job, now time.Time) {
		j.Status = entity.JobRunning
		j.StartedAt = &now
		j.CompletedAt = nil
		j.Notes = ""
	})
}

func (s jobRepo) MarkCompleted(_ context.Context, id string) error {
	return s.updateJob(id, func(j *entity.Job, now time.Time) {
		j.Status = entity.JobCompleted
		j.CompletedAt = &now
	})
}

func (s jobRepo) MarkFailed(_ context.Context, id, note string) error {
	return s.updateJob(id, func(j *entity.Job, now time.Time) {
		j.Status = entity.JobFailed
		j.CompletedAt = &now
		j.Notes = entity.Truncate(note)
	})
}

func (s jobRepo) ResetInterrupted(_ context.Context, note string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	var results, jobs int64
	for _, r := range s.results {
		if r.Status == entity.ResultRunning || r.Status == entity.ResultQueuedBrowser {
			resetResult(r, now)
			results++
		}
	}
	for _, j := range s.jobs {
		if j.Status == entity.JobRunning {
			j.Status = entity.JobQueued
			j.StartedAt = nil
			j.CompletedAt = nil
			j.Notes = entity.Truncate(note)
			jobs++
		}
	}
	return results, jobs, nil
}

func (s jobRepo) RequeueUncertain(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	now := s.now()

	var n int64
	for _, rid := range s.byJob[id] {
		r := s.results[rid]
		if r.Status == entity.ResultValid || r.Status == entity.ResultInvalid {
			continue
		}
		if r.Status != entity.ResultPending {
			resetResult(r, now)
		}
		n++
	}

	if n > 0 {
		j.Status = entity.JobQueued
		j.StartedAt = nil
		j.CompletedAt = nil
		j.Notes = ""
	} else {
		j.Status = entity.JobCompleted
		j.CompletedAt = &now
	}
	return n, nil
}

// resetResult returns r to pending and clears everything a run recorded.
func resetResult(r *entity.Result, now time.Time) {
	*r = entity.Result{
		ID:        r.ID,
		JobID:     r.JobID,
		Code:      r.Code,
		Status:    entity.ResultPending,
		Source:    entity.SourceNone,
		CreatedAt: r.CreatedAt,
		UpdatedAt: now,
	}
}

func (s resultRepo) Pending(_ context.Context, jobID string) ([]entity.PendingCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.PendingCode
	for _, rid := range s.byJob[jobID] {
		if r := s.results[rid]; r.Status == entity.ResultPending {
			out = append(out, entity.PendingCode{ResultID: r.ID, Code: r.Code})
		}
	}
	return out, nil
}

func (s resultRepo) MarkRunning(_ context.Context, resultID int64) error {
	return s.updateResult(resultID, func(r *entity.Result, _ time.Time) {
		r.Status = entity.ResultRunning
		r.Source = entity.SourceNone
	})
}

func (s resultRepo) MarkQueuedBrowser(_ context.Context, resultID int64, o entity.Outcome) error {
	return s.updateResult(resultID, func(r *entity.Result, _ time.Time) {
		r.Status = entity.ResultQueuedBrowser
		r.Source = entity.SourceHTTP
		applyOutcome(r, o)
	})
}

func (s resultRepo) MarkFinal(_ context.Context, resultID int64, o entity.Outcome) error {
	return s.updateResult(resultID, func(r *entity.Result, now time.Time) {
		r.Status = o.Status
		r.Source = o.Source
		applyOutcome(r, o)
		r.CheckedAt = &now
	})
}

func (s resultRepo) CountByStatus(_ context.Context, jobID string) (int, map[entity.ResultStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return 0, map[entity.ResultStatus]int{}, nil
	}
	counts := make(map[entity.ResultStatus]int)
	for _, rid := range s.byJob[jobID] {
		counts[s.results[rid].Status]++
	}
	return j.TotalCodes, counts, nil
}

func (s resultRepo) List(_ context.Context, jobID string, status entity.ResultStatus, limit, offset int) ([]*entity.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byJob[jobID]
	out := make([]*entity.Result, 0)
	skipped := 0
	for i := len(ids) - 1; i >= 0; i-- {
		r := s.results[ids[i]]
		if status != "" && r.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func applyOutcome(r *entity.Result, o entity.Outcome) {
	r.Reason = entity.Truncate(o.Reason())
	r.FailureKind = o.Failure
	r.Attempts = o.Attempts
	r.HTTPStatus = o.HTTPStatus
	r.RedirectURL = o.RedirectURL
}

func (s *Store) updateJob(id string, fn func(*entity.Job, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(j, s.now())
	return nil
}

func (s *Store) updateResult(id int64, fn func(*entity.Result, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := s.now()
	fn(r, now)
	r.UpdatedAt = now
	return nil
}

// snapshotJobs copies jobs in creation order.
func (s *Store) snapshotJobs(keep func(*entity.Job) bool) []*entity.Job {
	out := make([]*entity.Job, 0, len(s.jobs))
	for _, id := range s.order {
		j := s.jobs[id]
		if keep == nil || keep(j) {
			out = append(out, copyJob(j))
		}
	}
	return out
}

func copyJob(j *entity.Job) *entity.Job {
	c := *j
	return &c
}

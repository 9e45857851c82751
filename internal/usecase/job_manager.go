package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/repository"
	"github.com/user/redeem-checker/pkg/utils"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidOverride = errors.New("URL override must contain " + entity.CodePlaceholder)
	ErrNoCodes         = errors.New("no redeem codes were provided")
	ErrJobNotFound     = errors.New("job not found")
	ErrJobActive       = errors.New("job is currently running")
	ErrInvalidStatus   = errors.New("invalid result status")
)

const (
	defaultResultLimit = 200
	maxResultLimit     = 1000
)

// Defaults are the job parameters used when a submission omits them.
type Defaults struct {
	HTTPConcurrency    int
	BrowserConcurrency int
	MaxRetries         int
	RequestDelayMS     int
}

// SubmitRequest describes a new job. Nil parameters take the defaults.
type SubmitRequest struct {
	ProfileName        string
	URLOverride        string
	CreatedBy          string
	CodesText          string
	CodesCSV           string
	Codes              []string
	HTTPConcurrency    *int
	BrowserConcurrency *int
	MaxRetries         *int
	RequestDelayMS     *int
}

// SubmitSummary is returned for an accepted job.
type SubmitSummary struct {
	JobID             string
	TotalCodes        int
	RawCodes          int
	DuplicatesRemoved int
	Status            entity.JobStatus
}

// RerunSummary reports how many codes a rerun reset.
type RerunSummary struct {
	Updated int64
	Message string
}

// JobDetail is a job together with its progress.
type JobDetail struct {
	Job      *entity.Job
	Progress entity.JobProgress
}

// Launcher starts job tasks.
type Launcher interface {
	Start(jobID string) bool
	IsActive(jobID string) bool
}

// JobManager defines the job submission and query operations.
type JobManager interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitSummary, error)
	Rerun(ctx context.Context, jobID string) (*RerunSummary, error)
	Progress(ctx context.Context, jobID string) (entity.JobProgress, error)
	Job(ctx context.Context, jobID string) (*JobDetail, error)
	ListJobs(ctx context.Context, limit int) ([]*entity.Job, error)
	Results(ctx context.Context, jobID, status string, limit, offset int) ([]*entity.Result, error)
}

type jobManager struct {
	jobs     repository.JobRepository
	results  repository.ResultRepository
	profiles repository.ProfileProvider
	launcher Launcher
	defaults Defaults
	logger   *zap.Logger
}

// NewJobManager creates a new JobManager use case.
func NewJobManager(
	jobs repository.JobRepository,
	results repository.ResultRepository,
	profiles repository.ProfileProvider,
	launcher Launcher,
	defaults Defaults,
	logger *zap.Logger,
) JobManager {
	return &jobManager{
		jobs:     jobs,
		results:  results,
		profiles: profiles,
		launcher: launcher,
		defaults: defaults,
		logger:   logger,
	}
}

func (m *jobManager) Submit(ctx context.Context, req SubmitRequest) (*SubmitSummary, error) {
	name := strings.TrimSpace(req.ProfileName)
	if _, ok := m.profiles.Get(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	override := strings.TrimSpace(req.URLOverride)
	if override != "" && !strings.Contains(override, entity.CodePlaceholder) {
		return nil, ErrInvalidOverride
	}

	collection := utils.CollectCodes(
		utils.ParseCodesFromText(req.CodesText),
		utils.ParseCodesFromCSV(req.CodesCSV),
		utils.ParseCodesFromText(strings.Join(req.Codes, "\n")),
	)
	if len(collection.Codes) == 0 {
		return nil, ErrNoCodes
	}

	job := &entity.Job{
		ID:                 uuid.NewString(),
		ProfileName:        name,
		URLOverride:        override,
		CreatedBy:          req.CreatedBy,
		HTTPConcurrency:    utils.Clamp(orDefault(req.HTTPConcurrency, m.defaults.HTTPConcurrency), 1, 200),
		BrowserConcurrency: utils.Clamp(orDefault(req.BrowserConcurrency, m.defaults.BrowserConcurrency), 0, 20),
		MaxRetries:         utils.Clamp(orDefault(req.MaxRetries, m.defaults.MaxRetries), 0, 10),
		RequestDelayMS:     utils.Clamp(orDefault(req.RequestDelayMS, m.defaults.RequestDelayMS), 0, 5000),
	}
	if err := m.jobs.CreateWithCodes(ctx, job, collection.Codes); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	m.launcher.Start(job.ID)

	m.logger.Info("Job submitted",
		zap.String("job_id", job.ID),
		zap.String("profile", name),
		zap.Int("codes", collection.UniqueCount),
		zap.Int("duplicates_removed", collection.DuplicatesRemoved()),
	)

	return &SubmitSummary{
		JobID:             job.ID,
		TotalCodes:        collection.UniqueCount,
		RawCodes:          collection.RawCount,
		DuplicatesRemoved: collection.DuplicatesRemoved(),
		Status:            entity.JobQueued,
	}, nil
}

func (m *jobManager) Rerun(ctx context.Context, jobID string) (*RerunSummary, error) {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == entity.JobRunning || m.launcher.IsActive(jobID) {
		return nil, ErrJobActive
	}

	n, err := m.jobs.RequeueUncertain(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue results: %w", err)
	}
	if n == 0 {
		return &RerunSummary{Message: "No unknown/blocked/error results to rerun"}, nil
	}

	m.launcher.Start(jobID)
	m.logger.Info("Rerun started", zap.String("job_id", jobID), zap.Int64("codes", n))
	return &RerunSummary{Updated: n, Message: "Rerun started"}, nil
}

func (m *jobManager) Progress(ctx context.Context, jobID string) (entity.JobProgress, error) {
	if _, err := m.getJob(ctx, jobID); err != nil {
		return entity.JobProgress{}, err
	}
	return m.progress(ctx, jobID)
}

func (m *jobManager) Job(ctx context.Context, jobID string) (*JobDetail, error) {
	job, err := m.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	progress, err := m.progress(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: job, Progress: progress}, nil
}

func (m *jobManager) ListJobs(ctx context.Context, limit int) ([]*entity.Job, error) {
	return m.jobs.List(ctx, utils.Clamp(limit, 1, 200))
}

func (m *jobManager) Results(ctx context.Context, jobID, status string, limit, offset int) ([]*entity.Result, error) {
	if _, err := m.getJob(ctx, jobID); err != nil {
		return nil, err
	}
	var filter entity.ResultStatus
	if status = strings.TrimSpace(status); status != "" {
		s, ok := entity.ParseResultStatus(status)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
		}
		filter = s
	}
	if limit <= 0 {
		limit = defaultResultLimit
	}
	return m.results.List(ctx, jobID, filter, min(limit, maxResultLimit), max(0, offset))
}

func (m *jobManager) getJob(ctx context.Context, jobID string) (*entity.Job, error) {
	job, err := m.jobs.Get(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

func (m *jobManager) progress(ctx context.Context, jobID string) (entity.JobProgress, error) {
	total, counts, err := m.results.CountByStatus(ctx, jobID)
	if err != nil {
		return entity.JobProgress{}, fmt.Errorf("failed to count results: %w", err)
	}
	return entity.NewJobProgress(total, counts), nil
}

func orDefault(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/repository"
	"github.com/user/redeem-checker/pkg/metrics"
)

// RecoveredNote is stored on jobs that were running when the process
// stopped.
const RecoveredNote = "Recovered after restart"

// Orchestrator runs jobs. Each job gets one supervising goroutine; at most
// maxActive jobs execute at the same time.
type Orchestrator struct {
	jobs     repository.JobRepository
	results  repository.ResultRepository
	profiles repository.ProfileProvider
	http     repository.HTTPStage
	browser  repository.BrowserStage
	metrics  *metrics.Metrics
	logger   *zap.Logger

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]struct{}
	closed bool
	wg     sync.WaitGroup

	lease *leaseKeeper
}

// NewOrchestrator creates an orchestrator. It does not start any job until
// Start or StartAllQueued is called.
func NewOrchestrator(
	jobs repository.JobRepository,
	results repository.ResultRepository,
	profiles repository.ProfileProvider,
	httpStage repository.HTTPStage,
	browserStage repository.BrowserStage,
	m *metrics.Metrics,
	logger *zap.Logger,
	maxActive int,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		jobs:     jobs,
		results:  results,
		profiles: profiles,
		http:     httpStage,
		browser:  browserStage,
		metrics:  m,
		logger:   logger,
		sem:      make(chan struct{}, max(1, maxActive)),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]struct{}),
	}
}

// Recover returns work interrupted by a previous process lifetime to its
// resumable state. It must run before any job starts.
func (o *Orchestrator) Recover(ctx context.Context) error {
	if o.lease != nil {
		if err := o.acquireLease(ctx); err != nil {
			return err
		}
	}
	results, jobs, err := o.jobs.ResetInterrupted(ctx, RecoveredNote)
	if err != nil {
		return fmt.Errorf("failed to reset interrupted work: %w", err)
	}
	o.logger.Info("Recovered interrupted work",
		zap.Int64("results_reset", results),
		zap.Int64("jobs_requeued", jobs),
	)
	return nil
}

// StartAllQueued launches every queued job, oldest first.
func (o *Orchestrator) StartAllQueued(ctx context.Context) (int, error) {
	queued, err := o.jobs.ListByStatus(ctx, entity.JobQueued)
	if err != nil {
		return 0, fmt.Errorf("failed to list queued jobs: %w", err)
	}
	started := 0
	for _, job := range queued {
		if o.Start(job.ID) {
			started++
		}
	}
	return started, nil
}

// Start launches the job's task. It reports false when the job is already
// active or the orchestrator is shut down.
func (o *Orchestrator) Start(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if _, ok := o.active[jobID]; ok {
		return false
	}
	o.active[jobID] = struct{}{}
	o.wg.Add(1)
	go o.run(jobID)
	return true
}

// IsActive reports whether the job has a live task, waiting or running.
func (o *Orchestrator) IsActive(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[jobID]
	return ok
}

// Wait blocks until every started job task has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels every job task and waits for them to return or for ctx
// to expire. Cancelled tasks leave their rows for the next Recover.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("job tasks still running at shutdown: %w", ctx.Err())
	}

	if o.lease != nil {
		o.releaseLease(ctx)
	}
	return err
}

func (o *Orchestrator) run(jobID string) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		delete(o.active, jobID)
		o.mu.Unlock()
	}()

	select {
	case o.sem <- struct{}{}:
	case <-o.ctx.Done():
		return
	}
	defer func() { <-o.sem }()

	o.metrics.ActiveJobs.Inc()
	defer o.metrics.ActiveJobs.Dec()

	logger := o.logger.With(zap.String("job_id", jobID))
	err := o.execute(o.ctx, jobID, logger)
	if o.ctx.Err() != nil {
		logger.Info("Job interrupted by shutdown")
		return
	}
	if err == nil {
		o.metrics.JobsTotal.WithLabelValues(string(entity.JobCompleted)).Inc()
		return
	}

	logger.Error("Job failed", zap.Error(err))
	o.metrics.JobsTotal.WithLabelValues(string(entity.JobFailed)).Inc()
	if markErr := o.jobs.MarkFailed(o.ctx, jobID, "Job failed: "+err.Error()); markErr != nil {
		logger.Error("Failed to mark job failed", zap.Error(markErr))
	}
}

// handoff carries a code and its HTTP outcome to the browser inbox.
type handoff struct {
	code  entity.PendingCode
	prior entity.Outcome
}

func (o *Orchestrator) execute(ctx context.Context, jobID string, logger *zap.Logger) error {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	profile, ok := o.profiles.Get(job.ProfileName)
	if !ok {
		return fmt.Errorf("profile %q not found", job.ProfileName)
	}

	if err := o.jobs.MarkRunning(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	pending, err := o.results.Pending(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load pending codes: %w", err)
	}
	if len(pending) == 0 {
		return o.jobs.MarkCompleted(ctx, jobID)
	}

	useBrowser := profile.Browser.Enabled && job.BrowserConcurrency > 0
	logger.Info("Job started",
		zap.String("profile", profile.Name),
		zap.Int("pending", len(pending)),
		zap.Int("http_workers", max(1, job.HTTPConcurrency)),
		zap.Bool("browser_fallback", useBrowser),
	)

	httpInbox := make(chan entity.PendingCode, len(pending))
	browserInbox := make(chan handoff, len(pending))
	for _, p := range pending {
		httpInbox <- p
	}
	close(httpInbox)
	o.metrics.CodesInQueue.WithLabelValues(string(entity.SourceHTTP)).Add(float64(len(pending)))

	g, gctx := errgroup.WithContext(ctx)
	var httpWorkers sync.WaitGroup
	for i := range max(1, job.HTTPConcurrency) {
		w := &httpWorker{o: o, job: job, profile: profile, inbox: httpInbox, fallback: useBrowser,
			browserInbox: browserInbox, logger: logger.With(zap.String("stage", "http"), zap.Int("worker", i))}
		httpWorkers.Add(1)
		g.Go(func() error {
			defer httpWorkers.Done()
			return w.run(gctx)
		})
	}
	g.Go(func() error {
		httpWorkers.Wait()
		close(browserInbox)
		return nil
	})
	if useBrowser {
		for i := range job.BrowserConcurrency {
			w := &browserWorker{o: o, job: job, profile: profile, inbox: browserInbox,
				logger: logger.With(zap.String("stage", "browser"), zap.Int("worker", i))}
			g.Go(func() error { return w.run(gctx) })
		}
	}

	err = g.Wait()
	o.metrics.CodesInQueue.WithLabelValues(string(entity.SourceHTTP)).Sub(float64(len(httpInbox)))
	o.metrics.CodesInQueue.WithLabelValues(string(entity.SourceBrowser)).Sub(float64(len(browserInbox)))
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := o.jobs.MarkCompleted(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	logger.Info("Job completed")
	return nil
}

// needsFallback reports whether the browser stage may still resolve o.
// Worker faults are terminal.
func needsFallback(o entity.Outcome) bool {
	return o.Status.IsUncertain() && o.Failure != entity.FailureInternal
}

// guard runs fn and converts a panic into an internal-fault outcome.
func guard(source entity.Source, attempts int, fn func() entity.Outcome) (out entity.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = entity.Failed(source, entity.FailureInternal, fmt.Sprint(r), attempts)
		}
	}()
	return fn()
}

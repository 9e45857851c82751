package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/adapter/memory"
	"github.com/user/redeem-checker/internal/entity"
)

// recordingLauncher records Start calls without running anything.
type recordingLauncher struct {
	started []string
	active  map[string]bool
}

func (l *recordingLauncher) Start(jobID string) bool {
	l.started = append(l.started, jobID)
	return true
}

func (l *recordingLauncher) IsActive(jobID string) bool { return l.active[jobID] }

func newManager(t *testing.T) (JobManager, *memory.Store, *recordingLauncher) {
	t.Helper()
	store := memory.NewStore()
	launcher := &recordingLauncher{active: map[string]bool{}}
	m := NewJobManager(store.Jobs(), store.Results(), profileMap{"shop": httpOnlyProfile("shop")}, launcher,
		Defaults{HTTPConcurrency: 20, BrowserConcurrency: 1, MaxRetries: 2, RequestDelayMS: 100}, zap.NewNop())
	return m, store, launcher
}

func TestSubmitValidation(t *testing.T) {
	m, _, launcher := newManager(t)
	ctx := context.Background()

	_, err := m.Submit(ctx, SubmitRequest{ProfileName: "missing", CodesText: "A"})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = m.Submit(ctx, SubmitRequest{ProfileName: "shop", CodesText: "A", URLOverride: "https://x.test/redeem"})
	assert.ErrorIs(t, err, ErrInvalidOverride)

	_, err = m.Submit(ctx, SubmitRequest{ProfileName: "shop", CodesText: " ,; "})
	assert.ErrorIs(t, err, ErrNoCodes)

	assert.Empty(t, launcher.started)
}

func TestSubmitDefaultsAndClamps(t *testing.T) {
	m, store, launcher := newManager(t)
	ctx := context.Background()

	summary, err := m.Submit(ctx, SubmitRequest{
		ProfileName:     " shop ",
		URLOverride:     "https://x.test/r/{code}",
		CodesText:       "A1 B2",
		CodesCSV:        "B2,C3\n",
		Codes:           []string{"D4"},
		HTTPConcurrency: intPtr(999),
		MaxRetries:      intPtr(-5),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalCodes)
	assert.Equal(t, 5, summary.RawCodes)
	assert.Equal(t, 1, summary.DuplicatesRemoved)
	assert.Equal(t, entity.JobQueued, summary.Status)
	assert.Equal(t, []string{summary.JobID}, launcher.started)

	job, err := store.Jobs().Get(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, "shop", job.ProfileName)
	assert.Equal(t, "https://x.test/r/{code}", job.URLOverride)
	assert.Equal(t, 200, job.HTTPConcurrency)
	assert.Equal(t, 1, job.BrowserConcurrency)
	assert.Equal(t, 0, job.MaxRetries)
	assert.Equal(t, 100, job.RequestDelayMS)

	pending, _ := store.Results().Pending(ctx, summary.JobID)
	codes := make([]string, len(pending))
	for i, p := range pending {
		codes[i] = p.Code
	}
	assert.Equal(t, []string{"A1", "B2", "C3", "D4"}, codes)
}

func TestRerun(t *testing.T) {
	m, store, launcher := newManager(t)
	ctx := context.Background()

	_, err := m.Rerun(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	summary, err := m.Submit(ctx, SubmitRequest{ProfileName: "shop", CodesText: "A B C"})
	require.NoError(t, err)
	launcher.started = nil

	pending, _ := store.Results().Pending(ctx, summary.JobID)
	require.NoError(t, store.Jobs().MarkRunning(ctx, summary.JobID))
	_, err = m.Rerun(ctx, summary.JobID)
	assert.ErrorIs(t, err, ErrJobActive)

	require.NoError(t, store.Results().MarkFinal(ctx, pending[0].ResultID, entity.Outcome{Status: entity.ResultValid, Source: entity.SourceHTTP}))
	require.NoError(t, store.Results().MarkFinal(ctx, pending[1].ResultID, entity.Outcome{Status: entity.ResultValid, Source: entity.SourceHTTP}))
	require.NoError(t, store.Results().MarkFinal(ctx, pending[2].ResultID, entity.Outcome{Status: entity.ResultInvalid, Source: entity.SourceHTTP}))
	require.NoError(t, store.Jobs().MarkCompleted(ctx, summary.JobID))

	launcher.active[summary.JobID] = true
	_, err = m.Rerun(ctx, summary.JobID)
	assert.ErrorIs(t, err, ErrJobActive, "a waiting task also blocks a rerun")
	launcher.active[summary.JobID] = false

	out, err := m.Rerun(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Zero(t, out.Updated)
	assert.Empty(t, launcher.started, "nothing to rerun means no relaunch")
	job, _ := store.Jobs().Get(ctx, summary.JobID)
	assert.Equal(t, entity.JobCompleted, job.Status)
}

func TestRerunResumesFailedJobWithUnfinishedRows(t *testing.T) {
	m, store, launcher := newManager(t)
	ctx := context.Background()

	summary, err := m.Submit(ctx, SubmitRequest{ProfileName: "shop", CodesText: "A B C"})
	require.NoError(t, err)
	launcher.started = nil

	pending, _ := store.Results().Pending(ctx, summary.JobID)
	require.NoError(t, store.Jobs().MarkRunning(ctx, summary.JobID))
	require.NoError(t, store.Results().MarkFinal(ctx, pending[0].ResultID, entity.Outcome{Status: entity.ResultValid, Source: entity.SourceHTTP}))
	require.NoError(t, store.Results().MarkRunning(ctx, pending[1].ResultID))
	require.NoError(t, store.Jobs().MarkFailed(ctx, summary.JobID, "store unavailable"))

	out, err := m.Rerun(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Updated)
	assert.Equal(t, []string{summary.JobID}, launcher.started)

	job, _ := store.Jobs().Get(ctx, summary.JobID)
	assert.Equal(t, entity.JobQueued, job.Status, "a job with unprocessed codes is never marked completed")
	progress, err := m.Progress(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Processed)
	assert.Equal(t, 2, progress.ByStatus[entity.ResultPending])
}

func TestRerunReprocessesOnlyUncertain(t *testing.T) {
	var calls callLog
	httpStage := &fakeHTTPStage{validate: func(ctx context.Context, code string) entity.Outcome {
		n := calls.add(code)
		if code == "B" && n == 1 {
			return entity.Outcome{Status: entity.ResultBlocked, Source: entity.SourceHTTP, Matched: "captcha", Captcha: true, Attempts: 1}
		}
		if code == "C" && n == 1 {
			return entity.Failed(entity.SourceHTTP, entity.FailureTransportTimeout, "", 3)
		}
		return entity.Outcome{Status: entity.ResultValid, Source: entity.SourceHTTP, Attempts: 1}
	}}
	h := newHarness(t, httpStage, nil, httpOnlyProfile("shop"))
	ctx := context.Background()

	summary, err := h.manager.Submit(ctx, SubmitRequest{ProfileName: "shop", CodesText: "A B C D"})
	require.NoError(t, err)
	h.orch.Wait()

	progress, err := h.manager.Progress(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.ByStatus[entity.ResultBlocked])
	assert.Equal(t, 1, progress.ByStatus[entity.ResultError])

	out, err := h.manager.Rerun(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Updated)
	h.orch.Wait()

	assert.Equal(t, 1, calls.count("A"))
	assert.Equal(t, 2, calls.count("B"))
	assert.Equal(t, 2, calls.count("C"))
	assert.Equal(t, 1, calls.count("D"))

	progress, _ = h.manager.Progress(ctx, summary.JobID)
	assert.Equal(t, 4, progress.ByStatus[entity.ResultValid])
	assert.Equal(t, 100.0, progress.ProgressPercent)
}

func TestResultsQuery(t *testing.T) {
	m, store, _ := newManager(t)
	ctx := context.Background()
	summary, err := m.Submit(ctx, SubmitRequest{ProfileName: "shop", CodesText: "A B C"})
	require.NoError(t, err)
	pending, _ := store.Results().Pending(ctx, summary.JobID)
	require.NoError(t, store.Results().MarkFinal(ctx, pending[1].ResultID, entity.Outcome{Status: entity.ResultValid, Source: entity.SourceHTTP}))

	_, err = m.Results(ctx, summary.JobID, "bogus", 10, 0)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = m.Results(ctx, "missing", "", 10, 0)
	assert.ErrorIs(t, err, ErrJobNotFound)

	valid, err := m.Results(ctx, summary.JobID, "valid", 0, 0)
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, "B", valid[0].Code)

	all, err := m.Results(ctx, summary.JobID, "", 10, -3)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	jobs, err := m.ListJobs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

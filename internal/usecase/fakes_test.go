package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/adapter/memory"
	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/repository"
	"github.com/user/redeem-checker/pkg/metrics"
)

type profileMap map[string]*entity.Profile

func (m profileMap) Get(name string) (*entity.Profile, bool) {
	p, ok := m[name]
	return p, ok
}

type proberFunc func(ctx context.Context, code string) entity.Outcome

func (f proberFunc) Validate(ctx context.Context, code, _ string, _, _ int) entity.Outcome {
	return f(ctx, code)
}

type fakeHTTPStage struct {
	validate func(ctx context.Context, code string) entity.Outcome
}

func (f *fakeHTTPStage) NewProber(*entity.Profile) repository.HTTPProber {
	return proberFunc(f.validate)
}

type fakeSession struct {
	validate func(ctx context.Context, code string) entity.Outcome
	closed   atomic.Int32
}

func (s *fakeSession) Validate(ctx context.Context, code, _ string) entity.Outcome {
	return s.validate(ctx, code)
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeBrowserStage struct {
	launch func(ctx context.Context, p *entity.Profile) (repository.BrowserSession, error)
}

func (f *fakeBrowserStage) Launch(ctx context.Context, p *entity.Profile) (repository.BrowserSession, error) {
	return f.launch(ctx, p)
}

// callLog counts stage invocations per code.
type callLog struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callLog) add(code string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[code]++
	return c.calls[code]
}

func (c *callLog) count(code string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[code]
}

type harness struct {
	store    *memory.Store
	orch     *Orchestrator
	manager  JobManager
	profiles profileMap
}

func newHarness(t *testing.T, httpStage repository.HTTPStage, browserStage repository.BrowserStage, profiles ...*entity.Profile) *harness {
	t.Helper()
	store := memory.NewStore()
	pm := profileMap{}
	for _, p := range profiles {
		pm[p.Name] = p
	}
	if browserStage == nil {
		browserStage = &fakeBrowserStage{launch: func(context.Context, *entity.Profile) (repository.BrowserSession, error) {
			t.Error("browser stage must not be launched")
			return nil, context.Canceled
		}}
	}
	orch := NewOrchestrator(store.Jobs(), store.Results(), pm, httpStage, browserStage,
		metrics.New(prometheus.NewRegistry()), zap.NewNop(), 4)
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	manager := NewJobManager(store.Jobs(), store.Results(), pm, orch, Defaults{
		HTTPConcurrency: 2, BrowserConcurrency: 1, MaxRetries: 2,
	}, zap.NewNop())
	return &harness{store: store, orch: orch, manager: manager, profiles: pm}
}

func httpOnlyProfile(name string) *entity.Profile {
	return &entity.Profile{
		Name:   name,
		Target: entity.URLTemplateTarget{Template: "https://x.test/{code}"},
		HTTP:   entity.HTTPConfig{Enabled: true, Method: "GET"},
	}
}

func fallbackProfile(name string) *entity.Profile {
	p := httpOnlyProfile(name)
	p.Browser.Enabled = true
	return p
}

func intPtr(v int) *int { return &v }

// resultsByCode lists every result of a job keyed by code.
func resultsByCode(t *testing.T, h *harness, jobID string) map[string]*entity.Result {
	t.Helper()
	rows, err := h.store.Results().List(context.Background(), jobID, "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]*entity.Result, len(rows))
	for _, r := range rows {
		out[r.Code] = r
	}
	return out
}

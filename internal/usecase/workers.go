package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/user/redeem-checker/internal/entity"
	"github.com/user/redeem-checker/internal/repository"
)

type httpWorker struct {
	o            *Orchestrator
	job          *entity.Job
	profile      *entity.Profile
	inbox        <-chan entity.PendingCode
	fallback     bool
	browserInbox chan<- handoff
	logger       *zap.Logger
}

// run drains the HTTP inbox. Store failures abort the job; stage faults
// become error results.
func (w *httpWorker) run(ctx context.Context) error {
	prober := w.o.http.NewProber(w.profile)
	queued := w.o.metrics.CodesInQueue.WithLabelValues(string(entity.SourceHTTP))

	for item := range w.inbox {
		queued.Dec()
		if ctx.Err() != nil {
			return nil
		}
		if err := w.o.results.MarkRunning(ctx, item.ResultID); err != nil {
			return fmt.Errorf("failed to mark result %d running: %w", item.ResultID, err)
		}

		outcome := guard(entity.SourceHTTP, 1, func() entity.Outcome {
			return prober.Validate(ctx, item.Code, w.job.URLOverride, w.job.MaxRetries, w.job.RequestDelayMS)
		})
		if ctx.Err() != nil {
			return nil
		}

		if w.fallback && needsFallback(outcome) {
			if err := w.o.results.MarkQueuedBrowser(ctx, item.ResultID, outcome); err != nil {
				return fmt.Errorf("failed to queue result %d for browser: %w", item.ResultID, err)
			}
			w.o.metrics.CodesInQueue.WithLabelValues(string(entity.SourceBrowser)).Inc()
			w.browserInbox <- handoff{code: item, prior: outcome}
			w.logger.Debug("Code handed to browser stage",
				zap.Int64("result_id", item.ResultID),
				zap.String("http_status", string(outcome.Status)),
			)
			continue
		}

		if err := w.o.results.MarkFinal(ctx, item.ResultID, outcome); err != nil {
			return fmt.Errorf("failed to store result %d: %w", item.ResultID, err)
		}
		w.logger.Debug("Code resolved",
			zap.Int64("result_id", item.ResultID),
			zap.String("status", string(outcome.Status)),
			zap.Int("attempts", outcome.Attempts),
		)
	}
	return nil
}

type browserWorker struct {
	o       *Orchestrator
	job     *entity.Job
	profile *entity.Profile
	inbox   <-chan handoff
	logger  *zap.Logger
}

// run starts one browser session and drains the browser inbox with it.
// When the session cannot be started every code keeps its HTTP outcome.
func (w *browserWorker) run(ctx context.Context) error {
	session, setupErr := w.launch(ctx)
	if session != nil {
		defer func() {
			if err := session.Close(); err != nil {
				w.logger.Warn("Failed to close browser session", zap.Error(err))
			}
		}()
	}
	if setupErr != nil && ctx.Err() == nil {
		w.logger.Error("Browser session setup failed", zap.Error(setupErr))
	}
	queued := w.o.metrics.CodesInQueue.WithLabelValues(string(entity.SourceBrowser))

	for item := range w.inbox {
		queued.Dec()
		if ctx.Err() != nil {
			return nil
		}

		var final entity.Outcome
		if session == nil {
			final = item.prior.WithNote(setupFailureNote(setupErr))
		} else {
			out := guard(entity.SourceBrowser, 1, func() entity.Outcome {
				return session.Validate(ctx, item.code.Code, w.job.URLOverride)
			})
			if ctx.Err() != nil {
				return nil
			}
			final = compose(item.prior, out)
		}

		if err := w.o.results.MarkFinal(ctx, item.code.ResultID, final); err != nil {
			return fmt.Errorf("failed to store result %d: %w", item.code.ResultID, err)
		}
		w.logger.Debug("Code resolved",
			zap.Int64("result_id", item.code.ResultID),
			zap.String("status", string(final.Status)),
			zap.String("source", string(final.Source)),
			zap.Int("attempts", final.Attempts),
		)
	}
	return nil
}

func (w *browserWorker) launch(ctx context.Context) (session repository.BrowserSession, err error) {
	defer func() {
		if r := recover(); r != nil {
			session, err = nil, fmt.Errorf("%v", r)
		}
	}()
	return w.o.browser.Launch(ctx, w.profile)
}

// compose folds the browser outcome into the HTTP one: attempts are
// summed, the HTTP status is kept and the landing URL falls back to the
// HTTP stage's.
func compose(prior, browser entity.Outcome) entity.Outcome {
	final := browser
	final.Attempts = max(0, prior.Attempts) + max(1, browser.Attempts)
	final.HTTPStatus = prior.HTTPStatus
	if final.RedirectURL == "" {
		final.RedirectURL = prior.RedirectURL
	}
	return final
}

func setupFailureNote(err error) string {
	var b strings.Builder
	b.WriteString(string(entity.SourceBrowser))
	b.WriteString(" ")
	b.WriteString(entity.FailureSessionSetup.String())
	if err != nil {
		b.WriteString(": ")
		b.WriteString(err.Error())
	}
	return b.String()
}

package repository

import (
	"context"

	"github.com/user/redeem-checker/internal/entity"
)

// HTTPProber runs the HTTP stage for one worker. It carries the worker's
// client and cookie state.
type HTTPProber interface {
	Validate(ctx context.Context, code, urlOverride string, maxRetries, delayMS int) entity.Outcome
}

// HTTPStage creates a prober per worker.
type HTTPStage interface {
	NewProber(profile *entity.Profile) HTTPProber
}

// BrowserSession is a browser context owned by a single worker.
type BrowserSession interface {
	Validate(ctx context.Context, code, urlOverride string) entity.Outcome
	Close() error
}

// BrowserStage starts browser sessions.
type BrowserStage interface {
	Launch(ctx context.Context, profile *entity.Profile) (BrowserSession, error)
}

// ProfileProvider looks profiles up by name.
type ProfileProvider interface {
	Get(name string) (*entity.Profile, bool)
}

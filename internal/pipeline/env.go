package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
	"github.com/joshsymonds/gmailpipe/internal/rate"
	"github.com/joshsymonds/gmailpipe/internal/retry"
)

// Env carries what producer and consumer goroutines share for one run.
type Env struct {
	Client   gmail.Client
	Limiter  rate.Limiter
	Retry    retry.Policy
	Logger   *slog.Logger
	Fatal    *FatalSignal
	PageSize int
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return e.Logger
}

func (e *Env) pageSize() int {
	return PoolConfig{PageSize: e.PageSize}.pageSize()
}

// wait takes a rate limiter token before an API call.
func (e *Env) wait(ctx context.Context, operation string) error {
	if e.Limiter == nil {
		return nil
	}
	if err := e.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// call runs fn under the retry policy and raises the fatal signal when the
// final error is unrecoverable.
func (e *Env) call(ctx context.Context, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, e.Retry, gmail.Retryable, fn)
	if err != nil && IsFatal(err) && e.Fatal != nil {
		e.Fatal.Raise(err)
	}
	return err
}

func (e *Env) aborted() bool {
	return e.Fatal != nil && e.Fatal.Raised()
}

// stopped reports whether a worker should stop acting. The first worker to
// see the run context cancelled raises the fatal signal itself, so the
// interruption is the recorded cause.
func (e *Env) stopped(ctx context.Context) bool {
	if e.aborted() {
		return true
	}
	if ctx.Err() == nil {
		return false
	}
	if e.Fatal != nil {
		e.Fatal.Raise(fmt.Errorf("run interrupted: %w", context.Cause(ctx)))
	}
	return true
}

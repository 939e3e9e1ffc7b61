package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
)

// FatalSignal is the run-wide abort flag. Raising it cancels the run context
// and closes the work buffer; workers poll Raised at their yield points.
type FatalSignal struct {
	raised atomic.Bool
	once   sync.Once
	cause  error
	cancel context.CancelFunc
	close  func()
}

// NewFatalSignal wires the flag to the run's cancel function and the close
// of its buffer. Either may be nil.
func NewFatalSignal(cancel context.CancelFunc, closeBuffer func()) *FatalSignal {
	return &FatalSignal{cancel: cancel, close: closeBuffer}
}

// Raise records cause and starts the shutdown. Only the first call has an
// effect.
func (f *FatalSignal) Raise(cause error) {
	f.once.Do(func() {
		f.cause = cause
		f.raised.Store(true)
		if f.cancel != nil {
			f.cancel()
		}
		if f.close != nil {
			f.close()
		}
	})
}

func (f *FatalSignal) Raised() bool { return f.raised.Load() }

// Err returns the first cause, or nil if the signal was never raised.
func (f *FatalSignal) Err() error {
	if !f.Raised() {
		return nil
	}
	return f.cause
}

// IsFatal reports whether err must abort the whole run. Connectivity errors
// only get here after the retry budget is spent.
func IsFatal(err error) bool {
	return errors.Is(err, gmail.ErrUnauthenticated) || errors.Is(err, gmail.ErrConnectivity)
}

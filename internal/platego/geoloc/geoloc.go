// Package geoloc exposes device position as a stream of samples.
package geoloc

import (
	"context"
	"errors"
	"sync"
	"time"

	"backend-platego/internal/shared/geo"
)

var (
	// ErrDenied means the platform refused access to location. Reported
	// once; the caller disables sharing rather than retrying.
	ErrDenied = errors.New("geolocation permission denied")

	// ErrUnavailable means no position source exists or a fix timed out.
	ErrUnavailable = errors.New("geolocation unavailable")
)

type Sample struct {
	Point      geo.Point
	AccuracyM  float64
	ObservedAt time.Time
}

type Options struct {
	HighAccuracy bool
	// MaxSampleAge is the oldest cached fix the provider may hand back.
	MaxSampleAge time.Duration
	// Timeout bounds how long the provider waits for one fix.
	Timeout time.Duration
}

// Provider is a position source. Watch emits samples until ctx is cancelled;
// a terminal failure arrives once on the error channel, after which both
// channels are closed.
type Provider interface {
	Watch(ctx context.Context, opts Options) (<-chan Sample, <-chan error)
}

type Watcher struct {
	provider Provider
}

func NewWatcher(provider Provider) *Watcher {
	return &Watcher{provider: provider}
}

// Handle is one live watch. The sample sequence is infinite until Stop or a
// terminal provider error; a stopped handle cannot be restarted.
type Handle struct {
	Samples <-chan Sample
	Err     <-chan error

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Start begins watching. Each call produces an independent handle.
func (w *Watcher) Start(opts Options) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	samples, errs := w.provider.Watch(ctx, opts)

	out := make(chan Sample)
	errOut := make(chan error, 1)
	h := &Handle{Samples: out, Err: errOut, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(out)
		defer close(errOut)
		for {
			select {
			case <-h.done:
				return
			case s, ok := <-samples:
				if !ok {
					select {
					case err, ok := <-errs:
						if ok && err != nil {
							errOut <- err
						}
					default:
					}
					return
				}
				select {
				case out <- s:
				case <-h.done:
					return
				}
			case err, ok := <-errs:
				if ok && err != nil {
					errOut <- err
				}
				return
			}
		}
	}()
	return h
}

// Stop ends the watch immediately. Idempotent; after it returns no further
// samples are delivered on this handle.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.cancel()
	})
}

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	logx "tickwheel/pkg/logx"
)

// Supervisor manages named goroutines tied to a shared context:
// panic recovery, optional cancel-on-first-error, and a timeout-aware
// graceful stop.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	// Best-effort operational counters, not a synchronization primitive.
	started atomic.Uint64
	active  atomic.Int64

	errOnce  sync.Once
	firstErr atomic.Value // stores error

	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the supervisor context on the first non-nil
// goroutine error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    logx.Nop(),
		doneCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Err returns the first non-context error recorded by any goroutine.
func (s *Supervisor) Err() error {
	v := s.firstErr.Load()
	if v == nil {
		return nil
	}
	err, _ := v.(error)
	return err
}

// Counters reports goroutines started and currently active.
func (s *Supervisor) Counters() (started uint64, active int64) {
	return s.started.Load(), s.active.Load()
}

// Go runs fn on a new goroutine under the supervisor context. Context
// cancellation is not treated as a failure; panics are recovered and
// recorded as errors.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.started.Add(1)
	s.active.Add(1)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)

		err := s.runOne(name, fn)
		if err == nil || errors.Is(err, context.Canceled) {
			s.log.Debug("goroutine exited", logx.String("name", name))
			return
		}
		s.log.Error("goroutine failed", logx.String("name", name), logx.Err(err))
		s.noteErr(err)
	}()
}

func (s *Supervisor) runOne(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
			s.log.Error("panic in supervised goroutine",
				logx.String("name", name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()
	return fn(s.ctx)
}

func (s *Supervisor) noteErr(err error) {
	s.errOnce.Do(func() {
		s.firstErr.Store(err)
		if s.cancelOnErr {
			s.cancel()
		}
	})
}

// Stop cancels the supervisor context and waits for all goroutines to
// exit, or until ctx expires.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

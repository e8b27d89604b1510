package timewheel

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	logx "tickwheel/pkg/logx"
)

// Executor runs fired callbacks off the driver goroutine.
//
// Submit is fire-and-forget: it must not block and the scheduler never
// observes the outcome. The label identifies the submission in executor
// diagnostics only.
type Executor interface {
	Submit(label string, fn func())
}

// DefaultTick is the driver cadence used when Config.Tick is zero.
const DefaultTick = 50 * time.Millisecond

var (
	ErrTickTooSmall = errors.New("timewheel: tick interval must be at least 1ms")
	ErrNoExecutor   = errors.New("timewheel: executor is required")

	// ErrSpanMismatch is returned by AppendLevel when a new level does not
	// tile its coarser neighbor: the coarser span must equal the finer
	// level's bucket count times its span, or cascaded jobs degrade into
	// the fire-next-tick fallback.
	ErrSpanMismatch = errors.New("timewheel: level span does not tile the coarser level")
)

// Config controls the scheduler driver.
type Config struct {
	// Tick is the driver cadence. It should equal the finest level's bucket
	// span. Zero means DefaultTick; anything below 1ms is rejected.
	Tick time.Duration
}

// Scheduler owns a hierarchy of timing wheels and drives them from a
// single background goroutine.
//
// One exclusive lock guards the hierarchy and the cancel/reset bookkeeping;
// caller operations block only for that bookkeeping, never for callback
// execution.
type Scheduler struct {
	mu     sync.Mutex
	levels hierarchy
	nextID uint64

	// Lazy bookkeeping: cancels and resets are recorded here and applied
	// when the job is next popped as due. An id lives in at most one of
	// the two maps; the last request wins.
	pendingCancel map[uint64]struct{}
	pendingReset  map[uint64]int64

	tick time.Duration
	now  func() int64 // monotonic-enough clock, ms since the Unix epoch

	exec Executor
	log  logx.Logger

	running  bool
	stopping bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	fired uint64
}

// LevelInfo describes one wheel level for diagnostics.
type LevelInfo struct {
	Name    string
	Buckets int
	Span    time.Duration
	Index   int
	Jobs    int
}

// Snapshot is a point-in-time diagnostic view.
type Snapshot struct {
	Running        bool
	Tick           time.Duration
	NextID         uint64
	Fired          uint64
	PendingCancels int
	PendingResets  int
	Levels         []LevelInfo
}

// New builds a scheduler with no levels configured. An invalid tick
// interval is a fatal setup error: the scheduler must not be used.
func New(cfg Config, exec Executor, log logx.Logger) (*Scheduler, error) {
	tick := cfg.Tick
	if tick == 0 {
		tick = DefaultTick
	}
	if tick < time.Millisecond {
		return nil, fmt.Errorf("%w: got %v", ErrTickTooSmall, cfg.Tick)
	}
	if exec == nil {
		return nil, ErrNoExecutor
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		nextID:        1,
		pendingCancel: map[uint64]struct{}{},
		pendingReset:  map[uint64]int64{},
		tick:          tick,
		now:           func() int64 { return time.Now().UnixMilli() },
		exec:          exec,
		log:           log,
	}, nil
}

// AppendLevel adds a wheel level. The first call establishes the coarsest
// level; every later call appends a new finest level below the previous
// one. Each appended level must tile its coarser neighbor exactly
// (coarser span == bucketCount * span).
func (s *Scheduler) AppendLevel(bucketCount int, span time.Duration, name string) error {
	if bucketCount <= 0 {
		return fmt.Errorf("timewheel: bucket count must be positive, got %d", bucketCount)
	}
	ms := span.Milliseconds()
	if ms <= 0 {
		return fmt.Errorf("timewheel: bucket span must be at least 1ms, got %v", span)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.levels); n > 0 {
		prev := s.levels[n-1]
		if prev.span != int64(bucketCount)*ms {
			return fmt.Errorf("%w: level %q covers %dms but the level above spans %dms per bucket",
				ErrSpanMismatch, name, int64(bucketCount)*ms, prev.span)
		}
	}
	s.levels = append(s.levels, newWheel(bucketCount, ms, name))
	s.log.Debug("level appended",
		logx.String("name", name),
		logx.Int("buckets", bucketCount),
		logx.Duration("span", span),
		logx.Int("levels", len(s.levels)))
	return nil
}

// CreateTimerAt registers a one-shot timer due at the given absolute time.
// It returns the timer id, or 0 when no levels are configured.
func (s *Scheduler) CreateTimerAt(at time.Time, cb Callback) uint64 {
	return s.create(at.UnixMilli(), 0, cb)
}

// CreateTimerAfter registers a one-shot timer due after the given delay.
func (s *Scheduler) CreateTimerAfter(delay time.Duration, cb Callback) uint64 {
	return s.create(s.now()+delay.Milliseconds(), 0, cb)
}

// CreateTimerEvery registers a repeating timer with a fixed cadence; the
// first fire is one interval from now. A non-positive interval returns 0.
func (s *Scheduler) CreateTimerEvery(interval time.Duration, cb Callback) uint64 {
	ms := interval.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return s.create(s.now()+ms, ms, cb)
}

func (s *Scheduler) create(dueAt, interval int64, cb Callback) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.levels) == 0 {
		return 0
	}
	id := s.nextID
	s.nextID++
	s.levels.insert(0, &job{id: id, dueAt: dueAt, interval: interval, cb: cb}, s.now())
	return id
}

// ResetTimerAt records a new due time for the timer. The override is
// applied lazily, when the timer next pops as due: instead of firing it is
// re-inserted for the new due time. Unknown ids are silently ignored.
func (s *Scheduler) ResetTimerAt(id uint64, at time.Time) {
	if id == 0 {
		return
	}
	s.mu.Lock()
	delete(s.pendingCancel, id)
	s.pendingReset[id] = at.UnixMilli()
	s.mu.Unlock()
}

// ResetTimerAfter is ResetTimerAt relative to now.
func (s *Scheduler) ResetTimerAfter(id uint64, delay time.Duration) {
	if id == 0 {
		return
	}
	when := s.now() + delay.Milliseconds()
	s.mu.Lock()
	delete(s.pendingCancel, id)
	s.pendingReset[id] = when
	s.mu.Unlock()
}

// CancelTimer marks the timer for removal. The job is discarded when it
// next pops as due; a cancel that never matches is silently inert.
func (s *Scheduler) CancelTimer(id uint64) {
	if id == 0 {
		return
	}
	s.mu.Lock()
	delete(s.pendingReset, id)
	s.pendingCancel[id] = struct{}{}
	s.mu.Unlock()
}

// Start launches the driver goroutine. It returns false when no levels are
// configured or the scheduler is already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	if len(s.levels) == 0 || s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.stopping = false
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	tick := s.tick
	levels := len(s.levels)
	s.mu.Unlock()

	go s.run(stopCh, doneCh)
	s.log.Info("scheduler started", logx.Duration("tick", tick), logx.Int("levels", levels))
	return true
}

// Stop halts the driver and blocks until it has exited. An in-progress
// tick finishes first; work already handed to the executor is not waited
// on. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if s.stopping {
		done := s.doneCh
		s.mu.Unlock()
		<-done
		return
	}
	s.stopping = true
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.advance() {
				return
			}
		}
	}
}

// advance performs one driver tick: advance the finest wheel (cascading as
// needed), pop its current bucket, and settle every popped job with exactly
// one outcome: reset applied, cancelled, or fired. It reports false once
// the scheduler is stopping.
func (s *Scheduler) advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return false
	}

	now := s.now()
	finest := len(s.levels) - 1
	s.levels.tick(finest, now)

	for _, j := range s.levels[finest].popCurrent() {
		if when, ok := s.pendingReset[j.id]; ok {
			delete(s.pendingReset, j.id)
			j.advance(when)
			s.levels.insert(0, j, now)
			continue
		}
		if _, ok := s.pendingCancel[j.id]; ok {
			delete(s.pendingCancel, j.id)
			continue
		}
		if j.dueAt > now {
			// Popped on a wrap-around before its due time; park it again
			// for the remainder.
			s.levels.insert(0, j, now)
			continue
		}

		s.fired++
		s.exec.Submit("timer:"+strconv.FormatUint(j.id, 10), j.run)
		if j.repeating() {
			j.advance(0)
			s.levels.insert(0, j, now)
		}
	}
	return true
}

// Snapshot returns a diagnostic view of the hierarchy and bookkeeping.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Running:        s.running,
		Tick:           s.tick,
		NextID:         s.nextID,
		Fired:          s.fired,
		PendingCancels: len(s.pendingCancel),
		PendingResets:  len(s.pendingReset),
	}
	for _, w := range s.levels {
		snap.Levels = append(snap.Levels, LevelInfo{
			Name:    w.name,
			Buckets: w.count(),
			Span:    time.Duration(w.span) * time.Millisecond,
			Index:   w.cur,
			Jobs:    w.jobs(),
		})
	}
	return snap
}

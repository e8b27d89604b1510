package executor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"tickwheel/internal/eventbus"
	logx "tickwheel/pkg/logx"
)

type queuedTask struct {
	task    Task
	seq     uint64
	timeout time.Duration
}

// Service executes submitted callables on a fixed-size worker pool pulling
// from a single FIFO queue.
//
// Submission is non-blocking: a full queue drops the task and bumps a
// counter. Workers are panic-safe; a panicking run is captured into the
// run history instead of taking the process down.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	cfg Config

	queue     chan queuedTask
	stopCh    chan struct{}
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []RunRecord

	seq     atomic.Uint64
	dropped atomic.Uint64

	// Dropping under sustained overload would otherwise log once per task.
	dropWarn *rate.Limiter
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		dropWarn: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents double
	// worker pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
			// loop
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	qs := s.cfg.QueueSize
	if qs <= 0 {
		qs = 256
	}
	// Fresh queue per run to avoid executing stale items after a
	// stop/start toggle.
	s.queue = make(chan queuedTask, qs)

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in executor worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}

	s.log.Info("executor started", logx.Int("workers", workers), logx.Int("queue_size", qs))
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.queue = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("executor stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// Submit hands a fire-and-forget callable to the pool. It satisfies the
// scheduler's Executor contract: non-blocking, outcome not observable by
// the caller. Drops (pool stopped, queue full) are absorbed here.
func (s *Service) Submit(label string, fn func()) {
	if fn == nil {
		return
	}
	_ = s.Enqueue(Task{
		Label: label,
		Run: func(context.Context) error {
			fn()
			return nil
		},
	})
}

// Enqueue submits a task for execution.
//
// It is non-blocking: if the queue is full it returns ErrQueueFull and
// drops the task.
func (s *Service) Enqueue(t Task) error {
	if t.Run == nil {
		return ErrNilRun
	}

	s.mu.Lock()
	cfg := s.cfg
	q := s.queue
	s.mu.Unlock()

	if q == nil {
		return ErrStopped
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}

	qt := queuedTask{task: t, seq: s.seq.Add(1), timeout: timeout}
	select {
	case q <- qt:
		return nil
	default:
		s.dropped.Add(1)
		if s.dropWarn.Allow() {
			s.log.Warn("executor queue full; dropping",
				logx.String("label", t.Label),
				logx.Int("queue_len", len(q)),
				logx.Int("queue_cap", cap(q)),
				logx.Uint64("dropped", s.dropped.Load()))
		}
		s.publish(eventbus.TypeRunDropped, eventbus.RunEvent{
			Seq: qt.seq, Label: t.Label, Started: time.Now(), Error: "queue_full",
		})
		return ErrQueueFull
	}
}

func (s *Service) publish(typ string, ev eventbus.RunEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	workers := s.cfg.Workers
	ql, qc := 0, 0
	if s.queue != nil {
		ql = len(s.queue)
		qc = cap(s.queue)
	}
	s.mu.Unlock()

	if workers <= 0 {
		workers = 4
	}

	s.hmu.Lock()
	hist := make([]RunRecord, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Workers:  workers,
		QueueLen: ql,
		QueueCap: qc,
		Dropped:  s.dropped.Load(),
		History:  hist,
	}
}

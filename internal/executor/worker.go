package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"tickwheel/internal/eventbus"
	logx "tickwheel/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedTask) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	start := time.Now()
	s.publish(eventbus.TypeRunStarted, eventbus.RunEvent{
		Seq: qt.seq, Label: qt.task.Label, Started: start,
	})

	runCtx := ctx
	var cancel context.CancelFunc
	if qt.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
	}
	err := runTask(runCtx, qt.task)
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	rec := RunRecord{Seq: qt.seq, Label: qt.task.Label, Started: start, Duration: dur}
	if err != nil {
		rec.Error = err.Error()
		s.log.Warn("run failed",
			logx.String("label", qt.task.Label),
			logx.Err(err),
			logx.Duration("dur", dur))
		s.publish(eventbus.TypeRunFailed, eventbus.RunEvent{
			Seq: qt.seq, Label: qt.task.Label, Started: start, Duration: dur, Error: rec.Error,
		})
	} else {
		s.log.Debug("run completed",
			logx.String("label", qt.task.Label),
			logx.Duration("dur", dur))
		s.publish(eventbus.TypeRunFinished, eventbus.RunEvent{
			Seq: qt.seq, Label: qt.task.Label, Started: start, Duration: dur,
		})
	}

	s.hmu.Lock()
	s.history = append(s.history, rec)
	historySize := s.cfg.HistorySize
	if historySize <= 0 {
		historySize = 200
	}
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

// runTask invokes the task and converts a panic into an error. The
// scheduler has no visibility into callback outcomes; this record is the
// only trace a failing callback leaves.
func runTask(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return t.Run(ctx)
}

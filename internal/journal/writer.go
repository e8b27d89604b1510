package journal

import (
	"context"

	"tickwheel/internal/eventbus"
	logx "tickwheel/pkg/logx"
)

// Writer drains run.finished / run.failed events off the bus into the
// store. It is a plain loop intended to run under the supervisor.
type Writer struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger
}

func NewWriter(store Store, bus eventbus.Bus, log logx.Logger) *Writer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Writer{store: store, bus: bus, log: log}
}

// Run blocks until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) error {
	if w.store == nil || w.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	events, unsubscribe := w.bus.Subscribe(256)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeRunFinished && e.Type != eventbus.TypeRunFailed {
				continue
			}
			ev, ok := e.Data.(eventbus.RunEvent)
			if !ok {
				continue
			}
			rec := Record{
				At:       ev.Started,
				Seq:      ev.Seq,
				Label:    ev.Label,
				Duration: ev.Duration,
				Error:    ev.Error,
			}
			if err := w.store.AppendRun(ctx, rec); err != nil && ctx.Err() == nil {
				w.log.Warn("journal append failed", logx.String("label", ev.Label), logx.Err(err))
			}
		}
	}
}

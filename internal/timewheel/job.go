package timewheel

// Callback is the unit of work attached to a timer.
//
// It runs on the executor, never on the driver goroutine, so it may call
// back into the Scheduler (create, cancel, reset) without deadlocking.
// Ownership of any captured state belongs to the registrant.
type Callback func()

// job is one scheduled unit of work. All fields are guarded by the
// Scheduler lock; the callback itself runs unguarded on the executor.
type job struct {
	id       uint64
	dueAt    int64 // absolute ms since the Unix epoch
	interval int64 // ms between repeats; 0 means one-shot
	cb       Callback
}

func (j *job) run() {
	if j.cb != nil {
		j.cb()
	}
}

func (j *job) repeating() bool { return j.interval > 0 }

// advance moves the due time. A positive newDue overrides it (applied
// reset); otherwise the due time advances by exactly one repeat interval
// from its previous value, so repetition never drifts against the clock.
func (j *job) advance(newDue int64) {
	if newDue > 0 {
		j.dueAt = newDue
		return
	}
	j.dueAt += j.interval
}

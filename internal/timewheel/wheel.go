package timewheel

// wheel is one granularity level: a circular array of buckets, each bucket
// an unordered collection of jobs due within that bucket's span.
type wheel struct {
	name    string
	span    int64 // ms covered by one bucket
	cur     int
	buckets [][]*job
}

func newWheel(bucketCount int, span int64, name string) *wheel {
	return &wheel{
		name:    name,
		span:    span,
		buckets: make([][]*job, bucketCount),
	}
}

func (w *wheel) count() int { return len(w.buckets) }

// popCurrent detaches and returns every job in the current bucket.
func (w *wheel) popCurrent() []*job {
	jobs := w.buckets[w.cur]
	w.buckets[w.cur] = nil
	return jobs
}

func (w *wheel) jobs() int {
	n := 0
	for _, b := range w.buckets {
		n += len(b)
	}
	return n
}

// hierarchy is the ordered chain of wheels, coarsest at index 0 and finest
// last. The slice is owned by the Scheduler and only touched under its
// lock; neighbor navigation is by index.
type hierarchy []*wheel

// accumulated is the time offset represented by the wheel at level plus all
// finer wheels below it. The hierarchy's notion of "now" is this sum of
// wheel offsets, not a wall-clock read per level.
func (h hierarchy) accumulated(level int) int64 {
	if level >= len(h) {
		return 0
	}
	w := h[level]
	return int64(w.cur)*w.span + h.accumulated(level+1)
}

// insert places j into the hierarchy, starting the search at level.
//
// A job whose remaining time covers at least one bucket span stays on this
// wheel; otherwise it is delegated to the finer neighbor. The finest wheel
// rounds up and never uses the current bucket, so a job cannot pop before
// its due time; one due sooner than a tick pops on the very next tick.
func (h hierarchy) insert(level int, j *job, now int64) {
	w := h[level]
	remaining := j.dueAt + h.accumulated(level+1) - now
	finest := level == len(h)-1

	if !finest {
		if remaining < w.span {
			h.insert(level+1, j, now)
			return
		}
		// The floor is fine here: demoting one bucket early only refines
		// placement on the next wheel down.
		steps := remaining / w.span
		n := (w.cur + int(steps)) % w.count()
		w.buckets[n] = append(w.buckets[n], j)
		return
	}

	// The finest wheel pops at bucket boundaries, after advancing. Round
	// up, with a one-step minimum so already-due work pops on the next
	// tick. A job past the horizon wraps around; the driver re-checks the
	// due time at pop and re-inserts it for the remainder.
	steps := (remaining + w.span - 1) / w.span
	if steps < 1 {
		steps = 1
	}
	n := (w.cur + int(steps%int64(w.count()))) % w.count()
	w.buckets[n] = append(w.buckets[n], j)
}

// tick advances the wheel at level by one bucket. On wrap-around the
// coarser neighbor ticks too and the jobs in its now-current bucket
// cascade down into this level.
func (h hierarchy) tick(level int, now int64) {
	w := h[level]
	w.cur++
	if w.cur < w.count() {
		return
	}
	w.cur = 0

	if level == 0 {
		return
	}
	h.tick(level-1, now)
	for _, j := range h[level-1].popCurrent() {
		h.insert(level, j, now)
	}
}

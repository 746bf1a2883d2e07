// Package clock provides the wall-clock timers for an active session: the
// running workout clock and the between-sets rest countdown. Both derive
// their values from absolute timestamps rather than accumulated ticks, so a
// process suspended for any length of time reads correctly on resume.
package clock

import (
	"sync"
	"time"
)

// Workout reports elapsed time for a session from its absolute start
// timestamp and emits the value at roughly 1 Hz for display.
type Workout struct {
	mu        sync.Mutex
	now       func() time.Time
	interval  time.Duration
	startedAt time.Time
	running   bool
	stop      chan struct{}
	ticks     chan time.Duration
}

// NewWorkout returns a stopped workout clock.
func NewWorkout() *Workout {
	return &Workout{now: time.Now, interval: time.Second}
}

// Start begins emitting elapsed values measured from startedAt. Calling
// Start again with the same timestamp is a no-op; a different timestamp
// restarts the clock.
func (w *Workout) Start(startedAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		if w.startedAt.Equal(startedAt) {
			return
		}
		close(w.stop)
	}

	w.startedAt = startedAt
	w.running = true
	w.stop = make(chan struct{})
	w.ticks = make(chan time.Duration, 1)
	go w.run(startedAt, w.stop, w.ticks)
}

func (w *Workout) run(startedAt time.Time, stop chan struct{}, ticks chan time.Duration) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	defer close(ticks)

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			select {
			case ticks <- w.now().Sub(startedAt).Truncate(time.Second):
			default:
			}
		}
	}
}

// Elapsed returns the wall-clock time since Start, zero when stopped.
func (w *Workout) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return 0
	}
	return w.now().Sub(w.startedAt).Truncate(time.Second)
}

// Ticks returns the elapsed-value channel for the current run. It is closed
// when the clock stops.
func (w *Workout) Ticks() <-chan time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ticks
}

// Stop halts emission. Elapsed reads zero afterwards.
func (w *Workout) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stop)
		w.running = false
	}
}

// Rest is a countdown toward an absolute end timestamp. Remaining and
// Percent are recomputed from the wall clock on every read, so suspending
// the process cannot leave the countdown showing stale or negative values.
// The completion signal fires exactly once, even if the deadline passed
// while the process was suspended.
type Rest struct {
	mu       sync.Mutex
	now      func() time.Time
	interval time.Duration
	endAt    time.Time
	total    time.Duration
	running  bool

	done     chan struct{}
	doneOnce sync.Once
	cancel   chan struct{}
}

// NewRest starts a rest countdown of the given duration.
func NewRest(d time.Duration) *Rest {
	r := &Rest{now: time.Now, interval: time.Second}
	r.start(d)
	return r
}

func (r *Rest) start(d time.Duration) {
	r.endAt = r.now().Add(d)
	r.total = d
	r.running = true
	r.done = make(chan struct{})
	r.cancel = make(chan struct{})
	go r.run()
}

func (r *Rest) run() {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-r.cancel:
			return
		case <-t.C:
			if r.Remaining() <= 0 {
				r.complete()
				return
			}
		}
	}
}

func (r *Rest) complete() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.doneOnce.Do(func() { close(r.done) })
}

// Remaining returns the time left, clamped at zero.
func (r *Rest) Remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem := r.endAt.Sub(r.now())
	if rem < 0 {
		return 0
	}
	return rem.Truncate(time.Second)
}

// Percent returns countdown progress in [0, 1]. Extending the rest grows the
// denominator as well, so the value stays monotonic within a run.
func (r *Rest) Percent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total <= 0 {
		return 1
	}
	rem := r.endAt.Sub(r.now())
	if rem <= 0 {
		return 1
	}
	return 1 - float64(rem)/float64(r.total)
}

// Extend pushes the deadline out by delta and recomputes the total duration.
// Safe to call while the countdown is running.
func (r *Rest) Extend(delta time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.endAt = r.endAt.Add(delta)
	r.total += delta
}

// Cancel stops the countdown without firing completion.
func (r *Rest) Cancel() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()
	close(r.cancel)
}

// Done is closed exactly once when the countdown reaches zero. It never
// closes for a cancelled countdown.
func (r *Rest) Done() <-chan struct{} { return r.done }

// Cancelled is closed when the countdown was stopped before completing.
func (r *Rest) Cancelled() <-chan struct{} { return r.cancel }

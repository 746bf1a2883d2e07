// Package reconciler drains session state to durable storage. A single
// worker goroutine serializes all writes so concurrent save triggers can
// never interleave partial snapshots.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repflow/internal/session"
	"github.com/claude/repflow/internal/storage"
)

// Trigger identifies why a save was requested. Urgency decides the retry
// budget when the store is unavailable.
type Trigger int

const (
	TriggerEager Trigger = iota
	TriggerAutosave
	TriggerUrgent
)

func (t Trigger) String() string {
	switch t {
	case TriggerEager:
		return "eager"
	case TriggerAutosave:
		return "autosave"
	case TriggerUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Source is the owner of the live session. PersistSnapshot returns a
// detached copy safe to write without holding the owner's lock, or false
// when there is nothing worth saving. ApplyIDs feeds store-assigned row
// IDs back so later saves update instead of insert.
type Source interface {
	PersistSnapshot() (*session.Model, bool)
	ApplyIDs(ids session.IDAssignments)
}

// Config tunes save cadence and retry behavior. Zero values fall back to
// the defaults.
type Config struct {
	AutosaveInterval time.Duration
	EagerSuppression time.Duration
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	RoutineAttempts  int
	UrgentAttempts   int
}

func (c Config) withDefaults() Config {
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = 2 * time.Minute
	}
	if c.EagerSuppression <= 0 {
		c.EagerSuppression = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Second
	}
	if c.RoutineAttempts <= 0 {
		c.RoutineAttempts = 3
	}
	if c.UrgentAttempts <= 0 {
		c.UrgentAttempts = 5
	}
	return c
}

// Reconciler owns the save worker. Requests are coalesced: when one is
// already queued, further triggers of the same class are dropped because
// the queued save will pick up the latest state anyway.
type Reconciler struct {
	gw  storage.Gateway
	src Source
	cfg Config
	log *slog.Logger
	now func() time.Time

	requests chan Trigger
	urgent   chan struct{}
	stop     chan struct{}
	done     chan struct{}

	// writeMu serializes saves between the worker and FinalSave.
	writeMu sync.Mutex

	mu        sync.Mutex
	lastEager time.Time
}

func New(gw storage.Gateway, src Source, cfg Config, log *slog.Logger) *Reconciler {
	return &Reconciler{
		gw:       gw,
		src:      src,
		cfg:      cfg.withDefaults(),
		log:      log,
		now:      time.Now,
		requests: make(chan Trigger, 16),
		urgent:   make(chan struct{}, 4),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop shuts the worker down. Pending requests are abandoned; callers
// that need a guaranteed write should use FinalSave first.
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

// Eager requests a prompt save after a meaningful mutation. Never blocks.
func (r *Reconciler) Eager() {
	r.mu.Lock()
	r.lastEager = r.now()
	r.mu.Unlock()
	select {
	case r.requests <- TriggerEager:
	default:
	}
}

// Urgent requests a save with the extended retry budget, for lifecycle
// moments like the app being backgrounded. Never blocks.
func (r *Reconciler) Urgent() {
	select {
	case r.urgent <- struct{}{}:
	default:
	}
}

func (r *Reconciler) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.urgent:
			r.save(TriggerUrgent)
		case t := <-r.requests:
			r.save(t)
		case <-ticker.C:
			if r.recentEager() {
				continue
			}
			r.save(TriggerAutosave)
		case <-r.stop:
			return
		}
	}
}

// recentEager reports whether an eager save fired within the suppression
// window, making a periodic save redundant.
func (r *Reconciler) recentEager() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.lastEager.IsZero() && r.now().Sub(r.lastEager) < r.cfg.EagerSuppression
}

// save writes one snapshot, retrying with exponential backoff. Failures
// after the attempt budget are logged and swallowed: the session stays
// live and the next trigger tries again.
func (r *Reconciler) save(t Trigger) {
	attempts := r.cfg.RoutineAttempts
	if t == TriggerUrgent {
		attempts = r.cfg.UrgentAttempts
	}

	backoff := r.cfg.BackoffBase
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff):
			case <-r.stop:
				return
			}
			backoff *= 2
			if backoff > r.cfg.BackoffCap {
				backoff = r.cfg.BackoffCap
			}
		}
		if err = r.saveOnce(context.Background()); err == nil {
			return
		}
		r.log.Warn("session save failed", "trigger", t.String(), "attempt", i+1, "error", err)
	}
	r.log.Error("session save abandoned", "trigger", t.String(), "attempts", attempts, "error", err)
}

// saveOnce performs a single save pass. Row IDs assigned by the store are
// applied back to the source even when a later statement fails, so a
// retry updates the rows already written instead of duplicating them.
func (r *Reconciler) saveOnce(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	snap, ok := r.src.PersistSnapshot()
	if !ok {
		return nil
	}

	ids := session.NewIDAssignments()
	defer func() { r.src.ApplyIDs(ids) }()

	sessionID, err := r.gw.UpsertSessionHeader(ctx, &snap.Session)
	if err != nil {
		return err
	}
	ids.SessionID = sessionID
	snap.Session.ID = sessionID

	for i := range snap.Session.Exercises {
		if !snap.ExerciseTouched(i) {
			continue
		}
		ex := &snap.Session.Exercises[i]
		exID, err := r.gw.UpsertSessionExercise(ctx, sessionID, ex)
		if err != nil {
			return err
		}
		ids.Exercises[ex.ExerciseID] = exID
		ex.ID = exID

		for j := range ex.Sets {
			set := &ex.Sets[j]
			if !set.Completed && !session.SetTouched(ex, set) {
				continue
			}
			setID, err := r.gw.UpsertSet(ctx, exID, set)
			if err != nil {
				return err
			}
			ids.SetID(ex.ExerciseID, set.SetNumber, setID)
		}
	}
	return nil
}

// FinalSave persists the finished session, retrying until it succeeds or
// the context is done. Finishing a workout must not silently lose data,
// so unlike routine saves there is no attempt cap.
func (r *Reconciler) FinalSave(ctx context.Context) error {
	backoff := r.cfg.BackoffBase
	for {
		err := r.saveOnce(ctx)
		if err == nil {
			return nil
		}
		r.log.Warn("final save failed, retrying", "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return err
		}
		backoff *= 2
		if backoff > r.cfg.BackoffCap {
			backoff = r.cfg.BackoffCap
		}
	}
}

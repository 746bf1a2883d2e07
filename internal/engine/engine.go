// Package engine drives the live workout: the state machine around the
// session model, the workout and rest clocks, and the save triggers. All
// user intents enter here; the engine decides what they mean in the
// current state and which of them warrant an immediate save.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/clock"
	"github.com/claude/repflow/internal/models"
	"github.com/claude/repflow/internal/recovery"
	"github.com/claude/repflow/internal/session"
	"github.com/claude/repflow/internal/storage"
)

// State is the lifecycle phase of the engine.
type State int

const (
	StateIdle State = iota
	StateActive
	StateResting
	StateBackgrounded
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateResting:
		return "resting"
	case StateBackgrounded:
		return "backgrounded"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// StateError rejects an intent that is not legal in the current state.
type StateError struct {
	State  State
	Intent string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Intent, e.State)
}

// Saver is the persistence side of the engine, satisfied by the
// reconciler. Eager and Urgent are asynchronous triggers; FinalSave
// blocks until the finished session is durably stored.
type Saver interface {
	Eager()
	Urgent()
	FinalSave(ctx context.Context) error
}

// foregroundRefreshAfter is how long the app must have been away before a
// return to foreground re-reads the store instead of trusting memory.
const foregroundRefreshAfter = 5 * time.Minute

// Engine owns the active session. It is safe for concurrent use; every
// intent takes the engine lock, mutates the model, and emits a snapshot.
type Engine struct {
	log  *slog.Logger
	cat  storage.Catalog
	hist storage.History
	gw   storage.Gateway

	mu             sync.Mutex
	state          State
	prev           State
	model          *session.Model
	saver          Saver
	workClock      *clock.Workout
	restClock      *clock.Rest
	restGen        int
	backgroundedAt time.Time
	now            func() time.Time

	updates chan Snapshot
}

func New(cat storage.Catalog, hist storage.History, gw storage.Gateway, log *slog.Logger) *Engine {
	return &Engine{
		log:       log,
		cat:       cat,
		hist:      hist,
		gw:        gw,
		state:     StateIdle,
		workClock: clock.NewWorkout(),
		now:       time.Now,
		updates:   make(chan Snapshot, 1),
	}
}

// SetSaver wires the persistence trigger. The reconciler needs the engine
// as its snapshot source, so the two are connected after construction.
func (e *Engine) SetSaver(s Saver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saver = s
}

// PersistSnapshot returns a detached copy of the session for the save
// worker, with the live elapsed time folded in. False when there is
// nothing to save.
func (e *Engine) PersistSnapshot() (*session.Model, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil || e.state == StateIdle {
		return nil, false
	}
	snap := e.model.Clone()
	if elapsed := e.workClock.Elapsed(); elapsed > 0 {
		snap.Session.ElapsedSec = int(elapsed / time.Second)
	}
	return snap, true
}

// ApplyIDs records store-assigned row IDs on the live model.
func (e *Engine) ApplyIDs(ids session.IDAssignments) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return
	}
	e.model.ApplyIDs(ids)
}

// Start begins a fresh session from a routine. Legal from Idle or after a
// previous session completed. Nothing is persisted yet: the first save
// happens on the first meaningful mutation, so an abandoned empty session
// leaves no row behind.
func (e *Engine) Start(ctx context.Context, routineID uuid.UUID) error {
	routine, err := e.cat.GetRoutine(ctx, routineID)
	if err != nil {
		return fmt.Errorf("loading routine: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle && e.state != StateCompleted {
		return &StateError{State: e.state, Intent: "start a session"}
	}

	e.stopRestLocked()
	e.model = session.NewFromRoutine(routine, e.now())
	e.workClock.Start(e.model.Session.StartedAt)
	e.state = StateActive
	e.log.Info("session started", "routine", routine.Name)
	e.publishLocked()
	return nil
}

// Restore adopts a recovered session at boot. The workout clock resumes
// from the persisted start time, so elapsed time spans the outage.
func (e *Engine) Restore(m *session.Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return &StateError{State: e.state, Intent: "restore a session"}
	}
	e.model = m
	e.workClock.Start(m.Session.StartedAt)
	e.state = StateActive
	e.log.Info("session restored", "session_id", m.Session.ID)
	e.publishLocked()
	return nil
}

// CompleteSet records a finished set. If the set carries a rest target
// the engine starts the rest countdown and moves to Resting; otherwise it
// stays Active. Completing a set is a meaningful event and saves eagerly.
func (e *Engine) CompleteSet(exIdx, setIdx, reps int, weightKg float64, restSec int, intensity models.Intensity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive && e.state != StateResting {
		return &StateError{State: e.state, Intent: "complete a set"}
	}
	if err := e.model.CompleteSet(exIdx, setIdx, reps, weightKg, restSec, intensity); err != nil {
		return err
	}

	e.stopRestLocked()
	if restSec > 0 && !e.model.IsFullyComplete() {
		e.startRestLocked(time.Duration(restSec) * time.Second)
		e.state = StateResting
	} else {
		e.state = StateActive
	}
	e.saveEagerLocked()
	e.publishLocked()
	return nil
}

// AddSet appends a set to an exercise, carrying forward the matching set
// from the last completed session of this routine when history exists.
func (e *Engine) AddSet(ctx context.Context, exIdx int) error {
	e.mu.Lock()
	if e.state != StateActive && e.state != StateResting {
		e.mu.Unlock()
		return &StateError{State: e.state, Intent: "add a set"}
	}
	if exIdx < 0 || exIdx >= len(e.model.Session.Exercises) {
		e.mu.Unlock()
		return &session.ValidationError{Field: "exercise", Reason: "index out of range"}
	}
	exerciseID := e.model.Session.Exercises[exIdx].ExerciseID
	routineID := e.model.Session.RoutineID
	e.mu.Unlock()

	history, err := e.hist.LastCompletedSets(ctx, exerciseID, routineID)
	if err != nil {
		// History is a convenience; the add still proceeds.
		e.log.Warn("history lookup failed", "error", err)
		history = nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive && e.state != StateResting {
		return &StateError{State: e.state, Intent: "add a set"}
	}
	if err := e.model.AddSet(exIdx, history); err != nil {
		return err
	}
	e.saveEagerLocked()
	e.publishLocked()
	return nil
}

// RemoveSet drops the last uncompleted set of an exercise.
func (e *Engine) RemoveSet(exIdx int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive && e.state != StateResting {
		return &StateError{State: e.state, Intent: "remove a set"}
	}
	if err := e.model.RemoveSet(exIdx); err != nil {
		return err
	}
	e.saveEagerLocked()
	e.publishLocked()
	return nil
}

// UpdateSet edits an uncompleted set's targets. Edits to future sets are
// not meaningful events, so no eager save fires; the autosave picks them
// up.
func (e *Engine) UpdateSet(exIdx, setIdx, reps int, weightKg float64, restSec int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive && e.state != StateResting {
		return &StateError{State: e.state, Intent: "update a set"}
	}
	if err := e.model.UpdateSet(exIdx, setIdx, reps, weightKg, restSec); err != nil {
		return err
	}
	e.publishLocked()
	return nil
}

// OverrideIntensity pins a user-picked intensity on a set.
func (e *Engine) OverrideIntensity(exIdx, setIdx int, intensity models.Intensity) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil || e.state == StateIdle || e.state == StateCompleted {
		return &StateError{State: e.state, Intent: "override intensity"}
	}
	if err := e.model.OverrideIntensity(exIdx, setIdx, intensity); err != nil {
		return err
	}
	e.publishLocked()
	return nil
}

// SetNotes writes notes at session, exercise, or set scope. Indexes below
// zero select the wider scope.
func (e *Engine) SetNotes(exIdx, setIdx int, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil || e.state == StateIdle || e.state == StateCompleted {
		return &StateError{State: e.state, Intent: "edit notes"}
	}
	var err error
	switch {
	case exIdx < 0:
		err = e.model.SetSessionNotes(text)
	case setIdx < 0:
		err = e.model.SetExerciseNotes(exIdx, text)
	default:
		err = e.model.SetSetNotes(exIdx, setIdx, text)
	}
	if err != nil {
		return err
	}
	e.publishLocked()
	return nil
}

// SkipRest cancels the running rest countdown and returns to Active.
func (e *Engine) SkipRest() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateResting {
		return &StateError{State: e.state, Intent: "skip rest"}
	}
	e.stopRestLocked()
	e.state = StateActive
	e.publishLocked()
	return nil
}

// ExtendRest adds time to the running rest countdown.
func (e *Engine) ExtendRest(delta time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateResting || e.restClock == nil {
		return &StateError{State: e.state, Intent: "extend rest"}
	}
	if delta <= 0 {
		return &session.ValidationError{Field: "extend_sec", Reason: "must be positive"}
	}
	e.restClock.Extend(delta)
	e.publishLocked()
	return nil
}

// Background records the app moving out of the foreground. The session
// keeps running on wall-clock time; an urgent save protects against the
// process being killed while away.
func (e *Engine) Background(at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateActive, StateResting:
	default:
		return &StateError{State: e.state, Intent: "background"}
	}
	e.prev = e.state
	e.state = StateBackgrounded
	e.backgroundedAt = at
	e.saveUrgentLocked()
	e.publishLocked()
	return nil
}

// Foreground returns from the background. Clocks never stopped, so rest
// and elapsed are already correct. After a long absence the engine
// re-reads its own persisted rows and re-merges them, in case another
// process advanced the session meanwhile.
func (e *Engine) Foreground(ctx context.Context, at time.Time) error {
	e.mu.Lock()
	if e.state != StateBackgrounded {
		e.mu.Unlock()
		return &StateError{State: e.state, Intent: "foreground"}
	}
	away := at.Sub(e.backgroundedAt)
	restore := e.prev
	if restore == StateResting && (e.restClock == nil || e.restClock.Remaining() <= 0) {
		restore = StateActive
	}
	e.state = restore
	sessionID := e.model.Session.ID
	e.mu.Unlock()

	if away >= foregroundRefreshAfter && sessionID != "" {
		if err := e.refreshFromStore(ctx, sessionID); err != nil {
			e.log.Warn("foreground refresh failed, keeping in-memory state", "error", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishLocked()
	return nil
}

// refreshFromStore overlays the persisted rows onto the live model.
func (e *Engine) refreshFromStore(ctx context.Context, sessionID string) error {
	persisted, err := e.gw.ListSessionExercises(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("listing session exercises: %w", err)
	}
	for i := range persisted {
		sets, err := e.gw.ListSets(ctx, persisted[i].ID)
		if err != nil {
			return fmt.Errorf("listing sets: %w", err)
		}
		persisted[i].Sets = sets
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	recovery.MergePersisted(e.model, persisted, e.log)
	return nil
}

// Minimize fires an urgent save without leaving the current state, for UI
// surfaces that shrink the session view but keep the app foregrounded.
func (e *Engine) Minimize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateActive, StateResting:
	default:
		return &StateError{State: e.state, Intent: "minimize"}
	}
	e.saveUrgentLocked()
	return nil
}

// Finish completes the workout. A session may be finished with incomplete
// sets remaining. The final save blocks and retries until it lands or the
// context expires; on failure the completion is rolled back so the
// session stays live and recoverable.
func (e *Engine) Finish(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateActive, StateResting, StateBackgrounded:
	default:
		e.mu.Unlock()
		return &StateError{State: e.state, Intent: "finish the session"}
	}
	if err := e.model.MarkCompleted(e.now()); err != nil {
		e.mu.Unlock()
		return err
	}
	if elapsed := e.workClock.Elapsed(); elapsed > 0 {
		e.model.Session.ElapsedSec = int(elapsed / time.Second)
	}
	saver := e.saver
	e.mu.Unlock()

	if err := saver.FinalSave(ctx); err != nil {
		e.mu.Lock()
		e.model.ClearCompleted()
		e.mu.Unlock()
		return fmt.Errorf("persisting finished session: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopRestLocked()
	e.workClock.Stop()
	e.state = StateCompleted
	e.log.Info("session finished",
		"session_id", e.model.Session.ID,
		"elapsed_sec", e.model.Session.ElapsedSec)
	e.publishLocked()
	return nil
}

// Snapshot returns the current view of the session.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Updates is a drop-stale stream of snapshots: a slow reader only ever
// misses intermediate frames, never the latest one.
func (e *Engine) Updates() <-chan Snapshot {
	return e.updates
}

func (e *Engine) saveEagerLocked() {
	if e.saver != nil {
		e.saver.Eager()
	}
}

func (e *Engine) saveUrgentLocked() {
	if e.saver != nil {
		e.saver.Urgent()
	}
}

func (e *Engine) startRestLocked(d time.Duration) {
	e.restClock = clock.NewRest(d)
	e.restGen++
	go e.watchRest(e.restClock, e.restGen)
}

func (e *Engine) stopRestLocked() {
	if e.restClock != nil {
		e.restClock.Cancel()
		e.restClock = nil
	}
}

// watchRest waits for the countdown to elapse and transitions Resting
// back to Active. The generation guard discards completions from a rest
// clock that was already replaced.
func (e *Engine) watchRest(r *clock.Rest, gen int) {
	select {
	case <-r.Done():
	case <-r.Cancelled():
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.restGen != gen {
		return
	}
	e.restClock = nil
	switch e.state {
	case StateResting:
		e.state = StateActive
	case StateBackgrounded:
		if e.prev == StateResting {
			e.prev = StateActive
		}
	}
	e.publishLocked()
}

func (e *Engine) publishLocked() {
	snap := e.snapshotLocked()
	for {
		select {
		case e.updates <- snap:
			return
		default:
			select {
			case <-e.updates:
			default:
			}
		}
	}
}

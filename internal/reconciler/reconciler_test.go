package reconciler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/models"
	"github.com/claude/repflow/internal/session"
	"github.com/claude/repflow/internal/storage"
)

var errDown = errors.New("store unavailable")

// fakeGateway records every upsert with its time and can be told to fail
// the first N header writes.
type fakeGateway struct {
	mu          sync.Mutex
	headerCalls []time.Time
	exercises   []uuid.UUID
	sets        []int
	failHeaders int
	saved       chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{saved: make(chan struct{}, 16)}
}

func (g *fakeGateway) UpsertSessionHeader(_ context.Context, _ *models.Session) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.headerCalls = append(g.headerCalls, time.Now())
	if len(g.headerCalls) <= g.failHeaders {
		return "", errDown
	}
	select {
	case g.saved <- struct{}{}:
	default:
	}
	return "sess-1", nil
}

func (g *fakeGateway) UpsertSessionExercise(_ context.Context, _ string, ex *models.SessionExercise) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exercises = append(g.exercises, ex.ExerciseID)
	return fmt.Sprintf("ex-%d", len(g.exercises)), nil
}

func (g *fakeGateway) UpsertSet(_ context.Context, _ string, set *models.Set) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sets = append(g.sets, set.SetNumber)
	return fmt.Sprintf("set-%d", len(g.sets)), nil
}

func (g *fakeGateway) FindIncompleteSession(context.Context, uuid.UUID) (*models.Session, error) {
	return nil, nil
}

func (g *fakeGateway) ListSessionExercises(context.Context, string) ([]models.SessionExercise, error) {
	return nil, nil
}

func (g *fakeGateway) ListSets(context.Context, string) ([]models.Set, error) {
	return nil, nil
}

var _ storage.Gateway = (*fakeGateway)(nil)

// fakeSource owns a session model the way the engine does.
type fakeSource struct {
	mu    sync.Mutex
	model *session.Model
}

func (s *fakeSource) PersistSnapshot() (*session.Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return nil, false
	}
	return s.model.Clone(), true
}

func (s *fakeSource) ApplyIDs(ids session.IDAssignments) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.ApplyIDs(ids)
}

func testModel(t *testing.T) *session.Model {
	t.Helper()
	r := &models.Routine{
		ID:   uuid.New(),
		Name: "Push Day",
		Exercises: []models.RoutineExercise{
			{Exercise: models.Exercise{ID: uuid.New(), Name: "Bench Press"}, Position: 1, PlannedSets: 3, DefaultRestSec: 120},
			{Exercise: models.Exercise{ID: uuid.New(), Name: "Overhead Press"}, Position: 2, PlannedSets: 3, DefaultRestSec: 90},
		},
	}
	return session.NewFromRoutine(r, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
}

func newTestReconciler(gw *fakeGateway, src Source, cfg Config) *Reconciler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(gw, src, cfg, log)
}

func TestSaveSkipsUntouchedExercises(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{model: testModel(t)}
	if err := src.model.CompleteSet(0, 0, 8, 60, 120, ""); err != nil {
		t.Fatal(err)
	}
	r := newTestReconciler(gw, src, Config{})

	if err := r.saveOnce(context.Background()); err != nil {
		t.Fatalf("saveOnce() = %v, want nil", err)
	}

	if got := len(gw.headerCalls); got != 1 {
		t.Errorf("header writes = %d, want 1", got)
	}
	if got := len(gw.exercises); got != 1 {
		t.Fatalf("exercise writes = %d, want 1 (second exercise is untouched)", got)
	}
	if gw.exercises[0] != src.model.Session.Exercises[0].ExerciseID {
		t.Errorf("wrote exercise %s, want the touched one", gw.exercises[0])
	}
	if got := len(gw.sets); got != 1 {
		t.Errorf("set writes = %d, want 1 (only the completed set)", got)
	}
}

func TestSaveAppliesAssignedIDs(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{model: testModel(t)}
	if err := src.model.CompleteSet(0, 0, 8, 60, 120, ""); err != nil {
		t.Fatal(err)
	}
	r := newTestReconciler(gw, src, Config{})

	if err := r.saveOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := src.model.Session.ID; got != "sess-1" {
		t.Errorf("session ID = %q, want %q", got, "sess-1")
	}
	if got := src.model.Session.Exercises[0].ID; got != "ex-1" {
		t.Errorf("exercise ID = %q, want %q", got, "ex-1")
	}
	if got := src.model.Session.Exercises[0].Sets[0].ID; got != "set-1" {
		t.Errorf("set ID = %q, want %q", got, "set-1")
	}
	if got := src.model.Session.Exercises[1].ID; got != "" {
		t.Errorf("untouched exercise ID = %q, want empty", got)
	}
}

func TestSaveNothingWhenSourceEmpty(t *testing.T) {
	gw := newFakeGateway()
	r := newTestReconciler(gw, &fakeSource{}, Config{})

	if err := r.saveOnce(context.Background()); err != nil {
		t.Fatalf("saveOnce() = %v, want nil", err)
	}
	if got := len(gw.headerCalls); got != 0 {
		t.Errorf("header writes = %d, want 0", got)
	}
}

func TestSaveRetriesWithBackoff(t *testing.T) {
	gw := newFakeGateway()
	gw.failHeaders = 2
	src := &fakeSource{model: testModel(t)}
	base := 20 * time.Millisecond
	r := newTestReconciler(gw, src, Config{BackoffBase: base, BackoffCap: time.Second})

	r.save(TriggerEager)

	calls := gw.headerCalls
	if len(calls) != 3 {
		t.Fatalf("attempts = %d, want 3", len(calls))
	}
	if gap := calls[1].Sub(calls[0]); gap < base {
		t.Errorf("first retry after %v, want >= %v", gap, base)
	}
	if gap := calls[2].Sub(calls[1]); gap < 2*base {
		t.Errorf("second retry after %v, want >= %v (doubled)", gap, 2*base)
	}
}

func TestSaveGivesUpAfterRoutineBudget(t *testing.T) {
	gw := newFakeGateway()
	gw.failHeaders = 100
	src := &fakeSource{model: testModel(t)}
	r := newTestReconciler(gw, src, Config{BackoffBase: time.Millisecond, BackoffCap: 2 * time.Millisecond})

	r.save(TriggerEager)
	if got := len(gw.headerCalls); got != 3 {
		t.Errorf("routine attempts = %d, want 3", got)
	}

	gw.headerCalls = nil
	r.save(TriggerUrgent)
	if got := len(gw.headerCalls); got != 5 {
		t.Errorf("urgent attempts = %d, want 5", got)
	}
}

func TestAutosaveSuppressionWindow(t *testing.T) {
	r := newTestReconciler(newFakeGateway(), &fakeSource{}, Config{})
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return at }

	r.Eager()
	at = at.Add(10 * time.Second)
	if !r.recentEager() {
		t.Error("autosave 10s after an eager save should be suppressed")
	}
	at = at.Add(25 * time.Second)
	if r.recentEager() {
		t.Error("autosave 35s after an eager save should run")
	}
}

func TestWorkerSavesOnEagerTrigger(t *testing.T) {
	gw := newFakeGateway()
	src := &fakeSource{model: testModel(t)}
	r := newTestReconciler(gw, src, Config{AutosaveInterval: time.Hour})
	r.Start()
	defer r.Stop()

	r.Eager()
	select {
	case <-gw.saved:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not save after Eager()")
	}
}

func TestFinalSaveRetriesUntilSuccess(t *testing.T) {
	gw := newFakeGateway()
	gw.failHeaders = 4
	src := &fakeSource{model: testModel(t)}
	r := newTestReconciler(gw, src, Config{BackoffBase: time.Millisecond, BackoffCap: 2 * time.Millisecond})

	if err := r.FinalSave(context.Background()); err != nil {
		t.Fatalf("FinalSave() = %v, want nil", err)
	}
	if got := len(gw.headerCalls); got != 5 {
		t.Errorf("attempts = %d, want 5", got)
	}
}

func TestFinalSaveStopsOnContextDone(t *testing.T) {
	gw := newFakeGateway()
	gw.failHeaders = 10000
	src := &fakeSource{model: testModel(t)}
	r := newTestReconciler(gw, src, Config{BackoffBase: 5 * time.Millisecond, BackoffCap: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.FinalSave(ctx); !errors.Is(err, errDown) {
		t.Errorf("FinalSave() = %v, want %v", err, errDown)
	}
}

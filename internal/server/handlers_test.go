package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/engine"
	"github.com/claude/repflow/internal/models"
	"github.com/claude/repflow/internal/reconciler"
	"github.com/claude/repflow/internal/storage"
)

const testKey = "test-key-123"

func newTestServer(t *testing.T) (*Server, *models.Routine) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "repflow.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := t.Context()
	bench := &models.Exercise{Name: "Bench Press", Equipment: "barbell"}
	if err := store.UpsertExercise(ctx, bench); err != nil {
		t.Fatal(err)
	}
	routine := &models.Routine{
		Name: "Push Day",
		Exercises: []models.RoutineExercise{
			{Exercise: *bench, Position: 1, PlannedSets: 3, DefaultRestSec: 120},
		},
	}
	if err := store.ReplaceRoutine(ctx, routine); err != nil {
		t.Fatal(err)
	}

	eng := engine.New(store, store, store, log)
	rec := reconciler.New(store, eng, reconciler.Config{}, log)
	eng.SetSaver(rec)

	return New(eng, store, testKey, log), routine
}

func doJSON(t *testing.T, s *Server, method, path string, body any, withKey bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body == nil {
		body = map[string]any{}
	}
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("X-API-Key", testKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) engine.Snapshot {
	t.Helper()
	var snap engine.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return snap
}

func startTestSession(t *testing.T, s *Server, routine *models.Routine) {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/start",
		map[string]string{"routine_id": routine.ID.String()}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
}

// TestStartRequiresAPIKey verifies mutation routes reject missing and
// wrong keys.
func TestStartRequiresAPIKey(t *testing.T) {
	s, routine := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/start",
		map[string]string{"routine_id": routine.ID.String()}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/start", bytes.NewBufferString("{}"))
	req.Header.Set("X-API-Key", "wrong")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestStartAndSnapshot(t *testing.T) {
	s, routine := newTestServer(t)
	startTestSession(t, s, routine)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/session", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	snap := decodeSnapshot(t, rec)
	if snap.State != "active" {
		t.Errorf("state = %q, want active", snap.State)
	}
	if snap.Session == nil || len(snap.Session.Exercises) != 1 {
		t.Fatalf("session = %+v, want 1 exercise", snap.Session)
	}
	if got := len(snap.Session.Exercises[0].Sets); got != 3 {
		t.Errorf("sets = %d, want 3", got)
	}
}

func TestStartUnknownRoutine(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/start",
		map[string]string{"routine_id": uuid.NewString()}, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCompleteSetFlow(t *testing.T) {
	s, routine := newTestServer(t)
	startTestSession(t, s, routine)

	path := "/api/v1/session/exercises/0/sets/0/complete"
	rec := doJSON(t, s, http.MethodPost, path,
		map[string]any{"reps": 8, "weight_kg": 60, "rest_sec": 120}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	snap := decodeSnapshot(t, rec)
	if snap.State != "resting" {
		t.Errorf("state = %q, want resting", snap.State)
	}
	if snap.Rest == nil {
		t.Error("rest countdown missing from snapshot")
	}
	if got := snap.Session.Exercises[0].Sets[0].Intensity; got != models.IntensityModerate {
		t.Errorf("intensity = %q, want moderate for 8 reps", got)
	}

	// Completing the same set again is a conflict.
	rec = doJSON(t, s, http.MethodPost, path,
		map[string]any{"reps": 8, "weight_kg": 60}, true)
	if rec.Code != http.StatusConflict {
		t.Errorf("repeat status = %d, want 409", rec.Code)
	}

	// Zero reps is invalid input.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/exercises/0/sets/1/complete",
		map[string]any{"reps": 0, "weight_kg": 60}, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid status = %d, want 422", rec.Code)
	}
}

func TestAddAndRemoveSet(t *testing.T) {
	s, routine := newTestServer(t)
	startTestSession(t, s, routine)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/exercises/0/sets", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d, body %s", rec.Code, rec.Body)
	}
	if got := len(decodeSnapshot(t, rec).Session.Exercises[0].Sets); got != 4 {
		t.Errorf("sets = %d, want 4", got)
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/session/exercises/0/sets", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d", rec.Code)
	}
	if got := len(decodeSnapshot(t, rec).Session.Exercises[0].Sets); got != 3 {
		t.Errorf("sets = %d, want 3", got)
	}
}

func TestSkipRestRejectedWhileActive(t *testing.T) {
	s, routine := newTestServer(t)
	startTestSession(t, s, routine)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/rest/skip", nil, true)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestFinishPersistsSession(t *testing.T) {
	s, routine := newTestServer(t)
	startTestSession(t, s, routine)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/session/exercises/0/sets/0/complete",
		map[string]any{"reps": 5, "weight_kg": 100}, true)
	if rec.Code != http.StatusOK {
		t.Fatal(rec.Body)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/session/finish", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("finish status = %d, body %s", rec.Code, rec.Body)
	}
	snap := decodeSnapshot(t, rec)
	if snap.State != "completed" {
		t.Errorf("state = %q, want completed", snap.State)
	}
	if snap.Session.CompletedAt == nil {
		t.Error("completed_at missing")
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/sessions", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var sessions []models.Session
	if err := json.NewDecoder(rec.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s", sessions[0].ID), nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
}

func TestListRoutines(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/routines", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var routines []models.Routine
	if err := json.NewDecoder(rec.Body).Decode(&routines); err != nil {
		t.Fatal(err)
	}
	if len(routines) != 1 || routines[0].Name != "Push Day" {
		t.Errorf("routines = %+v, want Push Day", routines)
	}
}

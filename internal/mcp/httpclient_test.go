package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/engine"
	"github.com/claude/repflow/internal/models"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestActiveSession verifies the snapshot endpoint parses into an engine
// snapshot.
func TestActiveSession(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/session": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("method = %s, want GET", r.Method)
			}
			writeTestJSON(t, w, engine.Snapshot{State: "resting", Progress: 0.25})
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "key")
	snap, err := c.ActiveSession(context.Background())
	if err != nil {
		t.Fatalf("ActiveSession() = %v", err)
	}
	if snap.State != "resting" {
		t.Errorf("state = %q, want resting", snap.State)
	}
	if snap.Progress != 0.25 {
		t.Errorf("progress = %v, want 0.25", snap.Progress)
	}
}

// TestLogSetSendsAPIKey verifies mutating calls carry the API key and the
// set payload.
func TestLogSetSendsAPIKey(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/session/exercises/0/sets/1/complete": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-API-Key"); got != "secret" {
				t.Errorf("X-API-Key = %q, want secret", got)
			}
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body["reps"] != float64(8) || body["weight_kg"] != float64(60) {
				t.Errorf("body = %v", body)
			}
			writeTestJSON(t, w, engine.Snapshot{State: "resting"})
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "secret")
	snap, err := c.LogSet(context.Background(), 0, 1, 8, 60, 120)
	if err != nil {
		t.Fatalf("LogSet() = %v", err)
	}
	if snap.State != "resting" {
		t.Errorf("state = %q, want resting", snap.State)
	}
}

func TestExerciseHistoryQueryParams(t *testing.T) {
	exerciseID := uuid.New()
	routineID := uuid.New()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/history/" + exerciseID.String(): func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("routine"); got != routineID.String() {
				t.Errorf("routine = %q, want %s", got, routineID)
			}
			writeTestJSON(t, w, []models.Set{{SetNumber: 1, Reps: 8, WeightKg: 60, Completed: true}})
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "key")
	sets, err := c.ExerciseHistory(context.Background(), exerciseID, routineID)
	if err != nil {
		t.Fatalf("ExerciseHistory() = %v", err)
	}
	if len(sets) != 1 || sets[0].WeightKg != 60 {
		t.Errorf("sets = %+v", sets)
	}
}

// TestErrorStatus verifies non-200 responses surface as errors with the
// response body included.
func TestErrorStatus(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/session/finish": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			writeTestJSON(t, w, map[string]string{"error": "cannot finish the session while idle"})
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "key")
	if _, err := c.FinishSession(context.Background()); err == nil {
		t.Fatal("FinishSession() = nil, want error on 409")
	}
}

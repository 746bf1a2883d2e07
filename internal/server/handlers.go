package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/repflow/internal/engine"
	"github.com/claude/repflow/internal/models"
	"github.com/claude/repflow/internal/session"
	"github.com/claude/repflow/internal/storage"
)

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoutineID uuid.UUID `json:"routine_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.RoutineID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "routine_id required"})
		return
	}
	if err := s.engine.Start(r.Context(), req.RoutineID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleWatch streams snapshots as server-sent events until the client
// disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func(snap engine.Snapshot) bool {
		data, err := json.Marshal(snap)
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return false
		}
		if _, err := w.Write(data); err != nil {
			return false
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(s.engine.Snapshot()) {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-s.engine.Updates():
			if !send(snap) {
				return
			}
		case <-ticker.C:
			// Keeps elapsed and rest countdowns moving between events.
			if !send(s.engine.Snapshot()) {
				return
			}
		}
	}
}

func (s *Server) handleCompleteSet(w http.ResponseWriter, r *http.Request) {
	exIdx, setIdx, ok := s.setIndexes(w, r)
	if !ok {
		return
	}
	var req struct {
		Reps      int              `json:"reps"`
		WeightKg  float64          `json:"weight_kg"`
		RestSec   int              `json:"rest_sec"`
		Intensity models.Intensity `json:"intensity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.engine.CompleteSet(exIdx, setIdx, req.Reps, req.WeightKg, req.RestSec, req.Intensity); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	exIdx, setIdx, ok := s.setIndexes(w, r)
	if !ok {
		return
	}
	var req struct {
		Reps     int     `json:"reps"`
		WeightKg float64 `json:"weight_kg"`
		RestSec  int     `json:"rest_sec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.engine.UpdateSet(exIdx, setIdx, req.Reps, req.WeightKg, req.RestSec); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleOverrideIntensity(w http.ResponseWriter, r *http.Request) {
	exIdx, setIdx, ok := s.setIndexes(w, r)
	if !ok {
		return
	}
	var req struct {
		Intensity models.Intensity `json:"intensity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.engine.OverrideIntensity(exIdx, setIdx, req.Intensity); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleAddSet(w http.ResponseWriter, r *http.Request) {
	exIdx, ok := s.exerciseIndex(w, r)
	if !ok {
		return
	}
	if err := s.engine.AddSet(r.Context(), exIdx); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleRemoveSet(w http.ResponseWriter, r *http.Request) {
	exIdx, ok := s.exerciseIndex(w, r)
	if !ok {
		return
	}
	if err := s.engine.RemoveSet(exIdx); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	// Omitted indexes select the wider scope: no exercise means session
	// notes, no set means exercise notes.
	var req struct {
		Exercise *int   `json:"exercise"`
		Set      *int   `json:"set"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	exIdx, setIdx := -1, -1
	if req.Exercise != nil {
		exIdx = *req.Exercise
	}
	if req.Set != nil {
		setIdx = *req.Set
	}
	if err := s.engine.SetNotes(exIdx, setIdx, req.Text); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleSkipRest(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SkipRest(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleExtendRest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExtendSec int `json:"extend_sec"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if err := s.engine.ExtendRest(time.Duration(req.ExtendSec) * time.Second); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleBackground(w http.ResponseWriter, r *http.Request) {
	at, ok := s.lifecycleTime(w, r)
	if !ok {
		return
	}
	if err := s.engine.Background(at); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleForeground(w http.ResponseWriter, r *http.Request) {
	at, ok := s.lifecycleTime(w, r)
	if !ok {
		return
	}
	if err := s.engine.Foreground(r.Context(), at); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleMinimize(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Minimize(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Finish(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// lifecycleTime reads the host-supplied timestamp, defaulting to now.
func (s *Server) lifecycleTime(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req struct {
		At *time.Time `json:"at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return time.Time{}, false
	}
	if req.At != nil {
		return *req.At, true
	}
	return time.Now(), true
}

func (s *Server) exerciseIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	exIdx, err := strconv.Atoi(chi.URLParam(r, "exercise"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise index"})
		return 0, false
	}
	return exIdx, true
}

func (s *Server) setIndexes(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	exIdx, ok := s.exerciseIndex(w, r)
	if !ok {
		return 0, 0, false
	}
	setIdx, err := strconv.Atoi(chi.URLParam(r, "set"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid set index"})
		return 0, 0, false
	}
	return exIdx, setIdx, true
}

// writeError maps domain errors onto HTTP statuses: rejected input is
// 422, an operation illegal in the current state is 409, anything else
// is a server error.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *session.ValidationError
	var ierr *session.InvariantViolation
	var serr *engine.StateError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": verr.Error()})
	case errors.As(err, &ierr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": ierr.Error()})
	case errors.As(err, &serr):
		writeJSON(w, http.StatusConflict, map[string]string{"error": serr.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		s.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

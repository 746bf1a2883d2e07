package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one workout occurrence, active or completed. While a session is
// active the in-memory copy is authoritative; the store holds a shadow that
// may lag behind by up to one save interval.
type Session struct {
	// ID is assigned by the store on first persist and empty until then.
	ID          string            `json:"id,omitempty"`
	RoutineID   uuid.UUID         `json:"routine_id"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	ElapsedSec  int               `json:"elapsed_sec"`
	Notes       string            `json:"notes,omitempty"`
	Exercises   []SessionExercise `json:"exercises"`
}

// SessionExercise is one catalog exercise's occurrence within a session. The
// session exclusively owns its exercises, ordered by Position.
type SessionExercise struct {
	// ID is assigned by the store on first persist and empty until then.
	ID           string    `json:"id,omitempty"`
	ExerciseID   uuid.UUID `json:"exercise_id"`
	ExerciseName string    `json:"exercise_name,omitempty"`
	Position     int       `json:"position"`
	PlannedSets  int       `json:"planned_sets"`
	Notes        string    `json:"notes,omitempty"`
	Sets         []Set     `json:"sets"`

	// TemplateSets is the planned set count inherited from the routine,
	// before any runtime add/remove. Not persisted; rehydrated from the
	// routine on recovery.
	TemplateSets int `json:"-"`
	// DefaultRestSec is the routine's rest interval for this exercise,
	// applied to freshly created sets.
	DefaultRestSec int `json:"-"`
}

// CompletedSets counts the sets logged as complete.
func (e *SessionExercise) CompletedSets() int {
	n := 0
	for i := range e.Sets {
		if e.Sets[i].Completed {
			n++
		}
	}
	return n
}

// Set is one logged attempt within a session exercise. Once Completed it is
// historical: it feeds personal-record computation and can no longer be
// removed.
type Set struct {
	// ID is assigned by the store on first persist and empty until then.
	ID        string `json:"id,omitempty"`
	SetNumber int    `json:"set_number"`
	Reps      int    `json:"reps"`
	// WeightKg is the load lifted. Zero together with zero reps marks a
	// set the user has not filled in yet.
	WeightKg  float64   `json:"weight_kg"`
	RestSec   int       `json:"rest_sec"`
	Intensity Intensity `json:"intensity,omitempty"`
	// IntensityExplicit records that the user picked the intensity by
	// hand. Automatic reclassification never overwrites an explicit pick,
	// even when reps change afterwards.
	IntensityExplicit bool   `json:"intensity_explicit,omitempty"`
	Completed         bool   `json:"completed"`
	Notes             string `json:"notes,omitempty"`
}

// Package session holds the in-memory model of the active workout: the
// session tree, its mutation operations, and the derived completion metrics.
// The model is the single owner of session state while a workout runs; the
// durable store only ever holds a shadow copy of it.
package session

import (
	"sort"
	"time"

	"github.com/claude/repflow/internal/models"
)

// Model wraps the session tree with its mutation API. It is not safe for
// concurrent use; the engine serializes access to it.
type Model struct {
	Session models.Session
}

// NewFromRoutine builds a fresh session from a routine: one exercise per
// routine slot in template order, each with its planned number of default
// incomplete sets.
func NewFromRoutine(r *models.Routine, startedAt time.Time) *Model {
	slots := make([]models.RoutineExercise, len(r.Exercises))
	copy(slots, r.Exercises)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Position < slots[j].Position })

	s := models.Session{
		RoutineID: r.ID,
		StartedAt: startedAt,
		Exercises: make([]models.SessionExercise, 0, len(slots)),
	}
	for _, slot := range slots {
		ex := models.SessionExercise{
			ExerciseID:     slot.Exercise.ID,
			ExerciseName:   slot.Exercise.Name,
			Position:       slot.Position,
			PlannedSets:    slot.PlannedSets,
			TemplateSets:   slot.PlannedSets,
			DefaultRestSec: slot.DefaultRestSec,
			Sets:           make([]models.Set, 0, slot.PlannedSets),
		}
		for n := 1; n <= slot.PlannedSets; n++ {
			ex.Sets = append(ex.Sets, models.Set{SetNumber: n, RestSec: slot.DefaultRestSec})
		}
		s.Exercises = append(s.Exercises, ex)
	}
	return &Model{Session: s}
}

func (m *Model) exercise(op string, exIdx int) (*models.SessionExercise, error) {
	if m.Session.CompletedAt != nil {
		return nil, invariantErr(op, "session is completed")
	}
	if exIdx < 0 || exIdx >= len(m.Session.Exercises) {
		return nil, validationErr("exercise", "index %d out of range", exIdx)
	}
	return &m.Session.Exercises[exIdx], nil
}

// AddSet appends a set to the exercise, numbered after the existing ones.
// When prior-session history is available the new set carries forward the
// matching historical set's weight and reps as defaults; otherwise it starts
// at zero.
func (m *Model) AddSet(exIdx int, history []models.Set) error {
	ex, err := m.exercise("add set", exIdx)
	if err != nil {
		return err
	}

	set := models.Set{
		SetNumber: len(ex.Sets) + 1,
		RestSec:   ex.DefaultRestSec,
	}
	if prior := historicalSet(history, set.SetNumber); prior != nil {
		set.Reps = prior.Reps
		set.WeightKg = prior.WeightKg
		if prior.RestSec > 0 {
			set.RestSec = prior.RestSec
		}
	}

	ex.Sets = append(ex.Sets, set)
	ex.PlannedSets = len(ex.Sets)
	return nil
}

// historicalSet picks the prior-session set matching the new position, or
// the last historical set when the position runs past it.
func historicalSet(history []models.Set, setNumber int) *models.Set {
	if len(history) == 0 {
		return nil
	}
	for i := range history {
		if history[i].SetNumber == setNumber {
			return &history[i]
		}
	}
	return &history[len(history)-1]
}

// RemoveSet drops the exercise's last set. At least one set must remain, and
// a completed set is historical and cannot be deleted.
func (m *Model) RemoveSet(exIdx int) error {
	ex, err := m.exercise("remove set", exIdx)
	if err != nil {
		return err
	}
	if len(ex.Sets) < 2 {
		return invariantErr("remove set", "exercise must keep at least one set")
	}
	if ex.Sets[len(ex.Sets)-1].Completed {
		return invariantErr("remove set", "completed sets are immutable history")
	}
	ex.Sets = ex.Sets[:len(ex.Sets)-1]
	ex.PlannedSets = len(ex.Sets)
	return nil
}

// CompleteSet records the attempt and marks the set complete. Reps and
// weight must both be positive. When intensity is empty the set is
// classified from its rep count; a non-empty intensity is an explicit user
// pick that later reclassification will not touch.
func (m *Model) CompleteSet(exIdx, setIdx, reps int, weightKg float64, restSec int, intensity models.Intensity) error {
	ex, err := m.exercise("complete set", exIdx)
	if err != nil {
		return err
	}
	if setIdx < 0 || setIdx >= len(ex.Sets) {
		return validationErr("set", "index %d out of range", setIdx)
	}
	if reps <= 0 {
		return validationErr("reps", "must be positive to complete a set")
	}
	if weightKg <= 0 {
		return validationErr("weight_kg", "must be positive to complete a set")
	}
	if restSec < 0 {
		return validationErr("rest_sec", "must not be negative")
	}
	if intensity != "" && !intensity.Valid() {
		return validationErr("intensity", "unknown value %q", intensity)
	}

	set := &ex.Sets[setIdx]
	if set.Completed {
		return invariantErr("complete set", "set %d is already completed", set.SetNumber)
	}

	set.Reps = reps
	set.WeightKg = weightKg
	set.RestSec = restSec
	switch {
	case intensity != "":
		set.Intensity = intensity
		set.IntensityExplicit = true
	case !set.IntensityExplicit:
		set.Intensity = models.Classify(reps)
	}
	set.Completed = true
	return nil
}

// UpdateSet edits a not-yet-completed set's target values. The intensity is
// reclassified from the new rep count unless the user picked one explicitly.
func (m *Model) UpdateSet(exIdx, setIdx, reps int, weightKg float64, restSec int) error {
	ex, err := m.exercise("update set", exIdx)
	if err != nil {
		return err
	}
	if setIdx < 0 || setIdx >= len(ex.Sets) {
		return validationErr("set", "index %d out of range", setIdx)
	}
	if reps < 0 || weightKg < 0 || restSec < 0 {
		return validationErr("set", "values must not be negative")
	}

	set := &ex.Sets[setIdx]
	if set.Completed {
		return invariantErr("update set", "completed sets are immutable history")
	}

	set.Reps = reps
	set.WeightKg = weightKg
	set.RestSec = restSec
	if !set.IntensityExplicit {
		set.Intensity = models.Classify(reps)
	}
	return nil
}

// OverrideIntensity records an explicit intensity pick for a set, pinning it
// against automatic reclassification.
func (m *Model) OverrideIntensity(exIdx, setIdx int, intensity models.Intensity) error {
	ex, err := m.exercise("override intensity", exIdx)
	if err != nil {
		return err
	}
	if setIdx < 0 || setIdx >= len(ex.Sets) {
		return validationErr("set", "index %d out of range", setIdx)
	}
	if !intensity.Valid() {
		return validationErr("intensity", "unknown value %q", intensity)
	}
	ex.Sets[setIdx].Intensity = intensity
	ex.Sets[setIdx].IntensityExplicit = true
	return nil
}

// SetSessionNotes replaces the session-level notes.
func (m *Model) SetSessionNotes(text string) error {
	if m.Session.CompletedAt != nil {
		return invariantErr("update notes", "session is completed")
	}
	m.Session.Notes = text
	return nil
}

// SetExerciseNotes replaces one exercise's notes.
func (m *Model) SetExerciseNotes(exIdx int, text string) error {
	ex, err := m.exercise("update notes", exIdx)
	if err != nil {
		return err
	}
	ex.Notes = text
	return nil
}

// SetSetNotes replaces one set's notes. Notes are annotation, not history,
// so completed sets accept them too.
func (m *Model) SetSetNotes(exIdx, setIdx int, text string) error {
	ex, err := m.exercise("update notes", exIdx)
	if err != nil {
		return err
	}
	if setIdx < 0 || setIdx >= len(ex.Sets) {
		return validationErr("set", "index %d out of range", setIdx)
	}
	ex.Sets[setIdx].Notes = text
	return nil
}

// Progress returns completed sets over total sets across the whole session,
// zero when there are no sets.
func (m *Model) Progress() float64 {
	var done, total int
	for i := range m.Session.Exercises {
		ex := &m.Session.Exercises[i]
		total += len(ex.Sets)
		done += ex.CompletedSets()
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// IsFullyComplete reports whether every exercise has all planned sets
// completed.
func (m *Model) IsFullyComplete() bool {
	if len(m.Session.Exercises) == 0 {
		return false
	}
	for i := range m.Session.Exercises {
		ex := &m.Session.Exercises[i]
		if ex.CompletedSets() != ex.PlannedSets {
			return false
		}
	}
	return true
}

// MarkCompleted stamps the terminal timestamp. It can be applied once.
func (m *Model) MarkCompleted(at time.Time) error {
	if m.Session.CompletedAt != nil {
		return invariantErr("finish", "session is already completed")
	}
	if at.Before(m.Session.StartedAt) {
		at = m.Session.StartedAt
	}
	m.Session.CompletedAt = &at
	return nil
}

// ClearCompleted rolls back MarkCompleted when the finishing save could not
// be persisted, so the session is not recorded complete in memory while the
// store still shows it active.
func (m *Model) ClearCompleted() {
	m.Session.CompletedAt = nil
}

// ExerciseTouched reports whether the exercise carries anything worth
// persisting: a completed set, notes, a changed set count, or any set whose
// values differ from the routine defaults. Untouched exercises are skipped
// at save time so the store never accumulates empty rows.
func (m *Model) ExerciseTouched(exIdx int) bool {
	ex := &m.Session.Exercises[exIdx]
	if ex.Notes != "" || ex.PlannedSets != ex.TemplateSets {
		return true
	}
	for i := range ex.Sets {
		if SetTouched(ex, &ex.Sets[i]) {
			return true
		}
	}
	return false
}

// SetTouched reports whether a set differs from the default the routine
// would synthesize for it, which is also the recovery loader's fallback.
func SetTouched(ex *models.SessionExercise, set *models.Set) bool {
	return set.Completed ||
		set.Notes != "" ||
		set.IntensityExplicit ||
		set.Reps != 0 ||
		set.WeightKg != 0 ||
		set.RestSec != ex.DefaultRestSec
}

// Clone deep-copies the session tree. Save plans operate on clones so the
// live model stays mutable while a write is in flight.
func (m *Model) Clone() *Model {
	c := m.Session
	if m.Session.CompletedAt != nil {
		at := *m.Session.CompletedAt
		c.CompletedAt = &at
	}
	c.Exercises = make([]models.SessionExercise, len(m.Session.Exercises))
	for i := range m.Session.Exercises {
		ex := m.Session.Exercises[i]
		ex.Sets = append([]models.Set(nil), ex.Sets...)
		c.Exercises[i] = ex
	}
	return &Model{Session: c}
}

package session

import "github.com/google/uuid"

// IDAssignments carries the identifiers the store assigned during a save
// back into the live model. Exercises are keyed by catalog exercise ID and
// sets by (exercise, set number), the same keys the store upserts on, so a
// partially failed save still maps whatever it managed to assign.
type IDAssignments struct {
	SessionID string
	Exercises map[uuid.UUID]string
	Sets      map[uuid.UUID]map[int]string
}

// NewIDAssignments returns an empty assignment map.
func NewIDAssignments() IDAssignments {
	return IDAssignments{
		Exercises: make(map[uuid.UUID]string),
		Sets:      make(map[uuid.UUID]map[int]string),
	}
}

// SetID records a set identifier under its exercise and set number.
func (a *IDAssignments) SetID(exerciseID uuid.UUID, setNumber int, id string) {
	byNum := a.Sets[exerciseID]
	if byNum == nil {
		byNum = make(map[int]string)
		a.Sets[exerciseID] = byNum
	}
	byNum[setNumber] = id
}

// ApplyIDs merges assigned identifiers into the model. Already-assigned IDs
// are left alone; the store's upsert keys guarantee a retry resolves to the
// same rows.
func (m *Model) ApplyIDs(ids IDAssignments) {
	if ids.SessionID != "" && m.Session.ID == "" {
		m.Session.ID = ids.SessionID
	}
	for i := range m.Session.Exercises {
		ex := &m.Session.Exercises[i]
		if id, ok := ids.Exercises[ex.ExerciseID]; ok && ex.ID == "" {
			ex.ID = id
		}
		byNum := ids.Sets[ex.ExerciseID]
		if byNum == nil {
			continue
		}
		for j := range ex.Sets {
			set := &ex.Sets[j]
			if id, ok := byNum[set.SetNumber]; ok && set.ID == "" {
				set.ID = id
			}
		}
	}
}

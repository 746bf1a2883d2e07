// Package recovery rebuilds an in-memory session from persisted rows after
// a restart. The persisted rows are sparse — only touched exercises and
// sets were ever written — so recovery always starts from the routine
// template and overlays what the store has.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/repflow/internal/models"
	"github.com/claude/repflow/internal/session"
	"github.com/claude/repflow/internal/storage"
)

type Loader struct {
	gw  storage.Gateway
	cat storage.Catalog
	log *slog.Logger
	now func() time.Time
}

func New(gw storage.Gateway, cat storage.Catalog, log *slog.Logger) *Loader {
	return &Loader{gw: gw, cat: cat, log: log, now: time.Now}
}

// Load finds the most recent unfinished session and reconstructs it, or
// returns (nil, nil) when every session was finished cleanly. The elapsed
// time is recomputed from the persisted start so the workout clock keeps
// counting across the gap.
func (l *Loader) Load(ctx context.Context) (*session.Model, error) {
	sess, err := l.gw.FindIncompleteSession(ctx, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("finding incomplete session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}

	routine, err := l.cat.GetRoutine(ctx, sess.RoutineID)
	if err != nil {
		return nil, fmt.Errorf("loading routine %s for recovery: %w", sess.RoutineID, err)
	}

	persisted, err := l.gw.ListSessionExercises(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading session exercises: %w", err)
	}
	for i := range persisted {
		sets, err := l.gw.ListSets(ctx, persisted[i].ID)
		if err != nil {
			return nil, fmt.Errorf("loading sets for exercise %s: %w", persisted[i].ExerciseName, err)
		}
		persisted[i].Sets = sets
	}

	m := session.NewFromRoutine(routine, sess.StartedAt)
	m.Session.ID = sess.ID
	m.Session.Notes = sess.Notes
	MergePersisted(m, persisted, l.log)

	if elapsed := l.now().Sub(sess.StartedAt); elapsed > 0 {
		m.Session.ElapsedSec = int(elapsed / time.Second)
	}

	l.log.Info("recovered unfinished session",
		"session_id", sess.ID,
		"routine", routine.Name,
		"persisted_exercises", len(persisted))
	return m, nil
}

// MergePersisted overlays persisted exercise rows onto a template-derived
// model. Exercises are matched by catalog exercise ID; a persisted row
// for an exercise the routine no longer contains is skipped with a
// warning rather than failing the whole recovery. The merged exercise is
// never smaller than either side: missing set numbers are synthesized as
// default incomplete sets.
func MergePersisted(m *session.Model, persisted []models.SessionExercise, log *slog.Logger) {
	for _, p := range persisted {
		ex := findExercise(m, p.ExerciseID)
		if ex == nil {
			log.Warn("persisted exercise not in routine template, skipping",
				"exercise_id", p.ExerciseID, "exercise", p.ExerciseName)
			continue
		}

		ex.ID = p.ID
		if p.Notes != "" {
			ex.Notes = p.Notes
		}

		target := len(ex.Sets)
		if p.PlannedSets > target {
			target = p.PlannedSets
		}
		for _, set := range p.Sets {
			if set.SetNumber > target {
				target = set.SetNumber
			}
		}
		for n := len(ex.Sets) + 1; n <= target; n++ {
			ex.Sets = append(ex.Sets, models.Set{SetNumber: n, RestSec: ex.DefaultRestSec})
		}
		ex.PlannedSets = len(ex.Sets)

		for _, set := range p.Sets {
			if set.SetNumber < 1 || set.SetNumber > len(ex.Sets) {
				continue
			}
			ex.Sets[set.SetNumber-1] = set
		}
	}
}

func findExercise(m *session.Model, exerciseID uuid.UUID) *models.SessionExercise {
	for i := range m.Session.Exercises {
		if m.Session.Exercises[i].ExerciseID == exerciseID {
			return &m.Session.Exercises[i]
		}
	}
	return nil
}

package engine

import (
	"time"

	"github.com/claude/repflow/internal/models"
)

// Snapshot is a point-in-time view of the engine for API responses and
// the watch stream.
type Snapshot struct {
	State         string          `json:"state"`
	Session       *models.Session `json:"session,omitempty"`
	Progress      float64         `json:"progress"`
	ElapsedSec    int             `json:"elapsed_sec"`
	FullyComplete bool            `json:"fully_complete"`
	Rest          *RestSnapshot   `json:"rest,omitempty"`
}

// RestSnapshot describes the running rest countdown.
type RestSnapshot struct {
	RemainingSec int     `json:"remaining_sec"`
	Percent      float64 `json:"percent"`
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{State: e.state.String()}
	if e.model == nil {
		return snap
	}

	clone := e.model.Clone()
	snap.Session = &clone.Session
	snap.Progress = e.model.Progress()
	snap.FullyComplete = e.model.IsFullyComplete()
	snap.ElapsedSec = e.model.Session.ElapsedSec
	if elapsed := e.workClock.Elapsed(); elapsed > 0 {
		snap.ElapsedSec = int(elapsed / time.Second)
	}
	if e.restClock != nil {
		snap.Rest = &RestSnapshot{
			RemainingSec: int(e.restClock.Remaining() / time.Second),
			Percent:      e.restClock.Percent(),
		}
	}
	return snap
}

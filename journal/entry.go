package journal

import (
	"fmt"
	"time"

	"github.com/massdroid-cli/massd/continuity"
)

// Entry is one finished resume attempt as kept on disk.
type Entry struct {
	AttemptID  uint64    `json:"attempt_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	Retries    uint32    `json:"retries"`
	TrackID    string    `json:"track_id"`
	PositionMs uint64    `json:"position_ms"`
	Path       string    `json:"path"`
	Seeked     bool      `json:"seeked"`
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s %s after %d retries (%s)", e.FinishedAt.Format(time.DateTime), e.Outcome, e.Retries, e.Path)
}

// Took reports how long the attempt ran.
func (e *Entry) Took() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

func newEntry(o continuity.Outcome) Entry {
	return Entry{
		AttemptID:  o.AttemptID,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		Outcome:    string(o.Result),
		Retries:    o.Retries,
		TrackID:    o.Frozen.TrackID,
		PositionMs: o.Frozen.PositionMs,
		Path:       string(o.Path),
		Seeked:     o.Seeked,
	}
}

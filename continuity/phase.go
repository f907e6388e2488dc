// Package continuity decides whether, when and how playback on this device resumes after a network loss.
package continuity

import (
	"fmt"
	"time"

	"github.com/massdroid-cli/massd/snapshot"
)

// Phase is the controller state.
type Phase int

const (
	Idle Phase = iota
	ArmedOnLoss
	AwaitingStability
	Resuming
	Confirmed
	Exhausted
)

var phaseNames = [...]string{
	Idle:              "idle",
	ArmedOnLoss:       "armed_on_loss",
	AwaitingStability: "awaiting_stability",
	Resuming:          "resuming",
	Confirmed:         "confirmed",
	Exhausted:         "exhausted",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// active phases hold a frozen snapshot and may issue commands.
func (p Phase) active() bool {
	return p == ArmedOnLoss || p == AwaitingStability || p == Resuming
}

// Path is how an attempt entered Resuming.
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
)

// Attempt is the single live resume cycle.
type Attempt struct {
	ID                   uint64    `json:"id"`
	RetryCount           uint32    `json:"retry_count"`
	Deadline             time.Time `json:"deadline"`
	AwaitingConfirmation bool      `json:"awaiting_confirmation"`
	Path                 Path      `json:"path"`
	StartedAt            time.Time `json:"started_at"`
}

// Result is the terminal result of an attempt.
type Result string

const (
	ResultSuccess   Result = "success"
	ResultExhausted Result = "exhausted"
)

// Outcome is surfaced to the notification layer when an attempt terminates.
type Outcome struct {
	Result     Result            `json:"result"`
	AttemptID  uint64            `json:"attempt_id"`
	Retries    uint32            `json:"retries"`
	Path       Path              `json:"path"`
	Frozen     snapshot.Snapshot `json:"frozen"`
	Seeked     bool              `json:"seeked"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Listener is the outward interface of the controller.
type Listener interface {
	OnPlaybackStateChanged(isPlaying bool, positionMs uint64)
	OnResumeOutcome(Outcome)
}

// Status is a read-only view for the control socket.
type Status struct {
	Phase                Phase              `json:"phase"`
	Attempt              *Attempt           `json:"attempt,omitempty"`
	Frozen               *snapshot.Snapshot `json:"frozen,omitempty"`
	Current              snapshot.Snapshot  `json:"current"`
	Local                bool               `json:"local"`
	WasPlayingBeforeLoss bool               `json:"was_playing_before_loss"`
	Deferred             Path               `json:"deferred,omitempty"`
	Settings             Config             `json:"settings"`
}

// ShouldSeek gates the position restore after a confirmed resume: the track must be the one
// playing at loss time and the frozen position must not sit within margin of the track end.
func ShouldSeek(frozen, current snapshot.Snapshot, margin time.Duration) bool {
	if frozen.TrackID == "" || frozen.TrackID != current.TrackID {
		return false
	}
	if frozen.DurationMs == 0 {
		return false
	}
	return frozen.PositionMs+uint64(margin.Milliseconds()) < frozen.DurationMs
}

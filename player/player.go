// Package player defines the command channel to the output backend and the telemetry it pushes back.
// Backends are the Music Assistant server API, a local mpv via JSON-IPC, and a local MPD.
package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/massdroid-cli/massd/snapshot"
)

var (
	// ErrNotConnected is returned when the backend has no live connection to send on.
	ErrNotConnected = errors.New("player not connected")
	// ErrUnsupported is returned for actions a backend cannot express.
	ErrUnsupported = errors.New("action not supported by backend")
)

// Action is a transport verb.
type Action string

const (
	ActionStop   Action = "stop"
	ActionPlay   Action = "play"
	ActionPause  Action = "pause"
	ActionSeek   Action = "seek"
	ActionReload Action = "reload"
)

// Command is one best-effort instruction to the backend. PositionMs is only used by seek.
type Command struct {
	Action     Action `json:"action"`
	PositionMs uint64 `json:"position_ms,omitempty"`
}

func (c Command) String() string {
	if c.Action == ActionSeek {
		return fmt.Sprintf("seek(%dms)", c.PositionMs)
	}
	return string(c.Action)
}

func Stop() Command   { return Command{Action: ActionStop} }
func Play() Command   { return Command{Action: ActionPlay} }
func Pause() Command  { return Command{Action: ActionPause} }
func Reload() Command { return Command{Action: ActionReload} }

func Seek(positionMs uint64) Command {
	return Command{Action: ActionSeek, PositionMs: positionMs}
}

// Commander sends commands to a backend. Callers always bound ctx with a timeout.
type Commander interface {
	Send(ctx context.Context, cmd Command) error
}

// Disconnector is implemented by backends holding long-lived sockets that should be
// dropped when the network goes away, so zombie sessions do not swallow the reconnect.
type Disconnector interface {
	DropSockets()
}

// Sink receives decoded telemetry from a backend.
type Sink interface {
	PlayerState(snapshot.Snapshot)
	StreamStarted()
}

// Backend is a Commander that also pushes telemetry once started.
type Backend interface {
	Commander
	Name() string
	Start(ctx context.Context, sink Sink) error
	Close() error
}

// Guard reports whether the rest of a batch may still be sent. It is checked right
// before every command, so a batch queued under conditions that no longer hold stops
// at the first command it would send too late.
type Guard func() bool

// Dispatcher accepts a batch of commands to run in order on behalf of owner.
// done is called once with the first error, or nil when every command succeeded.
// SubmitGuarded reports ErrBatchDropped when guard stopped the batch.
type Dispatcher interface {
	Submit(owner string, batch []Command, done func(error))
	SubmitGuarded(owner string, batch []Command, guard Guard, done func(error))
}

// Owners tag who issued a batch.
const (
	OwnerContinuity   = "continuity"
	OwnerInterruption = "interruption"
	OwnerUser         = "user"
)

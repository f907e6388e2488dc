package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/endpoint"
	"github.com/massdroid-cli/massd/interruption"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/player"
	"github.com/massdroid-cli/massd/session"
	"github.com/samber/mo"
)

// Status is returned by the status control command.
type Status struct {
	Backend     string                  `json:"backend"`
	NetworkUp   bool                    `json:"network_up"`
	Endpoint    endpoint.Endpoint       `json:"endpoint"`
	Continuity  continuity.Status       `json:"continuity"`
	Interrupted bool                    `json:"paused_due_to_interruption"`
	Sockets     map[string]SocketStatus `json:"sockets"`
}

type SocketStatus struct {
	Connected     bool           `json:"connected"`
	BelievedState string         `json:"believed_server_state,omitempty"`
	Window        session.Window `json:"window"`
}

// Select implements control.Handler. It is the only writer of the selected endpoint.
func (d *Daemon) Select(id string, local mo.Option[bool]) error {
	d.selector.SelectEndpoint(endpoint.Endpoint{
		ID:            id,
		IsLocalDevice: local.OrElse(id == d.opts.LocalID),
	})
	return nil
}

// User implements control.Handler. The command is applied by the player before User returns.
func (d *Daemon) User(action player.Action) error {
	d.controller.OnUserCommand(action)
	d.arbiter.OnUserCommand(action)

	ctx, cancel := context.WithTimeout(context.Background(), max(2*d.opts.CommandTimeout, time.Second))
	defer cancel()

	result := make(chan error, 1)
	d.queue.Submit(player.OwnerUser, []player.Command{{Action: action}}, func(err error) { result <- err })

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("%s: %w", action, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", action, ctx.Err())
	}
}

func (d *Daemon) Focus(f interruption.Focus) {
	d.arbiter.OnFocusChange(f)
}

func (d *Daemon) Call(c interruption.CallState) {
	d.arbiter.OnCallState(c)
}

func (d *Daemon) Status() any {
	return d.status()
}

func (d *Daemon) status() Status {
	st := Status{
		Backend:     d.backend.Name(),
		NetworkUp:   d.watcher.Up(),
		Endpoint:    d.selector.Current(),
		Continuity:  d.controller.Status(),
		Interrupted: d.arbiter.PausedDueToInterruption(),
		Sockets:     make(map[string]SocketStatus),
	}
	for _, class := range []session.Class{session.ControlAPI, session.StreamTransport} {
		st.Sockets[class.String()] = SocketStatus{
			Connected:     d.tracker.Connected(class),
			BelievedState: d.tracker.BelievedState(class).OrEmpty(),
			Window:        d.tracker.Window(class),
		}
	}
	return st
}

// OnPlaybackStateChanged implements continuity.Listener.
func (d *Daemon) OnPlaybackStateChanged(isPlaying bool, positionMs uint64) {
	d.arbiter.OnPlaybackState(isPlaying)
	d.logger.WithFields(log.Fields{"playing": isPlaying, "position_ms": positionMs}).Debug("playback state")
}

// OnResumeOutcome implements continuity.Listener.
func (d *Daemon) OnResumeOutcome(o continuity.Outcome) {
	d.notifier.ResumeOutcome(o)
	if err := d.journal(o); err != nil {
		d.logger.WithError(err).Warn("could not record resume outcome")
	}
}

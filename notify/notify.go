// Package notify surfaces resume outcomes to the user.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/icon"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/util"
)

type Notifier interface {
	ResumeOutcome(continuity.Outcome)
}

// Message renders the title and body for an outcome.
func Message(o continuity.Outcome) (title, body string) {
	switch o.Result {
	case continuity.ResultSuccess:
		title = icon.Prefix(icon.Resume) + "Playback resumed"
		body = "Playback continued after the network change"
		if o.Seeked {
			body += fmt.Sprintf(" at %s", util.FormatPosition(o.Frozen.PositionMs))
		}
	default:
		title = icon.Prefix(icon.Fail) + "Could not resume playback"
		body = fmt.Sprintf("Gave up after %s. Press play to continue.", util.Quantify(int(o.Retries), "retry", "retries"))
		if o.Retries == 0 {
			body = "The network did not come back in time. Press play to continue."
		}
	}
	return title, body
}

// Desktop shows a native notification through beeep.
type Desktop struct {
	notify func(title, message string) error
}

func NewDesktop() *Desktop {
	beeep.AppName = constant.App
	return &Desktop{notify: func(title, message string) error {
		return beeep.Notify(title, message, "")
	}}
}

func (d *Desktop) ResumeOutcome(o continuity.Outcome) {
	title, body := Message(o)
	if err := d.notify(title, body); err != nil {
		log.For("notify").WithError(err).Warn("desktop notification failed")
	}
}

// Log writes every outcome to the log.
type Log struct{}

func (Log) ResumeOutcome(o continuity.Outcome) {
	log.For("notify").WithFields(log.Fields{
		"result":  o.Result,
		"attempt": o.AttemptID,
		"retries": o.Retries,
		"path":    o.Path,
		"seeked":  o.Seeked,
	}).Info("resume outcome")
}

// Multi fans out to every notifier in order.
type Multi []Notifier

func (m Multi) ResumeOutcome(o continuity.Outcome) {
	for _, n := range m {
		n.ResumeOutcome(o)
	}
}

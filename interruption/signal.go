// Package interruption pauses and resumes playback around audio focus loss and phone calls.
package interruption

import (
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// Focus is an audio focus change reported by the host.
type Focus int

const (
	FocusGain Focus = iota
	FocusLoss
	FocusLossTransient
	FocusLossTransientCanDuck
)

var focusNames = map[Focus]string{
	FocusGain:                 "gain",
	FocusLoss:                 "loss",
	FocusLossTransient:        "loss_transient",
	FocusLossTransientCanDuck: "duck",
}

func (f Focus) String() string { return focusNames[f] }

// ParseFocus maps control-socket names onto Focus.
func ParseFocus(name string) (Focus, error) {
	for f, n := range focusNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown focus change %q", name)
}

// FocusNames lists the accepted focus names, sorted.
func FocusNames() []string {
	names := lo.Values(focusNames)
	slices.Sort(names)
	return names
}

// CallState is the telephony state reported by the host.
type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallOffHook
)

var callNames = map[CallState]string{
	CallIdle:    "idle",
	CallRinging: "ringing",
	CallOffHook: "offhook",
}

func (c CallState) String() string { return callNames[c] }

func ParseCallState(name string) (CallState, error) {
	for c, n := range callNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown call state %q", name)
}

func CallStateNames() []string {
	names := lo.Values(callNames)
	slices.Sort(names)
	return names
}

// FocusManager requests and abandons audio focus with the host.
type FocusManager interface {
	RequestFocus() bool
	AbandonFocus()
}

// Unmanaged is a FocusManager for hosts without focus arbitration. Focus is always granted.
type Unmanaged struct{}

func (Unmanaged) RequestFocus() bool { return true }
func (Unmanaged) AbandonFocus()      {}

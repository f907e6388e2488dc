// Package session classifies streaming and control sockets and debounces their connection flaps.
package session

import "strings"

// Class is assigned at socket-open time and never changes for the socket's lifetime.
type Class int

const (
	Other Class = iota
	ControlAPI
	StreamTransport
)

func (c Class) String() string {
	switch c {
	case ControlAPI:
		return "control_api"
	case StreamTransport:
		return "stream_transport"
	default:
		return "other"
	}
}

// Tracked reports whether a class gets a stability window.
func (c Class) Tracked() bool {
	return c == ControlAPI || c == StreamTransport
}

// ParseClass is the inverse of String. Unknown names map to Other.
func ParseClass(name string) Class {
	switch name {
	case "control_api":
		return ControlAPI
	case "stream_transport":
		return StreamTransport
	default:
		return Other
	}
}

type rule struct {
	marker string
	class  Class
}

// rules are checked in order; the transport marker wins over the generic API markers.
var rules = []rule{
	{"/sendspin", StreamTransport},
	{"/ws", ControlAPI},
	{"api", ControlAPI},
}

// Classify maps a socket URL onto a Class.
func Classify(url string) Class {
	lower := strings.ToLower(url)
	for _, r := range rules {
		if strings.Contains(lower, r.marker) {
			return r.class
		}
	}
	return Other
}

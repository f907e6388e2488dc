// Package control serves the local command socket used by the CLI to drive the daemon.
package control

import (
	"errors"
	"reflect"

	"github.com/invopop/jsonschema"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArguments   = errors.New("bad arguments")
)

// Command names accepted by the daemon.
const (
	CommandSelect = "select"
	CommandPause  = "pause"
	CommandStop   = "stop"
	CommandPlay   = "play"
	CommandFocus  = "focus"
	CommandCall   = "call"
	CommandStatus = "status"
)

// Commands lists every command name in help order.
var Commands = []string{CommandStatus, CommandSelect, CommandPlay, CommandPause, CommandStop, CommandFocus, CommandCall}

// Request is one newline-terminated JSON line sent to the socket.
type Request struct {
	Command   []string `json:"command" jsonschema:"description=Command name followed by its arguments.,minItems=1"`
	RequestID string   `json:"request_id,omitempty" jsonschema:"description=Echoed back in the response."`
}

// Response answers exactly one Request. Error is "success" when the command was applied.
type Response struct {
	Data      any    `json:"data,omitempty" jsonschema:"description=Command result. Only status returns data."`
	Error     string `json:"error" jsonschema:"description=success or a failure message."`
	RequestID string `json:"request_id,omitempty"`
}

const success = "success"

// Schema returns the JSON schema of requests, or of responses when response is true.
func Schema(response bool) *jsonschema.Schema {
	reflector := new(jsonschema.Reflector)
	reflector.Anonymous = true
	reflector.Namer = func(t reflect.Type) string {
		return "control." + t.Name()
	}

	if response {
		return reflector.Reflect(&Response{})
	}
	return reflector.Reflect(&Request{})
}

package session

import (
	"encoding/json"

	"github.com/samber/mo"
)

// Message types recognised on tracked sockets.
const (
	TypeServerHello  = "server/hello"
	TypeStreamStart  = "stream/start"
	TypeGroupUpdate  = "group/update"
	TypeServerState  = "server/state"
	EventPlayerState = "player_updated"
)

// envelope covers both the stream transport framing ({type, payload}) and the
// control API event framing ({event, data}).
type envelope struct {
	Type    string `json:"type"`
	Payload struct {
		PlaybackState string `json:"playback_state"`
		State         string `json:"state"`
	} `json:"payload"`

	Event string `json:"event"`
	Data  struct {
		PlayerID      string `json:"player_id"`
		PlaybackState string `json:"playback_state"`
	} `json:"data"`
}

type decoded struct {
	streamStart bool
	state       mo.Option[string]
}

// decode extracts the stream-start confirmation and any broadcast playback state.
// Frames that are not JSON are ignored.
func decode(payload []byte, localPlayerID string) decoded {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return decoded{state: mo.None[string]()}
	}

	out := decoded{state: mo.None[string]()}
	switch env.Type {
	case TypeStreamStart:
		out.streamStart = true
	case TypeGroupUpdate, TypeServerState:
		if s := env.Payload.PlaybackState; s != "" {
			out.state = mo.Some(s)
		} else if s := env.Payload.State; s != "" {
			out.state = mo.Some(s)
		}
	}

	if env.Event == EventPlayerState && env.Data.PlaybackState != "" {
		if localPlayerID == "" || env.Data.PlayerID == localPlayerID {
			out.state = mo.Some(env.Data.PlaybackState)
		}
	}

	return out
}

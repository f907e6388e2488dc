// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"

	"github.com/massdroid-cli/massd/color"
	"github.com/massdroid-cli/massd/constant"
	"github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/style"
	"github.com/muesli/reflow/wordwrap"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Field represents a configuration field definition.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Pretty returns a colored string representation of the field for display.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

// Env returns the environment variable name for this field.
func (f *Field) Env() string {
	env := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	prefix := strings.ToUpper(constant.App + "_")
	if strings.HasPrefix(env, prefix) {
		return env
	}
	return prefix + env
}

// MarshalJSON customizes JSON output to include current and default values.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.typeName(),
	})
}

func (f *Field) typeName() string {
	switch f.Value.(type) {
	case string:
		return "string"
	case int:
		return "int"
	case bool:
		return "bool"
	case []string:
		return "[]string"
	default:
		return "unknown"
	}
}

// Default holds the map of all configuration fields.
var Default = make(map[string]Field)

// EnvExposed holds keys that are bound to environment variables.
var EnvExposed []string

func init() {
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		Default[k] = Field{Key: k, Value: v, Description: desc}
		EnvExposed = append(EnvExposed, k)
	}

	register(key.ServerURL, "ws://localhost:8095", "Base URL of the Music Assistant server (ws:// or wss://)")
	register(key.ServerAPIPath, "/ws", "Path of the control API socket on the server")
	register(key.ServerSendspinPath, "/sendspin", "Path of the stream transport socket on the server")
	register(key.ServerToken, "", "Long-lived access token for the Music Assistant API.\nLeave empty for servers without authentication")

	register(key.PlayerBackend, "music_assistant", "Command channel used to drive playback.\nAvailable options are: music_assistant, mpv, mpd")
	register(key.PlayerLocalID, "", "Endpoint id that identifies this device.\nAuto-resume only ever acts while this endpoint is selected")
	register(key.PlayerMPDAddress, "localhost:6600", "MPD address (host:port or an absolute unix socket path)")
	register(key.PlayerMPDPassword, "", "MPD password")
	register(key.PlayerMPVSocket, "/tmp/mpv.sock", "Path of the mpv JSON-IPC socket (--input-ipc-server)")
	register(key.PlayerCommandTimeoutMs, 3000, "Upper bound for a single player command, in milliseconds")

	register(key.ContinuityAutoResume, true, "Resume playback automatically after a network change")
	register(key.ContinuityDebounceMs, 2500, "Quiet period before a flapping socket counts as stabilized, in milliseconds")
	register(key.ContinuityConfirmTimeoutMs, 5000, "How long to wait for the stream to actually start after a resume, in milliseconds")
	register(key.ContinuityMaxRetries, 5, "Resume retries before giving up")
	register(key.ContinuitySoftRetries, 1, "Retries that re-send stop/play before escalating to a full reload")
	register(key.ContinuityFallbackGraceMs, 5000, "Wait after the network returns for a socket to stabilize before resuming anyway, in milliseconds")
	register(key.ContinuityTrailingMarginMs, 1000, "Do not seek back into the last part of a track, in milliseconds")
	register(key.ContinuityOutageLimitMs, 300000, "Give up on an outage that has not been recovered within this time, in milliseconds. 0 waits forever")

	register(key.InterruptionEnabled, true, "Pause for phone calls and audio focus loss, resume afterwards")
	register(key.InterruptionPlayGraceMs, 2000, "Ignore focus loss right after a local play command, in milliseconds")
	register(key.InterruptionCallResumeDelayMs, 1000, "Delay before resuming once a call ends, in milliseconds")

	register(key.NetworkPollIntervalMs, 1000, "Reachability polling interval, in milliseconds")
	register(key.SocketMaxReconnects, 5, "Stream socket reconnect attempts per outage")

	register(key.NotifyDesktop, true, "Show desktop notifications for resume outcomes")

	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
	register(key.CliIcons, "plain", "Icons used in CLI output and notifications.\nAvailable options are: emoji, nerd, plain, none")
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint":    style.Faint,
	"wrap":     func(s string) string { return wordwrap.String(s, 72) },
	"blue":     style.Fg(color.Blue),
	"purple":   style.Fg(color.Purple),
	"value":    func(k string) any { return viper.Get(k) },
	"typename": func(v any) string { return reflect.TypeOf(v).String() },
	"hl": func(v any) string {
		switch value := v.(type) {
		case bool:
			b := strconv.FormatBool(value)
			if value {
				return style.Fg(color.Green)(b)
			}
			return style.Fg(color.Red)(b)
		case string:
			return style.Fg(color.Yellow)(value)
		default:
			return fmt.Sprint(value)
		}
	},
}).Parse(`{{ faint (wrap .Description) }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl (.Value) }}
{{ blue "Type:" }}    {{ typename .Value }}`))

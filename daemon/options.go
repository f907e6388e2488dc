package daemon

import (
	"strings"
	"time"

	"github.com/massdroid-cli/massd/auth"
	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/interruption"
	"github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/session"
	"github.com/massdroid-cli/massd/where"
	"github.com/spf13/viper"
)

// Backend names accepted by player.backend.
const (
	BackendMusicAssistant = "music_assistant"
	BackendMPV            = "mpv"
	BackendMPD            = "mpd"
)

// Backends lists every accepted backend name.
var Backends = []string{BackendMusicAssistant, BackendMPV, BackendMPD}

type Options struct {
	ServerURL    string
	APIPath      string
	SendspinPath string
	Token        string

	Backend        string
	LocalID        string
	MPDAddress     string
	MPDPassword    string
	MPVSocket      string
	CommandTimeout time.Duration

	Debounce      time.Duration
	PollInterval  time.Duration
	MaxReconnects int
	Continuity    continuity.Config
	Interruption  interruption.Config

	Desktop       bool
	ControlSocket string
	HotReload     bool
}

func ms(k string) time.Duration {
	return time.Duration(viper.GetInt(k)) * time.Millisecond
}

// FromConfig reads every daemon setting from viper.
func FromConfig() Options {
	opts := Options{
		ServerURL:    viper.GetString(key.ServerURL),
		APIPath:      viper.GetString(key.ServerAPIPath),
		SendspinPath: viper.GetString(key.ServerSendspinPath),
		Token:        auth.Resolve(viper.GetString(key.ServerURL), viper.GetString(key.ServerToken)),

		Backend:        viper.GetString(key.PlayerBackend),
		LocalID:        viper.GetString(key.PlayerLocalID),
		MPDAddress:     viper.GetString(key.PlayerMPDAddress),
		MPDPassword:    viper.GetString(key.PlayerMPDPassword),
		MPVSocket:      viper.GetString(key.PlayerMPVSocket),
		CommandTimeout: ms(key.PlayerCommandTimeoutMs),

		Debounce:      ms(key.ContinuityDebounceMs),
		PollInterval:  ms(key.NetworkPollIntervalMs),
		MaxReconnects: viper.GetInt(key.SocketMaxReconnects),
		Interruption:  InterruptionConfig(),

		Desktop:       viper.GetBool(key.NotifyDesktop),
		ControlSocket: where.ControlSocket(),
		HotReload:     true,
	}
	opts.Continuity = ContinuityConfig(opts.StreamEnabled())
	return opts
}

// ContinuityConfig reads the continuity settings. The stability class is the stream
// transport when that socket is kept by the daemon, the control API otherwise.
func ContinuityConfig(stream bool) continuity.Config {
	cfg := continuity.Config{
		AutoResume:     viper.GetBool(key.ContinuityAutoResume),
		ConfirmTimeout: ms(key.ContinuityConfirmTimeoutMs),
		MaxRetries:     uint32(max(viper.GetInt(key.ContinuityMaxRetries), 0)),
		SoftRetries:    uint32(max(viper.GetInt(key.ContinuitySoftRetries), 0)),
		FallbackGrace:  ms(key.ContinuityFallbackGraceMs),
		TrailingMargin: ms(key.ContinuityTrailingMarginMs),
		OutageLimit:    ms(key.ContinuityOutageLimitMs),
		StabilityClass: session.ControlAPI,
	}
	if stream {
		cfg.StabilityClass = session.StreamTransport
	}
	return cfg
}

func InterruptionConfig() interruption.Config {
	return interruption.Config{
		Enabled:         viper.GetBool(key.InterruptionEnabled),
		PlayGrace:       ms(key.InterruptionPlayGraceMs),
		CallResumeDelay: ms(key.InterruptionCallResumeDelayMs),
	}
}

// StreamEnabled reports whether the daemon keeps its own stream transport socket.
// Only the Music Assistant backend plays through it.
func (o Options) StreamEnabled() bool {
	return o.Backend == BackendMusicAssistant && o.ServerURL != "" && o.SendspinPath != ""
}

func (o Options) APIURL() string {
	return joinURL(o.ServerURL, o.APIPath)
}

func (o Options) SendspinURL() string {
	return joinURL(o.ServerURL, o.SendspinPath)
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

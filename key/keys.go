// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Server Connection - these keys locate the Music Assistant server and its socket endpoints.
const (
	ServerURL          = "server.url"
	ServerAPIPath      = "server.api_path"
	ServerSendspinPath = "server.sendspin_path"
	ServerToken        = "server.token"
)

// Player Backend - these keys select and configure the command channel to the playing engine.
const (
	PlayerBackend          = "player.backend"
	PlayerLocalID          = "player.local_id"
	PlayerMPDAddress       = "player.mpd_address"
	PlayerMPDPassword      = "player.mpd_password"
	PlayerMPVSocket        = "player.mpv_socket"
	PlayerCommandTimeoutMs = "player.command_timeout_ms"
)

// Playback Continuity - these keys tune the automatic resume state machine.
const (
	ContinuityAutoResume       = "continuity.auto_resume"
	ContinuityDebounceMs       = "continuity.debounce_ms"
	ContinuityConfirmTimeoutMs = "continuity.confirm_timeout_ms"
	ContinuityMaxRetries       = "continuity.max_retries"
	ContinuitySoftRetries      = "continuity.soft_retries"
	ContinuityFallbackGraceMs  = "continuity.fallback_grace_ms"
	ContinuityTrailingMarginMs = "continuity.trailing_margin_ms"
	ContinuityOutageLimitMs    = "continuity.outage_limit_ms"
)

// Interruptions - these keys govern pausing for audio focus loss and phone calls.
const (
	InterruptionEnabled           = "interruption.enabled"
	InterruptionPlayGraceMs       = "interruption.play_grace_ms"
	InterruptionCallResumeDelayMs = "interruption.call_resume_delay_ms"
)

// Network and Sockets - these keys tune reachability polling and socket reconnection.
const (
	NetworkPollIntervalMs = "network.poll_interval_ms"
	SocketMaxReconnects   = "socket.max_reconnects"
)

// Notices - these keys control user-visible notifications.
const (
	NotifyDesktop = "notify.desktop"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these settings govern terminal output.
const (
	CliColored = "cli.colored"
	CliIcons   = "cli.icons"
)

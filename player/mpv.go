package player

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/snapshot"
)

// MPV drives an already running mpv through its JSON-IPC socket
// (mpv --input-ipc-server=<path>).
type MPV struct {
	socketPath string
	clock      clock.Clock
	listener   *EventListener
	logger     *log.Entry

	mu       sync.Mutex
	sink     Sink
	path     string
	position float64
	duration float64
	paused   bool
	idle     bool
	// awaitingStart is set by play and reload. Only then does the next
	// transition into audible playback count as the stream starting; the
	// playback-restart that follows stop's rewind must not.
	awaitingStart bool
}

func NewMPV(socketPath string, c clock.Clock) *MPV {
	m := &MPV{
		socketPath: socketPath,
		clock:      c,
		logger:     log.For("mpv").WithField("socket", socketPath),
		paused:     true,
		idle:       true,
	}
	m.listener = NewEventListener(socketPath, m.onEvent)
	return m
}

func (m *MPV) Name() string { return "mpv" }

func (m *MPV) Start(ctx context.Context, sink Sink) error {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()

	if err := m.listener.Start(ctx); err != nil {
		return fmt.Errorf("mpv: %w", err)
	}
	return nil
}

func (m *MPV) Send(ctx context.Context, cmd Command) error {
	var err error
	switch cmd.Action {
	case ActionStop:
		m.clearStart()
		if _, err = ipcCall(ctx, m.socketPath, "set_property", "pause", true); err == nil {
			_, err = ipcCall(ctx, m.socketPath, "seek", 0, "absolute")
		}
	case ActionPlay:
		m.expectStart()
		_, err = ipcCall(ctx, m.socketPath, "set_property", "pause", false)
	case ActionPause:
		m.clearStart()
		_, err = ipcCall(ctx, m.socketPath, "set_property", "pause", true)
	case ActionSeek:
		_, err = ipcCall(ctx, m.socketPath, "seek", float64(cmd.PositionMs)/1000, "absolute")
	case ActionReload:
		m.expectStart()
		err = m.reload(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, cmd.Action)
	}

	if err != nil {
		return fmt.Errorf("mpv %s: %w", cmd.Action, err)
	}
	return nil
}

func (m *MPV) expectStart() {
	m.mu.Lock()
	m.awaitingStart = true
	m.mu.Unlock()
}

func (m *MPV) clearStart() {
	m.mu.Lock()
	m.awaitingStart = false
	m.mu.Unlock()
}

// reload replaces the current file with itself, forcing mpv to reopen the stream.
func (m *MPV) reload(ctx context.Context) error {
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	if path == "" {
		data, err := ipcCall(ctx, m.socketPath, "get_property", "path")
		if err != nil {
			return err
		}
		path, _ = data.(string)
	}

	target, err := sanitizeMediaTarget(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	_, err = ipcCall(ctx, m.socketPath, "loadfile", target, "replace")
	return err
}

func (m *MPV) onEvent(name string, data any) {
	m.mu.Lock()
	push := true
	switch name {
	case "path":
		m.path, _ = data.(string)
	case "time-pos":
		m.position, _ = data.(float64)
	case "duration":
		m.duration, _ = data.(float64)
	case "pause":
		if b, ok := data.(bool); ok {
			m.paused = b
		}
	case "core-idle":
		if b, ok := data.(bool); ok {
			m.idle = b
		}
	default:
		push = false
	}
	snap := m.snapshotLocked()
	started := m.awaitingStart && snap.IsPlaying
	if started {
		m.awaitingStart = false
	}
	sink := m.sink
	m.mu.Unlock()

	if sink == nil {
		return
	}
	if push {
		sink.PlayerState(snap)
	}
	if started {
		m.logger.WithField("event", name).Debug("stream started")
		sink.StreamStarted()
	}
}

func (m *MPV) snapshotLocked() snapshot.Snapshot {
	return snapshot.Snapshot{
		TrackID:    m.path,
		PositionMs: secondsToMs(m.position),
		DurationMs: secondsToMs(m.duration),
		IsPlaying:  m.path != "" && !m.paused && !m.idle,
		CapturedAt: m.clock.Now(),
	}
}

func (m *MPV) Close() error {
	m.listener.Stop()
	return nil
}

// sanitizeMediaTarget validates that a path is safe to hand back to loadfile.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", fmt.Errorf("empty path")
	}

	if strings.ContainsAny(l, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in path")
	}

	// loadfile would read a leading dash as an option
	if strings.HasPrefix(l, "-") {
		return "", fmt.Errorf("path must not start with '-'")
	}

	return l, nil
}

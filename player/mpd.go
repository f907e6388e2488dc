package player

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/massdroid-cli/massd/internal/backoff"
	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/snapshot"
)

// mpdClient is the subset of *mpd.Client the backend uses.
type mpdClient interface {
	Stop() error
	Play(pos int) error
	Pause(pause bool) error
	SeekCur(d time.Duration, relative bool) error
	Status() (mpd.Attrs, error)
	CurrentSong() (mpd.Attrs, error)
	Close() error
}

// mpdWatcher is the subset of *mpd.Watcher the backend uses.
type mpdWatcher interface {
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

type watcherAdapter struct{ w *mpd.Watcher }

func (a watcherAdapter) Events() <-chan string { return a.w.Event }
func (a watcherAdapter) Errors() <-chan error  { return a.w.Error }
func (a watcherAdapter) Close() error          { return a.w.Close() }

// MPD drives a local MPD. Every command uses a fresh short-lived connection, and a
// "player" idle watcher triggers Status/CurrentSong reads for telemetry.
type MPD struct {
	network  string
	address  string
	password string
	clock    clock.Clock
	logger   *log.Entry

	dial  func(network, addr, password string) (mpdClient, error)
	watch func(network, addr, password string) (mpdWatcher, error)

	mu        sync.Mutex
	sink      Sink
	lastState string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMPD accepts "host:port" or an absolute unix socket path.
func NewMPD(address, password string, c clock.Clock) *MPD {
	network := "tcp"
	if len(address) > 0 && address[0] == '/' {
		network = "unix"
	}

	return &MPD{
		network:  network,
		address:  address,
		password: password,
		clock:    c,
		logger:   log.For("mpd").WithField("address", address),
		dial: func(network, addr, password string) (mpdClient, error) {
			return mpd.DialAuthenticated(network, addr, password)
		},
		watch: func(network, addr, password string) (mpdWatcher, error) {
			w, err := mpd.NewWatcher(network, addr, password, "player")
			if err != nil {
				return nil, err
			}
			return watcherAdapter{w}, nil
		},
	}
}

func (m *MPD) Name() string { return "mpd" }

func (m *MPD) Start(ctx context.Context, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.sink = sink
	m.cancel = cancel
	m.mu.Unlock()

	// first read so the store is populated before any loss
	if err := m.refresh(); err != nil {
		m.logger.WithError(err).Warn("initial status failed")
	}

	m.wg.Add(1)
	go m.supervise(ctx)
	return nil
}

// supervise keeps an idle watcher running, reconnecting with backoff.
func (m *MPD) supervise(ctx context.Context) {
	defer m.wg.Done()

	failures := 0
	for {
		w, err := m.watch(m.network, m.address, m.password)
		if err == nil {
			failures = 0
			err = m.idleLoop(ctx, w)
			_ = w.Close()
		}
		if ctx.Err() != nil {
			return
		}

		failures++
		m.logger.WithError(err).WithField("failures", failures).Warn("idle watcher down")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff.Delay(failures)):
		}
	}
}

func (m *MPD) idleLoop(ctx context.Context, w mpdWatcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors():
			if ok {
				m.logger.WithError(err).Debug("watcher error")
			}
		case subsystem, ok := <-w.Events():
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			m.logger.WithField("subsystem", subsystem).Debug("idle event")
			if err := m.refresh(); err != nil {
				return err
			}
		}
	}
}

// refresh reads the player state and pushes it to the sink.
// A transition into "play" counts as the stream having started.
func (m *MPD) refresh() error {
	var status, song mpd.Attrs
	err := m.do(func(c mpdClient) error {
		var err error
		if status, err = c.Status(); err != nil {
			return err
		}
		song, err = c.CurrentSong()
		return err
	})
	if err != nil {
		return fmt.Errorf("mpd status: %w", err)
	}

	snap := decodeMPD(status, song, m.clock.Now())

	m.mu.Lock()
	started := status["state"] == "play" && m.lastState != "play" && m.lastState != ""
	m.lastState = status["state"]
	sink := m.sink
	m.mu.Unlock()

	if sink == nil {
		return nil
	}
	sink.PlayerState(snap)
	if started {
		sink.StreamStarted()
	}
	return nil
}

func decodeMPD(status, song mpd.Attrs, now time.Time) snapshot.Snapshot {
	snap := snapshot.Snapshot{
		TrackID:    song["file"],
		IsPlaying:  status["state"] == "play",
		CapturedAt: now,
	}

	if v, err := strconv.ParseFloat(status["elapsed"], 64); err == nil {
		snap.PositionMs = secondsToMs(v)
	}

	duration := status["duration"]
	if duration == "" {
		duration = song["duration"]
	}
	if v, err := strconv.ParseFloat(duration, 64); err == nil {
		snap.DurationMs = secondsToMs(v)
	}
	return snap
}

func (m *MPD) Send(ctx context.Context, cmd Command) error {
	err := m.doContext(ctx, func(c mpdClient) error {
		switch cmd.Action {
		case ActionStop:
			return c.Stop()
		case ActionPlay:
			return c.Play(-1)
		case ActionPause:
			return c.Pause(true)
		case ActionSeek:
			return c.SeekCur(time.Duration(cmd.PositionMs)*time.Millisecond, false)
		case ActionReload:
			if err := c.Stop(); err != nil {
				return err
			}
			return c.Play(-1)
		default:
			return fmt.Errorf("%w: %s", ErrUnsupported, cmd.Action)
		}
	})
	if err != nil {
		return fmt.Errorf("mpd %s: %w", cmd.Action, err)
	}
	return nil
}

// do runs fn on a fresh connection.
func (m *MPD) do(fn func(mpdClient) error) error {
	c, err := m.dial(m.network, m.address, m.password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer c.Close()
	return fn(c)
}

// doContext is do bounded by ctx. gompd has no context support, so the call keeps
// running in the background after ctx expires and its connection is closed when it returns.
func (m *MPD) doContext(ctx context.Context, fn func(mpdClient) error) error {
	done := make(chan error, 1)
	go func() { done <- m.do(fn) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MPD) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	return nil
}

package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/massdroid-cli/massd/internal/backoff"
	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/session"
	"github.com/massdroid-cli/massd/snapshot"
)

// MusicAssistantConfig configures the server API backend.
type MusicAssistantConfig struct {
	URL      string
	Token    string
	PlayerID string
}

type maRequest struct {
	MessageID string         `json:"message_id"`
	Command   string         `json:"command"`
	Args      map[string]any `json:"args,omitempty"`
}

type maMedia struct {
	URI         string  `json:"uri"`
	QueueItemID string  `json:"queue_item_id"`
	ElapsedTime float64 `json:"elapsed_time"`
	Duration    float64 `json:"duration"`
}

type maPlayer struct {
	PlayerID      string   `json:"player_id"`
	PlaybackState string   `json:"playback_state"`
	ElapsedTime   *float64 `json:"elapsed_time"`
	CurrentMedia  *maMedia `json:"current_media"`
}

type maMessage struct {
	MessageID string          `json:"message_id"`
	Result    json.RawMessage `json:"result"`
	Error     any             `json:"error"`
	ErrorCode int             `json:"error_code"`
	Details   string          `json:"details"`

	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MusicAssistant drives a player through the Music Assistant server API socket.
// The socket is kept open by a reconnect loop; every open, message and close is
// reported to the session observer.
type MusicAssistant struct {
	cfg      MusicAssistantConfig
	observer session.Observer
	clock    clock.Clock
	logger   *log.Entry

	mu        sync.Mutex
	conn      *websocket.Conn
	connID    string
	connected chan struct{}
	pending   map[string]chan maMessage
	sink      Sink
	redial    chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewMusicAssistant(cfg MusicAssistantConfig, observer session.Observer, c clock.Clock) *MusicAssistant {
	return &MusicAssistant{
		cfg:       cfg,
		observer:  observer,
		clock:     c,
		logger:    log.For("massapi").WithField("player", cfg.PlayerID),
		connected: make(chan struct{}),
		pending:   make(map[string]chan maMessage),
		redial:    make(chan struct{}, 1),
	}
}

func (m *MusicAssistant) Name() string { return "music_assistant" }

// Start launches the connection loop. It returns once the loop is running, not once connected.
func (m *MusicAssistant) Start(ctx context.Context, sink Sink) error {
	if m.cfg.URL == "" {
		return errors.New("music assistant url is empty")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.sink = sink
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.maintain(ctx)
	return nil
}

func (m *MusicAssistant) maintain(ctx context.Context) {
	defer m.wg.Done()

	failures := 0
	for {
		err := m.session(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			failures++
			m.logger.WithError(err).WithField("failures", failures).Warn("api socket down")
		} else {
			failures = 0
		}

		wait := time.Duration(0)
		if failures > 0 {
			wait = backoff.Delay(failures)
		}

		select {
		case <-ctx.Done():
			return
		case <-m.redial:
			failures = 0
		case <-time.After(wait):
		}
	}
}

// session dials, optionally authenticates, and reads until the socket closes.
// It returns nil when an established connection was closed, an error when dialing failed.
func (m *MusicAssistant) session(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, m.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 22)

	id := uuid.NewString()
	m.observer.SocketOpened(id, m.cfg.URL)
	m.logger.WithField("socket", id).Info("api socket open")

	readErr := make(chan error, 1)
	go func() { readErr <- m.readLoop(ctx, conn, id) }()

	m.mu.Lock()
	m.conn, m.connID = conn, id
	close(m.connected)
	m.mu.Unlock()

	if m.cfg.Token != "" {
		authCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if _, err := m.call(authCtx, "auth", map[string]any{"token": m.cfg.Token}); err != nil {
			m.logger.WithError(err).Warn("authentication failed")
		}
		cancel()
	}

	err = <-readErr

	m.mu.Lock()
	if m.conn == conn {
		m.conn, m.connID = nil, ""
		m.connected = make(chan struct{})
	}
	for mid, ch := range m.pending {
		close(ch)
		delete(m.pending, mid)
	}
	m.mu.Unlock()

	code := int(websocket.CloseStatus(err))
	if code < 0 {
		code = int(websocket.StatusAbnormalClosure)
	}
	m.observer.SocketClosed(id, code)
	m.logger.WithFields(log.Fields{"socket": id, "code": code}).Info("api socket closed")
	return nil
}

func (m *MusicAssistant) readLoop(ctx context.Context, conn *websocket.Conn, id string) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		m.observer.SocketMessage(id, data)
		m.handle(data)
	}
}

func (m *MusicAssistant) handle(data []byte) {
	var msg maMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.MessageID != "" {
		m.mu.Lock()
		ch, ok := m.pending[msg.MessageID]
		delete(m.pending, msg.MessageID)
		m.mu.Unlock()
		if ok {
			ch <- msg
			close(ch)
		}
		return
	}

	if msg.Event != session.EventPlayerState || len(msg.Data) == 0 {
		return
	}

	var p maPlayer
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		m.logger.WithError(err).Debug("undecodable player update")
		return
	}
	if p.PlayerID != m.cfg.PlayerID {
		return
	}

	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink.PlayerState(decodePlayer(p, m.clock.Now()))
	}
}

// decodePlayer turns a player_updated payload into a snapshot.
func decodePlayer(p maPlayer, now time.Time) snapshot.Snapshot {
	snap := snapshot.Snapshot{
		IsPlaying:  p.PlaybackState == "playing",
		CapturedAt: now,
	}

	if media := p.CurrentMedia; media != nil {
		snap.TrackID = media.URI
		if snap.TrackID == "" {
			snap.TrackID = media.QueueItemID
		}
		snap.PositionMs = secondsToMs(media.ElapsedTime)
		snap.DurationMs = secondsToMs(media.Duration)
	}
	if p.ElapsedTime != nil && snap.PositionMs == 0 {
		snap.PositionMs = secondsToMs(*p.ElapsedTime)
	}
	return snap
}

func secondsToMs(s float64) uint64 {
	if s <= 0 || math.IsNaN(s) {
		return 0
	}
	return uint64(math.Round(s * 1000))
}

func (m *MusicAssistant) Send(ctx context.Context, cmd Command) error {
	if cmd.Action == ActionReload {
		return m.reload(ctx)
	}

	args := map[string]any{"player_id": m.cfg.PlayerID}
	switch cmd.Action {
	case ActionStop, ActionPlay, ActionPause:
	case ActionSeek:
		args["position"] = int(cmd.PositionMs / 1000)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, cmd.Action)
	}

	_, err := m.call(ctx, "players/cmd/"+string(cmd.Action), args)
	return err
}

func (m *MusicAssistant) call(ctx context.Context, command string, args map[string]any) (json.RawMessage, error) {
	m.mu.Lock()
	conn := m.conn
	if conn == nil {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	req := maRequest{MessageID: uuid.NewString(), Command: command, Args: args}
	reply := make(chan maMessage, 1)
	m.pending[req.MessageID] = reply
	m.mu.Unlock()

	if err := wsjson.Write(ctx, conn, req); err != nil {
		m.forget(req.MessageID)
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		m.forget(req.MessageID)
		return nil, fmt.Errorf("%s: %w", command, ctx.Err())
	case msg, ok := <-reply:
		if !ok {
			return nil, fmt.Errorf("%s: %w", command, ErrNotConnected)
		}
		if err := replyError(msg); err != nil {
			return nil, fmt.Errorf("%s: %w", command, err)
		}
		return msg.Result, nil
	}
}

func replyError(msg maMessage) error {
	if msg.ErrorCode != 0 {
		return fmt.Errorf("server error %d: %s", msg.ErrorCode, msg.Details)
	}
	if msg.Error != nil && msg.Error != false {
		return fmt.Errorf("server error: %v", msg.Error)
	}
	return nil
}

func (m *MusicAssistant) forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
}

// reload tears the API socket down and waits for the reconnect loop to establish a new one.
func (m *MusicAssistant) reload(ctx context.Context) error {
	m.DropSockets()
	select {
	case m.redial <- struct{}{}:
	default:
	}

	for {
		m.mu.Lock()
		conn, connected := m.conn, m.connected
		m.mu.Unlock()
		if conn != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("reload: %w", ctx.Err())
		case <-connected:
		}
	}
}

// DropSockets closes the API socket; the reconnect loop dials again.
func (m *MusicAssistant) DropSockets() {
	m.mu.Lock()
	conn := m.conn
	m.conn, m.connID = nil, ""
	m.connected = make(chan struct{})
	m.mu.Unlock()

	if conn != nil {
		m.logger.Info("dropping api socket")
		_ = conn.Close(websocket.StatusGoingAway, "network change")
	}
}

func (m *MusicAssistant) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.DropSockets()
	m.wg.Wait()
	return nil
}

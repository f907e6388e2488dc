package session

import (
	"errors"
	"sync"
	"time"

	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/log"
	"github.com/samber/mo"
)

// ErrUnknownSocket is returned when an event references a socket that was never opened.
var ErrUnknownSocket = errors.New("unknown socket")

// Observer receives socket lifecycle notifications from transports.
type Observer interface {
	SocketOpened(id, url string)
	SocketMessage(id string, payload []byte)
	SocketClosed(id string, code int)
}

// Stabilization is emitted once per storm, after the quiet period.
type Stabilization struct {
	Class               Class
	Connected           bool
	BelievedServerState mo.Option[string]
	Changes             uint32
}

// Listener consumes tracker output.
type Listener interface {
	OnStabilized(Stabilization)
	OnStreamStarted()
}

// Window is the debounce state of one socket class.
type Window struct {
	LastChangeAt time.Time `json:"last_change_at"`
	ChangeCount  uint32    `json:"change_count"`
	Stabilized   bool      `json:"stabilized"`
}

type window struct {
	Window
	gen   uint64
	timer clock.Timer
}

// Tracker implements Observer. Every connect or disconnect of a tracked class re-arms
// that class's debounce timer; only the timer of the latest generation may stabilize.
type Tracker struct {
	clock         clock.Clock
	debounce      time.Duration
	localPlayerID string
	logger        *log.Entry

	mu       sync.Mutex
	listener Listener
	sockets  map[string]Class
	live     map[Class]int
	windows  map[Class]*window
	believed map[Class]mo.Option[string]
}

func NewTracker(c clock.Clock, debounce time.Duration, localPlayerID string) *Tracker {
	t := &Tracker{
		clock:         c,
		debounce:      debounce,
		localPlayerID: localPlayerID,
		logger:        log.For("session"),
		sockets:       make(map[string]Class),
		live:          make(map[Class]int),
		windows:       make(map[Class]*window),
		believed:      make(map[Class]mo.Option[string]),
	}
	for _, class := range []Class{ControlAPI, StreamTransport} {
		t.windows[class] = &window{}
		t.believed[class] = mo.None[string]()
	}
	return t
}

// SetListener must be called before sockets are reported.
func (t *Tracker) SetListener(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = l
}

// SetLocalPlayerID changes which player's control API broadcasts feed the believed state.
func (t *Tracker) SetLocalPlayerID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.localPlayerID = id
}

func (t *Tracker) SocketOpened(id, url string) {
	class := Classify(url)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sockets[id] = class
	t.logger.WithFields(log.Fields{"socket": id, "class": class, "url": url}).Debug("socket opened")
	if !class.Tracked() {
		return
	}

	t.live[class]++
	t.changeLocked(class)
}

func (t *Tracker) SocketClosed(id string, code int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	class, ok := t.sockets[id]
	if !ok {
		t.logger.WithField("socket", id).WithError(ErrUnknownSocket).Debug("close ignored")
		return
	}
	delete(t.sockets, id)

	t.logger.WithFields(log.Fields{"socket": id, "class": class, "code": code}).Debug("socket closed")
	if !class.Tracked() {
		return
	}

	if t.live[class] > 0 {
		t.live[class]--
	}
	t.changeLocked(class)
}

func (t *Tracker) SocketMessage(id string, payload []byte) {
	t.mu.Lock()
	class, ok := t.sockets[id]
	if !ok || !class.Tracked() {
		t.mu.Unlock()
		return
	}

	msg := decode(payload, t.localPlayerID)
	if msg.state.IsPresent() {
		t.believed[class] = msg.state
	}
	listener := t.listener
	t.mu.Unlock()

	if msg.streamStart && class == StreamTransport && listener != nil {
		t.logger.WithField("socket", id).Info("stream started")
		listener.OnStreamStarted()
	}
}

// changeLocked records an edge and restarts the quiet period.
func (t *Tracker) changeLocked(class Class) {
	w := t.windows[class]
	if w.Stabilized {
		w.ChangeCount = 0
	}
	w.LastChangeAt = t.clock.Now()
	w.ChangeCount++
	w.Stabilized = false

	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = t.clock.AfterFunc(t.debounce, func() { t.fire(class, gen) })
}

func (t *Tracker) fire(class Class, gen uint64) {
	t.mu.Lock()
	w := t.windows[class]
	if w.gen != gen || w.Stabilized {
		t.mu.Unlock()
		t.logger.WithFields(log.Fields{"class": class, "gen": gen}).Debug("stale debounce timer")
		return
	}

	w.Stabilized = true
	w.timer = nil
	st := Stabilization{
		Class:               class,
		Connected:           t.live[class] > 0,
		BelievedServerState: t.believed[class],
		Changes:             w.ChangeCount,
	}
	listener := t.listener
	t.mu.Unlock()

	t.logger.WithFields(log.Fields{
		"class":     class,
		"connected": st.Connected,
		"changes":   st.Changes,
		"believed":  st.BelievedServerState.OrElse("unknown"),
	}).Info("sockets stabilized")

	if listener != nil {
		listener.OnStabilized(st)
	}
}

// Window returns a copy of the class's debounce state.
func (t *Tracker) Window(class Class) Window {
	t.mu.Lock()
	defer t.mu.Unlock()

	if w, ok := t.windows[class]; ok {
		return w.Window
	}
	return Window{}
}

// Connected reports whether at least one socket of the class is open.
func (t *Tracker) Connected(class Class) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live[class] > 0
}

// BelievedState returns the last playback state broadcast on the class's sockets.
func (t *Tracker) BelievedState(class Class) mo.Option[string] {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.believed[class]; ok {
		return s
	}
	return mo.None[string]()
}

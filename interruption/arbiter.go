package interruption

import (
	"sync"
	"time"

	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/player"
)

type Config struct {
	Enabled         bool
	PlayGrace       time.Duration
	CallResumeDelay time.Duration
}

// Successor is offered the transport whenever the arbiter's hold clears. When it
// reports true it resumes playback itself and the arbiter issues no play of its own.
type Successor interface {
	TakeOverResume() bool
}

// Arbiter tracks two independent interruption causes. It pauses once when either
// appears during playback and resumes once when both have cleared.
type Arbiter struct {
	clock      clock.Clock
	dispatcher player.Dispatcher
	focus      FocusManager
	logger     *log.Entry

	mu         sync.Mutex
	cfg        Config
	isPlaying  bool
	lastPlayAt time.Time
	focusLost  bool
	inCall     bool
	paused     bool
	hasFocus   bool
	gen        uint64
	timer      clock.Timer
	successor  Successor
}

func New(c clock.Clock, dispatcher player.Dispatcher, focus FocusManager, cfg Config) *Arbiter {
	if focus == nil {
		focus = Unmanaged{}
	}
	return &Arbiter{
		clock:      c,
		dispatcher: dispatcher,
		focus:      focus,
		cfg:        cfg,
		logger:     log.For("interruption"),
	}
}

func (a *Arbiter) SetConfig(cfg Config) {
	a.mu.Lock()
	wasHeld := a.heldLocked()
	a.cfg = cfg
	released := wasHeld && !a.heldLocked()
	a.mu.Unlock()
	a.settle(nil, released, "interruption handling disabled")
}

func (a *Arbiter) SetSuccessor(s Successor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.successor = s
}

// Held reports whether an interruption holds the transport: a call is up, focus is
// lost, or a resume is still owed.
func (a *Arbiter) Held() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.heldLocked()
}

func (a *Arbiter) heldLocked() bool {
	return a.cfg.Enabled && (a.paused || a.inCall || a.focusLost)
}

// NotePlayIssued opens the grace window in which focus loss is ignored.
// It is hooked to every play command, whoever issued it.
func (a *Arbiter) NotePlayIssued() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastPlayAt = a.clock.Now()
}

// OnPlaybackState follows the player. Focus is requested when playback starts.
func (a *Arbiter) OnPlaybackState(isPlaying bool) {
	a.mu.Lock()
	started := isPlaying && !a.isPlaying
	a.isPlaying = isPlaying
	request := started && !a.hasFocus
	if request {
		a.hasFocus = true
	}
	a.mu.Unlock()

	if request && !a.focus.RequestFocus() {
		a.logger.Warn("audio focus request denied")
		a.mu.Lock()
		a.hasFocus = false
		a.mu.Unlock()
	}
}

func (a *Arbiter) OnFocusChange(f Focus) {
	logger := a.logger.WithField("focus", f)

	switch f {
	case FocusLossTransientCanDuck:
		logger.Debug("ignoring duck request")
		return
	case FocusGain:
		a.mu.Lock()
		wasHeld := a.heldLocked()
		a.focusLost = false
		a.hasFocus = true
		batch := a.resumeLocked(0)
		released := wasHeld && !a.heldLocked()
		a.mu.Unlock()
		a.settle(batch, released, "focus regained")
		return
	}

	a.mu.Lock()
	if since := a.clock.Now().Sub(a.lastPlayAt); !a.lastPlayAt.IsZero() && since < a.cfg.PlayGrace {
		a.mu.Unlock()
		logger.WithField("since_play", since).Info("focus loss within play grace window ignored")
		return
	}
	a.focusLost = true
	a.hasFocus = false
	batch := a.interruptLocked()
	a.mu.Unlock()
	a.submit(batch, "focus lost")
}

func (a *Arbiter) OnCallState(c CallState) {
	a.mu.Lock()
	wasHeld := a.heldLocked()
	var (
		batch  []player.Command
		reason string
	)
	if c == CallIdle {
		a.inCall = false
		batch = a.resumeLocked(a.cfg.CallResumeDelay)
		reason = "call ended"
	} else {
		a.inCall = true
		batch = a.interruptLocked()
		reason = "call " + c.String()
	}
	released := wasHeld && !a.heldLocked()
	a.mu.Unlock()
	a.settle(batch, released, reason)
}

// OnUserCommand clears any pending interruption resume: the user decides from now on.
func (a *Arbiter) OnUserCommand(action player.Action) {
	a.mu.Lock()
	wasPaused := a.paused
	a.paused = false
	a.cancelLocked()
	abandon := action == player.ActionStop && !wasPaused && a.hasFocus
	if abandon {
		a.hasFocus = false
	}
	a.mu.Unlock()

	if abandon {
		a.focus.AbandonFocus()
	}
}

// PausedDueToInterruption reports whether a resume is owed.
func (a *Arbiter) PausedDueToInterruption() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

func (a *Arbiter) interruptLocked() []player.Command {
	if !a.cfg.Enabled || a.paused || !a.isPlaying {
		return nil
	}
	a.paused = true
	a.cancelLocked()
	return []player.Command{player.Pause()}
}

// resumeLocked returns the play batch when it is owed now, or arms a delayed resume.
func (a *Arbiter) resumeLocked(delay time.Duration) []player.Command {
	if !a.paused || a.focusLost || a.inCall {
		return nil
	}

	if delay <= 0 {
		a.paused = false
		a.cancelLocked()
		return []player.Command{player.Play()}
	}

	a.cancelLocked()
	a.gen++
	gen := a.gen
	a.timer = a.clock.AfterFunc(delay, func() { a.delayedResume(gen) })
	return nil
}

func (a *Arbiter) delayedResume(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.timer == nil {
		a.mu.Unlock()
		a.logger.WithField("gen", gen).Debug("stale resume timer")
		return
	}
	a.timer = nil
	wasHeld := a.heldLocked()
	batch := a.resumeLocked(0)
	released := wasHeld && !a.heldLocked()
	a.mu.Unlock()
	a.settle(batch, released, "call resume delay elapsed")
}

func (a *Arbiter) cancelLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
}

// settle sends batch unless the hold was released and the successor took the resume over.
func (a *Arbiter) settle(batch []player.Command, released bool, reason string) {
	if released {
		a.mu.Lock()
		s := a.successor
		a.mu.Unlock()

		if s != nil && s.TakeOverResume() {
			if len(batch) > 0 {
				a.logger.WithField("reason", reason).Info("resume handed over to continuity")
			}
			return
		}
	}
	a.submit(batch, reason)
}

func (a *Arbiter) submit(batch []player.Command, reason string) {
	if len(batch) == 0 {
		return
	}
	logger := a.logger.WithFields(log.Fields{"command": batch[0].String(), "reason": reason})
	logger.Info("interruption command")

	a.dispatcher.Submit(player.OwnerInterruption, batch, func(err error) {
		if err != nil {
			logger.WithError(err).Warn("interruption command failed")
		}
	})
}

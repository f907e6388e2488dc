package continuity

import (
	"errors"
	"sync"
	"time"

	"github.com/massdroid-cli/massd/connectivity"
	"github.com/massdroid-cli/massd/endpoint"
	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/player"
	"github.com/massdroid-cli/massd/session"
	"github.com/massdroid-cli/massd/snapshot"
)

type Config struct {
	AutoResume     bool          `json:"auto_resume"`
	ConfirmTimeout time.Duration `json:"confirm_timeout"`
	MaxRetries     uint32        `json:"max_retries"`
	SoftRetries    uint32        `json:"soft_retries"`
	FallbackGrace  time.Duration `json:"fallback_grace"`
	TrailingMargin time.Duration `json:"trailing_margin"`
	// OutageLimit bounds a whole attempt, from the loss to its outcome. Zero disables it.
	OutageLimit    time.Duration `json:"outage_limit"`
	StabilityClass session.Class `json:"-"`
}

// DefaultConfig carries the reference values.
func DefaultConfig() Config {
	return Config{
		AutoResume:     true,
		ConfirmTimeout: 5 * time.Second,
		MaxRetries:     5,
		SoftRetries:    1,
		FallbackGrace:  5 * time.Second,
		TrailingMargin: time.Second,
		OutageLimit:    5 * time.Minute,
		StabilityClass: session.StreamTransport,
	}
}

// LocalSource reports whether the selected endpoint is this device.
type LocalSource interface {
	IsLocal() bool
}

// Gate reports whether another owner holds the transport, as the interruption
// arbiter does during a call. While it is held the controller issues nothing.
type Gate interface {
	Held() bool
}

type timerKind int

const (
	timerFallback timerKind = iota
	timerConfirm
)

func (k timerKind) String() string {
	if k == timerFallback {
		return "fallback"
	}
	return "confirm"
}

// Controller is the serialized continuity state machine. Every entry point takes mu,
// mutates state, and collects side effects that run after mu is released.
// Timers carry the generation they were armed with; a mismatch makes them a no-op.
type Controller struct {
	clock      clock.Clock
	dispatcher player.Dispatcher
	local      LocalSource
	store      *snapshot.Store
	logger     *log.Entry

	mu           sync.Mutex
	cfg          Config
	listener     Listener
	disconnector player.Disconnector
	transitions  []func(from, to Phase, reason string)
	gate         Gate

	phase                Phase
	attempt              *Attempt
	attemptSeq           uint64
	gen                  uint64
	timer                clock.Timer
	lastEdgeSeq          uint64
	wasPlayingBeforeLoss bool
	armedAt              time.Time

	// epoch versions the batches handed to the dispatcher. Anything that makes
	// queued commands stale bumps it, and each batch's guard compares against it.
	epoch uint64
	// deferred is the path of a resume held back while the gate was held.
	deferred Path

	outage    clock.Timer
	outageGen uint64
}

func New(c clock.Clock, dispatcher player.Dispatcher, local LocalSource, store *snapshot.Store, cfg Config) *Controller {
	return &Controller{
		clock:      c,
		dispatcher: dispatcher,
		local:      local,
		store:      store,
		cfg:        cfg,
		logger:     log.For("continuity"),
	}
}

func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// SetDisconnector registers the backend whose sockets are dropped when an armed loss happens.
func (c *Controller) SetDisconnector(d player.Disconnector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnector = d
}

// SetGate registers the owner whose hold on the transport defers resumes.
func (c *Controller) SetGate(g Gate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = g
}

// OnTransition registers a callback invoked after every phase change.
func (c *Controller) OnTransition(fn func(from, to Phase, reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, fn)
}

// SetConfig applies new settings. Disabling auto-resume aborts a live attempt.
func (c *Controller) SetConfig(cfg Config) {
	var fx effects
	c.mu.Lock()
	c.cfg = cfg
	if !cfg.AutoResume && c.phase.active() {
		c.abortLocked(&fx, "auto-resume disabled")
	}
	c.mu.Unlock()
	fx.run()
}

func (c *Controller) OnLost(ev connectivity.Event) {
	var fx effects
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		fx.run()
	}()

	if c.staleLocked(ev) {
		return
	}

	switch c.phase {
	case Idle:
		snap := c.store.Current()
		logger := c.logger.WithFields(log.Fields{"seq": ev.Seq, "snapshot": snap.String()})
		switch {
		case !c.cfg.AutoResume:
			logger.Info("connectivity lost, auto-resume disabled")
			return
		case !snap.IsPlaying:
			logger.Info("connectivity lost while not playing")
			return
		case !c.local.IsLocal():
			logger.Info("connectivity lost while another endpoint is selected")
			return
		}

		frozen := c.store.Freeze()
		c.wasPlayingBeforeLoss = true
		c.armedAt = c.clock.Now()
		c.armOutageLocked()
		c.transitionLocked(&fx, ArmedOnLoss, "connectivity lost while playing "+frozen.String())
		c.transitionLocked(&fx, AwaitingStability, "waiting for sockets to stabilize")

		if d := c.disconnector; d != nil {
			fx.add(d.DropSockets)
		}

	case AwaitingStability:
		c.cancelLocked()
		c.deferred = ""
		c.logger.WithField("seq", ev.Seq).Debug("connectivity lost again, fallback disarmed")

	case Resuming:
		c.cancelLocked()
		c.epoch++
		if c.attempt != nil {
			c.attempt.AwaitingConfirmation = false
		}
		c.transitionLocked(&fx, AwaitingStability, "connectivity lost during resume")
	}
}

func (c *Controller) OnAvailable(ev connectivity.Event) {
	var fx effects
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		fx.run()
	}()

	if c.staleLocked(ev) {
		return
	}
	if c.phase != AwaitingStability {
		return
	}

	c.armLocked(c.cfg.FallbackGrace, timerFallback)
	c.logger.WithFields(log.Fields{"seq": ev.Seq, "grace": c.cfg.FallbackGrace}).Info("connectivity available, fallback armed")
}

// OnStabilized consumes the socket tracker's debounced signal.
func (c *Controller) OnStabilized(st session.Stabilization) {
	var fx effects
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		fx.run()
	}()

	logger := c.logger.WithFields(log.Fields{
		"class":     st.Class,
		"connected": st.Connected,
		"believed":  st.BelievedServerState.OrElse("unknown"),
		"phase":     c.phase,
	})

	if st.Class != c.cfg.StabilityClass || c.phase != AwaitingStability {
		logger.Debug("stabilization ignored")
		return
	}
	if !st.Connected {
		logger.Info("sockets settled disconnected, still waiting")
		return
	}

	c.startResumeLocked(&fx, PathPrimary, "sockets stabilized")
}

// OnStreamStarted consumes the explicit "stream actually started" confirmation.
func (c *Controller) OnStreamStarted() {
	var fx effects
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		fx.run()
	}()

	if c.phase != Resuming || c.attempt == nil {
		c.logger.WithField("phase", c.phase).Debug("stream start outside resume")
		return
	}

	c.cancelLocked()
	frozen := c.store.Frozen().OrEmpty()
	current := c.store.Current()
	seek := c.local.IsLocal() && ShouldSeek(frozen, current, c.cfg.TrailingMargin)

	if seek {
		fx.submit(c, []player.Command{player.Seek(frozen.PositionMs)}, "restore position")
	} else {
		c.logger.WithFields(log.Fields{"frozen": frozen.String(), "current": current.String()}).Info("position not restored")
	}

	outcome := c.outcomeLocked(ResultSuccess, frozen, seek)
	c.transitionLocked(&fx, Confirmed, "stream started")
	c.finishLocked(&fx, outcome)
}

// PlayerState implements player.Sink.
func (c *Controller) PlayerState(snap snapshot.Snapshot) {
	c.store.Update(snap)

	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()

	if listener != nil {
		listener.OnPlaybackStateChanged(snap.IsPlaying, snap.PositionMs)
	}
}

// StreamStarted implements player.Sink.
func (c *Controller) StreamStarted() {
	c.OnStreamStarted()
}

// OnUserCommand aborts any live attempt when the user pauses or stops. Commands the
// controller already queued, including a pending seek, are dropped as well.
func (c *Controller) OnUserCommand(action player.Action) {
	if action != player.ActionPause && action != player.ActionStop {
		return
	}

	var fx effects
	c.mu.Lock()
	c.epoch++
	if c.phase.active() {
		c.abortLocked(&fx, "user "+string(action))
	}
	c.mu.Unlock()
	fx.run()
}

// OnEndpointChanged aborts any live attempt when this device stops being the selection.
func (c *Controller) OnEndpointChanged(e endpoint.Endpoint) {
	if e.IsLocalDevice {
		return
	}

	var fx effects
	c.mu.Lock()
	c.epoch++
	if c.phase.active() {
		c.abortLocked(&fx, "endpoint "+e.ID+" selected")
	}
	c.mu.Unlock()
	fx.run()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Phase:                c.phase,
		Current:              c.store.Current(),
		Local:                c.local.IsLocal(),
		WasPlayingBeforeLoss: c.wasPlayingBeforeLoss,
		Deferred:             c.deferred,
		Settings:             c.cfg,
	}
	if c.attempt != nil {
		a := *c.attempt
		st.Attempt = &a
	}
	if f, ok := c.store.Frozen().Get(); ok && c.phase.active() {
		st.Frozen = &f
	}
	return st
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) staleLocked(ev connectivity.Event) bool {
	if ev.Seq != 0 && ev.Seq <= c.lastEdgeSeq {
		c.logger.WithFields(log.Fields{"seq": ev.Seq, "last": c.lastEdgeSeq}).Debug("superseded connectivity edge")
		return true
	}
	if ev.Seq != 0 {
		c.lastEdgeSeq = ev.Seq
	}
	return false
}

// TakeOverResume is offered the transport when an interruption clears. While an
// attempt is live the controller resumes with its own ladder and reports true, so
// the arbiter does not issue a second play.
func (c *Controller) TakeOverResume() bool {
	var fx effects
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		fx.run()
	}()

	switch c.phase {
	case AwaitingStability:
		if c.deferred == "" {
			c.logger.Info("interruption cleared, resume stays with the outage attempt")
			return true
		}
		c.startResumeLocked(&fx, c.deferred, "interruption cleared")
		return true
	case Resuming:
		c.startResumeLocked(&fx, c.attempt.Path, "interruption cleared")
		return true
	}
	return false
}

func (c *Controller) heldLocked() bool {
	return c.gate != nil && c.gate.Held()
}

// batchValid is the guard of every batch: it must belong to the current epoch, this
// device must still be selected and nobody else may hold the transport.
func (c *Controller) batchValid(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return epoch == c.epoch && c.local.IsLocal() && !c.heldLocked()
}

// startResumeLocked enters Resuming, creating the attempt if none is live. While the
// gate is held it records the path and waits in AwaitingStability instead.
func (c *Controller) startResumeLocked(fx *effects, path Path, reason string) {
	if !c.local.IsLocal() {
		c.abortLocked(fx, "endpoint no longer local")
		return
	}

	now := c.clock.Now()
	c.ensureAttemptLocked(path, now)

	if c.heldLocked() {
		c.deferred = path
		c.epoch++
		c.cancelLocked()
		if c.phase == Resuming {
			c.attempt.AwaitingConfirmation = false
			c.transitionLocked(fx, AwaitingStability, "interruption holds the transport")
		}
		c.logger.WithFields(log.Fields{"path": path, "reason": reason}).Info("resume deferred until the interruption clears")
		return
	}
	c.deferred = ""
	c.epoch++

	c.attempt.AwaitingConfirmation = true
	c.attempt.Deadline = now.Add(c.cfg.ConfirmTimeout)
	c.armLocked(c.cfg.ConfirmTimeout, timerConfirm)

	if c.phase != Resuming {
		c.transitionLocked(fx, Resuming, reason)
	}
	fx.submit(c, c.ladderLocked(), reason)
}

// ladderLocked picks the resume batch for the attempt's retry count.
func (c *Controller) ladderLocked() []player.Command {
	if c.attempt.RetryCount <= c.cfg.SoftRetries {
		return []player.Command{player.Stop(), player.Play()}
	}
	return []player.Command{player.Reload(), player.Play()}
}

func (c *Controller) fire(gen uint64, kind timerKind) {
	var fx effects
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		fx.run()
	}()

	logger := c.logger.WithFields(log.Fields{"timer": kind, "gen": gen})
	if gen != c.gen || c.timer == nil {
		logger.Debug("stale timer")
		return
	}
	c.timer = nil
	logger.Debug("timer fired")

	switch kind {
	case timerFallback:
		if c.phase != AwaitingStability {
			return
		}
		c.startResumeLocked(&fx, PathFallback, "no stabilization within fallback grace")

	case timerConfirm:
		if c.phase != Resuming || c.attempt == nil {
			return
		}
		c.attempt.RetryCount++
		c.attempt.AwaitingConfirmation = false

		if c.attempt.RetryCount > c.cfg.MaxRetries {
			c.epoch++
			frozen := c.store.Frozen().OrEmpty()
			outcome := c.outcomeLocked(ResultExhausted, frozen, false)
			c.transitionLocked(&fx, Exhausted, "no stream start confirmation")
			c.finishLocked(&fx, outcome)
			return
		}

		c.logger.WithFields(log.Fields{"attempt": c.attempt.ID, "retry": c.attempt.RetryCount}).Warn("resume not confirmed, retrying")
		c.startResumeLocked(&fx, c.attempt.Path, "confirmation timeout")
	}
}

func (c *Controller) ensureAttemptLocked(path Path, now time.Time) {
	if c.attempt == nil {
		c.attemptSeq++
		c.attempt = &Attempt{ID: c.attemptSeq, Path: path, StartedAt: now}
	}
}

func (c *Controller) armOutageLocked() {
	c.stopOutageLocked()
	if c.cfg.OutageLimit <= 0 {
		return
	}
	gen := c.outageGen
	c.outage = c.clock.AfterFunc(c.cfg.OutageLimit, func() { c.fireOutage(gen) })
}

func (c *Controller) stopOutageLocked() {
	if c.outage != nil {
		c.outage.Stop()
		c.outage = nil
	}
	c.outageGen++
}

// fireOutage ends an attempt that outlived the outage limit, whatever phase it is in.
func (c *Controller) fireOutage(gen uint64) {
	var fx effects
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		fx.run()
	}()

	if gen != c.outageGen || c.outage == nil || !c.phase.active() {
		c.logger.WithField("gen", gen).Debug("stale outage timer")
		return
	}
	c.outage = nil
	c.epoch++

	c.ensureAttemptLocked(PathPrimary, c.armedAt)
	frozen := c.store.Frozen().OrEmpty()
	outcome := c.outcomeLocked(ResultExhausted, frozen, false)
	c.logger.WithFields(log.Fields{"limit": c.cfg.OutageLimit, "phase": c.phase}).Warn("outage limit reached")
	c.transitionLocked(&fx, Exhausted, "outage limit reached")
	c.finishLocked(&fx, outcome)
}

func (c *Controller) armLocked(d time.Duration, kind timerKind) {
	c.cancelLocked()
	gen := c.gen
	c.timer = c.clock.AfterFunc(d, func() { c.fire(gen, kind) })
	c.logger.WithFields(log.Fields{"timer": kind, "gen": gen, "after": d}).Debug("timer armed")
}

// cancelLocked stops the pending timer and bumps the generation so a late fire is a no-op.
func (c *Controller) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) outcomeLocked(result Result, frozen snapshot.Snapshot, seeked bool) Outcome {
	return Outcome{
		Result:     result,
		AttemptID:  c.attempt.ID,
		Retries:    c.attempt.RetryCount,
		Path:       c.attempt.Path,
		Frozen:     frozen,
		Seeked:     seeked,
		StartedAt:  c.attempt.StartedAt,
		FinishedAt: c.clock.Now(),
	}
}

// finishLocked reports a terminal outcome and clears every continuity flag.
func (c *Controller) finishLocked(fx *effects, outcome Outcome) {
	c.clearLocked()
	if l := c.listener; l != nil {
		fx.add(func() { l.OnResumeOutcome(outcome) })
	}
	c.transitionLocked(fx, Idle, "attempt "+string(outcome.Result))
}

// abortLocked drops a live attempt without issuing commands or surfacing an outcome.
func (c *Controller) abortLocked(fx *effects, reason string) {
	c.epoch++
	c.clearLocked()
	c.transitionLocked(fx, Idle, reason)
}

func (c *Controller) clearLocked() {
	c.cancelLocked()
	c.stopOutageLocked()
	c.deferred = ""
	c.attempt = nil
	c.wasPlayingBeforeLoss = false
	c.store.Thaw()
}

func (c *Controller) transitionLocked(fx *effects, to Phase, reason string) {
	from := c.phase
	if from == to {
		return
	}
	c.phase = to

	fields := log.Fields{"from": from, "to": to, "reason": reason}
	if c.attempt != nil {
		fields["attempt"] = c.attempt.ID
		fields["retry"] = c.attempt.RetryCount
	}
	c.logger.WithFields(fields).Info("transition")

	for _, fn := range c.transitions {
		fn := fn
		fx.add(func() { fn(from, to, reason) })
	}
}

// effects are side effects collected under the lock and run after it is released.
type effects []func()

func (fx *effects) add(fn func()) {
	*fx = append(*fx, fn)
}

// submit must be called with c.mu held; the batch is tied to the current epoch.
func (fx *effects) submit(c *Controller, batch []player.Command, reason string) {
	epoch := c.epoch
	logger := c.logger.WithFields(log.Fields{"reason": reason, "epoch": epoch})
	guard := func() bool { return c.batchValid(epoch) }
	fx.add(func() {
		c.dispatcher.SubmitGuarded(player.OwnerContinuity, batch, guard, func(err error) {
			if errors.Is(err, player.ErrBatchDropped) {
				logger.Info("stale continuity commands dropped")
				return
			}
			if err != nil {
				logger.WithError(err).Warn("continuity command failed")
			}
		})
	})
}

func (fx effects) run() {
	for _, fn := range fx {
		fn()
	}
}

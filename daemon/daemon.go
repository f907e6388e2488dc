// Package daemon wires the continuity core to the player, the sockets, the network and the control socket.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/massdroid-cli/massd/config"
	"github.com/massdroid-cli/massd/connectivity"
	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/control"
	"github.com/massdroid-cli/massd/endpoint"
	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/interruption"
	"github.com/massdroid-cli/massd/journal"
	"github.com/massdroid-cli/massd/log"
	"github.com/massdroid-cli/massd/notify"
	"github.com/massdroid-cli/massd/player"
	"github.com/massdroid-cli/massd/sendspin"
	"github.com/massdroid-cli/massd/session"
	"github.com/massdroid-cli/massd/snapshot"
	"github.com/samber/lo"
)

const queueSize = 16

// ErrUnknownBackend is returned for a player.backend value no backend answers to.
var ErrUnknownBackend = errors.New("unknown player backend")

// Deps replaces the collaborators New would otherwise build. Nil fields get the real implementation.
type Deps struct {
	Clock    clock.Clock
	Backend  player.Backend
	Probe    connectivity.Probe
	Focus    interruption.FocusManager
	Notifier notify.Notifier
	Journal  func(continuity.Outcome) error
}

type Daemon struct {
	opts   Options
	logger *log.Entry

	clock      clock.Clock
	store      *snapshot.Store
	selector   *endpoint.Selector
	tracker    *session.Tracker
	queue      *player.Queue
	backend    player.Backend
	stream     *sendspin.Client
	controller *continuity.Controller
	arbiter    *interruption.Arbiter
	watcher    *connectivity.Watcher
	control    *control.Server
	notifier   notify.Notifier
	journal    func(continuity.Outcome) error

	ready    chan struct{}
	stopOnce sync.Once
}

func New(opts Options, deps Deps) (*Daemon, error) {
	d := &Daemon{
		opts:     opts,
		logger:   log.For("daemon"),
		clock:    lo.Ternary[clock.Clock](deps.Clock != nil, deps.Clock, clock.Real()),
		store:    snapshot.NewStore(),
		ready:    make(chan struct{}),
		selector: endpoint.NewSelector(opts.LocalID),
		notifier: deps.Notifier,
		journal:  lo.Ternary(deps.Journal != nil, deps.Journal, journal.Record),
	}

	d.tracker = session.NewTracker(d.clock, opts.Debounce, opts.LocalID)

	d.backend = deps.Backend
	if d.backend == nil {
		backend, err := newBackend(opts, d.tracker, d.clock)
		if err != nil {
			return nil, err
		}
		d.backend = backend
	}

	if opts.StreamEnabled() {
		d.stream = sendspin.New(sendspin.Config{
			URL:           opts.SendspinURL(),
			ClientID:      opts.LocalID,
			MaxReconnects: opts.MaxReconnects,
		}, d.tracker)
	}

	d.queue = player.NewQueue(d.backend, opts.CommandTimeout, queueSize)
	d.controller = continuity.New(d.clock, d.queue, d.selector, d.store, opts.Continuity)
	d.arbiter = interruption.New(d.clock, d.queue, deps.Focus, opts.Interruption)

	probe := deps.Probe
	if probe == nil {
		probe = connectivity.NewInterfaceProbe()
	}
	d.watcher = connectivity.NewWatcher(probe, opts.PollInterval, edges{d})

	if d.notifier == nil {
		notifiers := notify.Multi{notify.Log{}}
		if opts.Desktop {
			notifiers = append(notifiers, notify.NewDesktop())
		}
		d.notifier = notifiers
	}

	if opts.ControlSocket != "" {
		d.control = control.NewServer(opts.ControlSocket, d)
	}

	d.wire()
	return d, nil
}

func newBackend(opts Options, observer session.Observer, c clock.Clock) (player.Backend, error) {
	switch opts.Backend {
	case BackendMusicAssistant:
		return player.NewMusicAssistant(player.MusicAssistantConfig{
			URL:      opts.APIURL(),
			Token:    opts.Token,
			PlayerID: opts.LocalID,
		}, observer, c), nil
	case BackendMPV:
		return player.NewMPV(opts.MPVSocket, c), nil
	case BackendMPD:
		return player.NewMPD(opts.MPDAddress, opts.MPDPassword, c), nil
	default:
		return nil, fmt.Errorf("%w: %q, expected one of %v", ErrUnknownBackend, opts.Backend, Backends)
	}
}

func (d *Daemon) wire() {
	d.tracker.SetListener(d.controller)
	d.controller.SetListener(d)
	d.controller.OnTransition(func(from, to continuity.Phase, reason string) {
		d.logger.WithFields(log.Fields{"from": from, "to": to, "reason": reason}).Debug("continuity transition")
	})

	var drops dropAll
	if dis, ok := d.backend.(player.Disconnector); ok {
		drops = append(drops, dis)
	}
	if d.stream != nil {
		drops = append(drops, d.stream)
	}
	if len(drops) > 0 {
		d.controller.SetDisconnector(drops)
	}

	d.selector.OnChange(d.controller.OnEndpointChanged)

	d.controller.SetGate(d.arbiter)
	d.arbiter.SetSuccessor(d.controller)

	d.queue.OnIssued(func(owner string, cmd player.Command) {
		if cmd.Action == player.ActionPlay {
			d.arbiter.NotePlayIssued()
		}
	})
}

// Run starts every component and blocks until ctx is cancelled or the control socket fails.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.logger.WithFields(log.Fields{
		"backend":   d.backend.Name(),
		"local_id":  d.opts.LocalID,
		"stream":    d.stream != nil,
		"stability": d.opts.Continuity.StabilityClass,
	}).Info("starting")

	d.queue.Start(ctx)
	if err := d.backend.Start(ctx, d.controller); err != nil {
		d.queue.Close()
		return fmt.Errorf("start %s backend: %w", d.backend.Name(), err)
	}

	var wg sync.WaitGroup
	if d.stream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.stream.Run(ctx)
		}()
	}

	d.watcher.Start(ctx)

	if d.opts.HotReload {
		config.OnChange(func(string) { d.Reload() })
	}

	serveErr := make(chan error, 1)
	if d.control != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveErr <- d.control.Serve(ctx)
		}()
	}

	close(d.ready)

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("control socket: %w", err)
		}
	}

	cancel()
	d.Stop()
	wg.Wait()
	d.logger.Info("stopped")
	return err
}

// Ready is closed once Run has started every component.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Stop releases every component. It is idempotent.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.watcher.Stop()
		if d.control != nil {
			_ = d.control.Close()
		}
		d.queue.Close()
		if err := d.backend.Close(); err != nil {
			d.logger.WithError(err).Warn("closing backend")
		}
	})
}

// Reload applies the hot-reloadable settings from the current configuration.
func (d *Daemon) Reload() {
	cfg := ContinuityConfig(d.stream != nil)
	d.controller.SetConfig(cfg)
	d.arbiter.SetConfig(InterruptionConfig())
	d.logger.WithFields(log.Fields{"auto_resume": cfg.AutoResume}).Info("configuration reloaded")
}

// edges feeds connectivity to the controller and kicks the stream socket when the network returns.
type edges struct{ d *Daemon }

func (e edges) OnLost(ev connectivity.Event) {
	e.d.controller.OnLost(ev)
}

func (e edges) OnAvailable(ev connectivity.Event) {
	e.d.controller.OnAvailable(ev)
	if e.d.stream != nil {
		e.d.stream.Kick()
	}
}

type dropAll []player.Disconnector

func (d dropAll) DropSockets() {
	for _, dis := range d {
		dis.DropSockets()
	}
}

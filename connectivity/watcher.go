// Package connectivity turns reachability observations into single Lost/Available edges.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/massdroid-cli/massd/log"
)

// Edge is a reachability transition.
type Edge int

const (
	Lost Edge = iota
	Available
)

func (e Edge) String() string {
	if e == Lost {
		return "lost"
	}
	return "available"
}

// Event carries an edge and a monotonic sequence number used to detect superseded events.
type Event struct {
	Edge Edge
	Seq  uint64
}

// Handler receives edges. Calls are serialized and made in sequence order.
type Handler interface {
	OnLost(Event)
	OnAvailable(Event)
}

// Watcher collapses repeated observations into edges, firing only when the reachability flips.
type Watcher struct {
	probe    Probe
	interval time.Duration
	handler  Handler
	logger   *log.Entry

	mu          sync.Mutex
	lastKnownUp bool
	seq         uint64
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewWatcher returns a watcher polling the probe every interval once started.
// A zero interval disables polling, leaving Report and CapabilitiesChanged as the only inputs.
func NewWatcher(probe Probe, interval time.Duration, handler Handler) *Watcher {
	return &Watcher{
		probe:       probe,
		interval:    interval,
		handler:     handler,
		logger:      log.For("connectivity"),
		lastKnownUp: true,
	}
}

// Start takes the initial state from the probe and begins polling. Calling Start twice is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.lastKnownUp = w.sample(ctx)
	w.logger.WithField("up", w.lastKnownUp).Info("watching reachability")

	if w.interval <= 0 || w.probe == nil {
		w.mu.Unlock()
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go w.poll(ctx, done)
}

func (w *Watcher) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Report(w.sample(ctx))
		}
	}
}

// sample asks the probe, assuming reachable when the probe itself fails.
func (w *Watcher) sample(ctx context.Context) bool {
	if w.probe == nil {
		return true
	}

	up, err := w.probe.Reachable(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("reachability probe failed, assuming reachable")
		return true
	}
	return up
}

// Stop ends polling. It is idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Report feeds one observation. Only a flip of the last known state emits an edge.
func (w *Watcher) Report(up bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if up == w.lastKnownUp {
		return
	}
	w.lastKnownUp = up
	w.seq++

	ev := Event{Seq: w.seq}
	if up {
		ev.Edge = Available
	} else {
		ev.Edge = Lost
	}
	w.logger.WithFields(log.Fields{"edge": ev.Edge, "seq": ev.Seq}).Info("reachability changed")

	if w.handler == nil {
		return
	}
	if up {
		w.handler.OnAvailable(ev)
	} else {
		w.handler.OnLost(ev)
	}
}

// CapabilitiesChanged feeds a capability update. Only an internet-capable, validated network counts as up.
func (w *Watcher) CapabilitiesChanged(hasInternet, validated bool) {
	w.Report(hasInternet && validated)
}

// Up reports the last known state.
func (w *Watcher) Up() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastKnownUp
}

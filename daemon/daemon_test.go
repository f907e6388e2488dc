package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/massdroid-cli/massd/connectivity"
	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/control"
	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/interruption"
	"github.com/massdroid-cli/massd/player"
	"github.com/massdroid-cli/massd/snapshot"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeBackend struct {
	mu       sync.Mutex
	sink     player.Sink
	commands []string
	drops    int
	closed   bool
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Start(_ context.Context, sink player.Sink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	return nil
}

func (b *fakeBackend) Send(_ context.Context, cmd player.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, cmd.String())
	return nil
}

func (b *fakeBackend) DropSockets() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drops++
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBackend) started() player.Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sink
}

func (b *fakeBackend) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.commands...)
}

type outcomes struct {
	mu       sync.Mutex
	notified []continuity.Outcome
	recorded []continuity.Outcome
}

func (o *outcomes) ResumeOutcome(out continuity.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notified = append(o.notified, out)
}

func (o *outcomes) record(out continuity.Outcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorded = append(o.recorded, out)
	return nil
}

func (o *outcomes) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.notified), len(o.recorded)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func sentEquals(b *fakeBackend, want ...string) func() bool {
	return func() bool {
		got := b.sent()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func testOptions(socket string) Options {
	return Options{
		Backend:        "fake",
		LocalID:        "phone",
		CommandTimeout: time.Second,
		Debounce:       2500 * time.Millisecond,
		Continuity:     continuity.DefaultConfig(),
		Interruption: interruption.Config{
			Enabled:         true,
			PlayGrace:       2 * time.Second,
			CallResumeDelay: time.Second,
		},
		ControlSocket: socket,
	}
}

func TestDaemon(t *testing.T) {
	Convey("Given a running daemon on a fake player", t, func() {
		dir, err := os.MkdirTemp("", "massd")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)
		socket := filepath.Join(dir, "c.sock")

		fake := clock.NewFake(time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC))
		backend := &fakeBackend{}
		out := &outcomes{}

		d, err := New(testOptions(socket), Deps{
			Clock:    fake,
			Backend:  backend,
			Probe:    connectivity.ProbeFunc(func(context.Context) (bool, error) { return true, nil }),
			Notifier: out,
			Journal:  out.record,
		})
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- d.Run(ctx) }()
		defer func() {
			cancel()
			<-done
		}()

		select {
		case <-d.Ready():
		case <-time.After(3 * time.Second):
		}
		So(backend.started(), ShouldNotBeNil)
		backend.started().PlayerState(snapshot.Snapshot{TrackID: "T1", PositionMs: 42_000, DurationMs: 200_000, IsPlaying: true})

		Convey("A network change is resumed once the stream socket settles", func() {
			d.watcher.Report(false)
			So(d.controller.Phase(), ShouldEqual, continuity.AwaitingStability)
			So(backend.drops, ShouldEqual, 1)

			d.tracker.SocketOpened("s1", "ws://mass.local:8095/sendspin")
			fake.Advance(300 * time.Millisecond)
			d.tracker.SocketClosed("s1", 1006)
			fake.Advance(300 * time.Millisecond)
			d.tracker.SocketOpened("s2", "ws://mass.local:8095/sendspin")
			d.watcher.Report(true)
			fake.Advance(2500 * time.Millisecond)

			So(d.controller.Phase(), ShouldEqual, continuity.Resuming)
			So(eventually(sentEquals(backend, "stop", "play")), ShouldBeTrue)

			d.tracker.SocketMessage("s2", []byte(`{"type":"stream/start","payload":{}}`))
			So(eventually(sentEquals(backend, "stop", "play", "seek(42000ms)")), ShouldBeTrue)
			So(d.controller.Phase(), ShouldEqual, continuity.Idle)

			notified, recorded := out.counts()
			So(notified, ShouldEqual, 1)
			So(recorded, ShouldEqual, 1)
			So(out.notified[0].Result, ShouldEqual, continuity.ResultSuccess)
			So(out.notified[0].Seeked, ShouldBeTrue)
		})

		Convey("Selecting another speaker through the control socket aborts the attempt", func() {
			d.watcher.Report(false)
			So(d.controller.Phase(), ShouldEqual, continuity.AwaitingStability)

			var err error
			for i := 0; i < 100; i++ {
				if _, err = control.Call(context.Background(), socket, control.CommandSelect, "kitchen"); err == nil {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(err, ShouldBeNil)
			So(d.controller.Phase(), ShouldEqual, continuity.Idle)
			So(d.selector.IsLocal(), ShouldBeFalse)

			d.tracker.SocketOpened("s1", "ws://mass.local:8095/sendspin")
			fake.Advance(5 * time.Second)
			So(backend.sent(), ShouldBeEmpty)
		})

		Convey("A user pause goes through the queue and is reported in status", func() {
			So(d.User(player.ActionPause), ShouldBeNil)
			So(backend.sent(), ShouldResemble, []string{"pause"})

			raw, err := json.Marshal(d.Status())
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"backend":"fake"`)
			So(string(raw), ShouldContainSubstring, `"phase":"idle"`)
		})

		Convey("A transient focus loss pauses and focus gain resumes once", func() {
			fake.Advance(3 * time.Second)
			d.Focus(interruption.FocusLossTransient)
			So(eventually(sentEquals(backend, "pause")), ShouldBeTrue)
			So(d.arbiter.PausedDueToInterruption(), ShouldBeTrue)

			d.Focus(interruption.FocusGain)
			So(eventually(sentEquals(backend, "pause", "play")), ShouldBeTrue)
			So(d.arbiter.PausedDueToInterruption(), ShouldBeFalse)
		})
	})
}

func TestOptions(t *testing.T) {
	Convey("Stream transport follows the backend and server url", t, func() {
		opts := Options{Backend: BackendMusicAssistant, ServerURL: "ws://mass.local:8095/", APIPath: "/ws", SendspinPath: "sendspin"}
		So(opts.StreamEnabled(), ShouldBeTrue)
		So(opts.APIURL(), ShouldEqual, "ws://mass.local:8095/ws")
		So(opts.SendspinURL(), ShouldEqual, "ws://mass.local:8095/sendspin")

		opts.Backend = BackendMPD
		So(opts.StreamEnabled(), ShouldBeFalse)
	})

	Convey("An unknown backend is rejected", t, func() {
		_, err := New(Options{Backend: "vlc"}, Deps{Probe: connectivity.ProbeFunc(func(context.Context) (bool, error) { return true, nil })})
		So(errors.Is(err, ErrUnknownBackend), ShouldBeTrue)
	})
}

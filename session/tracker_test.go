package session

import (
	"testing"
	"time"

	"github.com/massdroid-cli/massd/internal/clock"
	. "github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	stabilized []Stabilization
	started    int
}

func (r *recorder) OnStabilized(s Stabilization) { r.stabilized = append(r.stabilized, s) }
func (r *recorder) OnStreamStarted()             { r.started++ }

func TestClassify(t *testing.T) {
	Convey("URLs are classified by ordered markers", t, func() {
		So(Classify("ws://mass.local:8095/sendspin"), ShouldEqual, StreamTransport)
		So(Classify("ws://mass.local:8095/ws"), ShouldEqual, ControlAPI)
		So(Classify("wss://host/api/sendspin"), ShouldEqual, StreamTransport)
		So(Classify("wss://host/API"), ShouldEqual, ControlAPI)
		So(Classify("https://cdn.example.com/image.png"), ShouldEqual, Other)
		So(Other.Tracked(), ShouldBeFalse)
		So(ParseClass(StreamTransport.String()), ShouldEqual, StreamTransport)
	})
}

func TestTracker(t *testing.T) {
	Convey("Given a tracker with a 2.5s debounce", t, func() {
		fake := clock.NewFake(time.Unix(0, 0))
		rec := &recorder{}
		tr := NewTracker(fake, 2500*time.Millisecond, "phone")
		tr.SetListener(rec)

		Convey("A storm of flaps produces exactly one stabilization", func() {
			tr.SocketOpened("a", "ws://h/sendspin")
			fake.Advance(200 * time.Millisecond)
			tr.SocketClosed("a", 1006)
			fake.Advance(300 * time.Millisecond)
			tr.SocketOpened("b", "ws://h/sendspin")
			fake.Advance(300 * time.Millisecond)
			tr.SocketClosed("b", 1006)
			tr.SocketOpened("c", "ws://h/sendspin")

			So(tr.Window(StreamTransport).Stabilized, ShouldBeFalse)
			So(tr.Window(StreamTransport).ChangeCount, ShouldEqual, 5)

			fake.Advance(2499 * time.Millisecond)
			So(rec.stabilized, ShouldBeEmpty)
			So(tr.Window(StreamTransport).Stabilized, ShouldBeFalse)

			fake.Advance(time.Millisecond)
			So(len(rec.stabilized), ShouldEqual, 1)
			So(rec.stabilized[0].Class, ShouldEqual, StreamTransport)
			So(rec.stabilized[0].Connected, ShouldBeTrue)
			So(rec.stabilized[0].Changes, ShouldEqual, 5)
			So(tr.Window(StreamTransport).Stabilized, ShouldBeTrue)

			fake.Advance(10 * time.Second)
			So(len(rec.stabilized), ShouldEqual, 1)
		})

		Convey("A new storm after stabilization resets the change count", func() {
			tr.SocketOpened("a", "ws://h/ws")
			fake.Advance(3 * time.Second)
			tr.SocketClosed("a", 1000)
			So(tr.Window(ControlAPI).ChangeCount, ShouldEqual, 1)
			fake.Advance(3 * time.Second)

			So(len(rec.stabilized), ShouldEqual, 2)
			So(rec.stabilized[1].Connected, ShouldBeFalse)
		})

		Convey("Classes have independent windows", func() {
			tr.SocketOpened("api", "ws://h/ws")
			fake.Advance(time.Second)
			tr.SocketOpened("stream", "ws://h/sendspin")
			fake.Advance(1500 * time.Millisecond)

			So(len(rec.stabilized), ShouldEqual, 1)
			So(rec.stabilized[0].Class, ShouldEqual, ControlAPI)

			fake.Advance(time.Second)
			So(len(rec.stabilized), ShouldEqual, 2)
			So(rec.stabilized[1].Class, ShouldEqual, StreamTransport)
		})

		Convey("Other sockets are not tracked", func() {
			tr.SocketOpened("img", "https://h/image.png")
			tr.SocketClosed("img", 1000)
			fake.Advance(5 * time.Second)
			So(rec.stabilized, ShouldBeEmpty)
		})

		Convey("Closing an unknown socket is ignored", func() {
			tr.SocketClosed("ghost", 1006)
			So(fake.Pending(), ShouldEqual, 0)
		})

		Convey("Believed state comes from the latest broadcast", func() {
			tr.SocketOpened("stream", "ws://h/sendspin")
			So(tr.BelievedState(StreamTransport).IsPresent(), ShouldBeFalse)

			tr.SocketMessage("stream", []byte(`{"type":"group/update","payload":{"playback_state":"playing"}}`))
			tr.SocketMessage("stream", []byte(`not json`))
			fake.Advance(3 * time.Second)

			So(rec.stabilized[0].BelievedServerState.MustGet(), ShouldEqual, "playing")
		})

		Convey("Control API state only follows the local player", func() {
			tr.SocketOpened("api", "ws://h/ws")
			tr.SocketMessage("api", []byte(`{"event":"player_updated","data":{"player_id":"kitchen","playback_state":"paused"}}`))
			So(tr.BelievedState(ControlAPI).IsPresent(), ShouldBeFalse)

			tr.SocketMessage("api", []byte(`{"event":"player_updated","data":{"player_id":"phone","playback_state":"playing"}}`))
			So(tr.BelievedState(ControlAPI).MustGet(), ShouldEqual, "playing")
		})

		Convey("stream/start on the transport socket is forwarded", func() {
			tr.SocketOpened("stream", "ws://h/sendspin")
			tr.SocketOpened("api", "ws://h/ws")
			tr.SocketMessage("stream", []byte(`{"type":"stream/start","payload":{}}`))
			tr.SocketMessage("api", []byte(`{"type":"stream/start"}`))
			So(rec.started, ShouldEqual, 1)
		})
	})
}

package interruption

import (
	"testing"
	"time"

	"github.com/massdroid-cli/massd/internal/clock"
	"github.com/massdroid-cli/massd/player"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingDispatcher struct {
	owners  []string
	batches [][]player.Command
}

func (r *recordingDispatcher) Submit(owner string, batch []player.Command, done func(error)) {
	r.owners = append(r.owners, owner)
	r.batches = append(r.batches, batch)
	done(nil)
}

func (r *recordingDispatcher) SubmitGuarded(owner string, batch []player.Command, _ player.Guard, done func(error)) {
	r.Submit(owner, batch, done)
}

type successorStub struct {
	takes  bool
	offers int
}

func (s *successorStub) TakeOverResume() bool {
	s.offers++
	return s.takes
}

type focusCounter struct {
	requests, abandons int
}

func (f *focusCounter) RequestFocus() bool { f.requests++; return true }
func (f *focusCounter) AbandonFocus()      { f.abandons++ }

func TestArbiter(t *testing.T) {
	Convey("Given an arbiter while playing", t, func() {
		fake := clock.NewFake(time.Unix(1000, 0))
		disp := &recordingDispatcher{}
		focus := &focusCounter{}
		a := New(fake, disp, focus, Config{Enabled: true, PlayGrace: 2 * time.Second, CallResumeDelay: time.Second})
		a.OnPlaybackState(true)

		Convey("Focus is requested once on playback start", func() {
			a.OnPlaybackState(true)
			So(focus.requests, ShouldEqual, 1)
		})

		Convey("Transient focus loss pauses and focus gain resumes exactly once", func() {
			a.OnFocusChange(FocusLossTransient)
			So(disp.batches, ShouldResemble, [][]player.Command{{player.Pause()}})
			So(disp.owners[0], ShouldEqual, player.OwnerInterruption)
			So(a.PausedDueToInterruption(), ShouldBeTrue)

			a.OnPlaybackState(false)
			a.OnFocusChange(FocusGain)
			a.OnFocusChange(FocusGain)

			So(disp.batches, ShouldResemble, [][]player.Command{{player.Pause()}, {player.Play()}})
			So(a.PausedDueToInterruption(), ShouldBeFalse)
		})

		Convey("Focus loss within the play grace window is ignored", func() {
			a.NotePlayIssued()
			fake.Advance(1500 * time.Millisecond)
			a.OnFocusChange(FocusLoss)
			So(disp.batches, ShouldBeEmpty)

			fake.Advance(time.Second)
			a.OnFocusChange(FocusLoss)
			So(disp.batches, ShouldResemble, [][]player.Command{{player.Pause()}})
		})

		Convey("Ducking is ignored", func() {
			a.OnFocusChange(FocusLossTransientCanDuck)
			So(disp.batches, ShouldBeEmpty)
		})

		Convey("A call pauses and resumes after the delay", func() {
			a.OnCallState(CallRinging)
			a.OnPlaybackState(false)
			a.OnCallState(CallOffHook)
			So(len(disp.batches), ShouldEqual, 1)

			a.OnCallState(CallIdle)
			So(len(disp.batches), ShouldEqual, 1)

			fake.Advance(time.Second)
			So(disp.batches, ShouldResemble, [][]player.Command{{player.Pause()}, {player.Play()}})
		})

		Convey("Both causes must clear before resuming", func() {
			a.OnFocusChange(FocusLoss)
			a.OnCallState(CallRinging)
			a.OnFocusChange(FocusGain)
			So(len(disp.batches), ShouldEqual, 1)

			a.OnCallState(CallIdle)
			fake.Advance(time.Second)
			So(len(disp.batches), ShouldEqual, 2)
		})

		Convey("A new call during the resume delay cancels the pending resume", func() {
			a.OnCallState(CallRinging)
			a.OnCallState(CallIdle)
			fake.Advance(500 * time.Millisecond)
			a.OnCallState(CallRinging)
			fake.Advance(5 * time.Second)
			So(len(disp.batches), ShouldEqual, 1)
			So(a.PausedDueToInterruption(), ShouldBeTrue)
		})

		Convey("A user command clears the owed resume", func() {
			a.OnFocusChange(FocusLossTransient)
			a.OnUserCommand(player.ActionPause)
			a.OnFocusChange(FocusGain)
			So(len(disp.batches), ShouldEqual, 1)
		})

		Convey("A user stop abandons focus", func() {
			a.OnUserCommand(player.ActionStop)
			So(focus.abandons, ShouldEqual, 1)
		})

		Convey("Nothing is paused when disabled", func() {
			a.SetConfig(Config{Enabled: false})
			a.OnCallState(CallRinging)
			So(disp.batches, ShouldBeEmpty)
		})
	})

	Convey("Given an arbiter with a successor", t, func() {
		fake := clock.NewFake(time.Unix(1000, 0))
		disp := &recordingDispatcher{}
		succ := &successorStub{}
		a := New(fake, disp, nil, Config{Enabled: true, PlayGrace: 2 * time.Second, CallResumeDelay: time.Second})
		a.SetSuccessor(succ)
		a.OnPlaybackState(true)

		a.OnCallState(CallOffHook)
		So(a.Held(), ShouldBeTrue)
		So(disp.batches, ShouldResemble, [][]player.Command{{player.Pause()}})

		Convey("A successor that takes over the resume suppresses the arbiter's play", func() {
			succ.takes = true
			a.OnCallState(CallIdle)
			So(a.Held(), ShouldBeTrue)
			So(succ.offers, ShouldEqual, 0)

			fake.Advance(time.Second)
			So(a.Held(), ShouldBeFalse)
			So(succ.offers, ShouldEqual, 1)
			So(disp.batches, ShouldResemble, [][]player.Command{{player.Pause()}})
			So(a.PausedDueToInterruption(), ShouldBeFalse)
		})

		Convey("A successor that declines leaves the play to the arbiter", func() {
			a.OnCallState(CallIdle)
			fake.Advance(time.Second)
			So(succ.offers, ShouldEqual, 1)
			So(disp.batches, ShouldResemble, [][]player.Command{{player.Pause()}, {player.Play()}})
		})
	})

	Convey("A call while not playing still holds the transport and is released when it ends", t, func() {
		disp := &recordingDispatcher{}
		succ := &successorStub{}
		a := New(clock.NewFake(time.Unix(0, 0)), disp, nil, Config{Enabled: true, CallResumeDelay: time.Second})
		a.SetSuccessor(succ)

		a.OnCallState(CallRinging)
		So(a.Held(), ShouldBeTrue)
		So(disp.batches, ShouldBeEmpty)

		a.OnCallState(CallIdle)
		So(a.Held(), ShouldBeFalse)
		So(succ.offers, ShouldEqual, 1)
		So(disp.batches, ShouldBeEmpty)
	})

	Convey("Interrupting signals while not playing do nothing", t, func() {
		disp := &recordingDispatcher{}
		a := New(clock.NewFake(time.Unix(0, 0)), disp, nil, Config{Enabled: true})
		a.OnFocusChange(FocusLoss)
		a.OnFocusChange(FocusGain)
		So(disp.batches, ShouldBeEmpty)
	})

	Convey("Names parse", t, func() {
		f, err := ParseFocus("loss_transient")
		So(err, ShouldBeNil)
		So(f, ShouldEqual, FocusLossTransient)
		c, err := ParseCallState("offhook")
		So(err, ShouldBeNil)
		So(c, ShouldEqual, CallOffHook)
		_, err = ParseCallState("busy")
		So(err, ShouldNotBeNil)
	})
}

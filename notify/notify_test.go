package notify

import (
	"errors"
	"testing"

	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/snapshot"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

type counter struct{ n int }

func (c *counter) ResumeOutcome(continuity.Outcome) { c.n++ }

func TestMessage(t *testing.T) {
	Convey("Given plain icons", t, func() {
		viper.Set(key.CliIcons, "plain")

		Convey("A seeked success mentions the position", func() {
			title, body := Message(continuity.Outcome{
				Result: continuity.ResultSuccess,
				Seeked: true,
				Frozen: snapshot.Snapshot{PositionMs: 42_000},
			})
			So(title, ShouldEqual, "> Playback resumed")
			So(body, ShouldEndWith, "at 0:42")
		})

		Convey("Exhaustion reports the retries", func() {
			title, body := Message(continuity.Outcome{Result: continuity.ResultExhausted, Retries: 6})
			So(title, ShouldEqual, "x Could not resume playback")
			So(body, ShouldContainSubstring, "6 retries")
		})

		Convey("An outage that never recovered says so", func() {
			_, body := Message(continuity.Outcome{Result: continuity.ResultExhausted})
			So(body, ShouldEqual, "The network did not come back in time. Press play to continue.")
		})
	})
}

func TestDesktop(t *testing.T) {
	Convey("Given a desktop notifier", t, func() {
		var titles []string
		d := &Desktop{notify: func(title, _ string) error {
			titles = append(titles, title)
			return errors.New("no dbus")
		}}

		Convey("A failing backend does not panic", func() {
			So(func() { d.ResumeOutcome(continuity.Outcome{Result: continuity.ResultSuccess}) }, ShouldNotPanic)
			So(titles, ShouldHaveLength, 1)
		})
	})
}

func TestMulti(t *testing.T) {
	Convey("Multi calls every notifier", t, func() {
		a, b := &counter{}, &counter{}
		Multi{a, Log{}, b}.ResumeOutcome(continuity.Outcome{Result: continuity.ResultExhausted})
		So(a.n, ShouldEqual, 1)
		So(b.n, ShouldEqual, 1)
	})
}

package journal

import (
	"testing"
	"time"

	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/filesystem"
	"github.com/massdroid-cli/massd/snapshot"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

func outcome(id uint64, result continuity.Result) continuity.Outcome {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return continuity.Outcome{
		Result:     result,
		AttemptID:  id,
		Retries:    2,
		Path:       continuity.PathPrimary,
		Frozen:     snapshot.Snapshot{TrackID: "T1", PositionMs: 42_000, DurationMs: 200_000},
		StartedAt:  start,
		FinishedAt: start.Add(7 * time.Second),
	}
}

func TestJournal(t *testing.T) {
	Convey("Given an empty journal", t, func() {
		So(Clear(), ShouldBeNil)

		Convey("When an outcome is recorded", func() {
			So(Record(outcome(1, continuity.ResultSuccess)), ShouldBeNil)

			Convey("Then it is returned with its frozen position", func() {
				entries, err := Get()
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Outcome, ShouldEqual, "success")
				So(entries[0].TrackID, ShouldEqual, "T1")
				So(entries[0].PositionMs, ShouldEqual, 42_000)
				So(entries[0].Path, ShouldEqual, "primary")
				So(entries[0].Took(), ShouldEqual, 7*time.Second)
			})

			Convey("And Clear removes it", func() {
				So(Clear(), ShouldBeNil)
				entries, err := Get()
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When more than the capacity is recorded", func() {
			for i := 1; i <= Capacity+5; i++ {
				So(Record(outcome(uint64(i), continuity.ResultExhausted)), ShouldBeNil)
			}

			Convey("Then only the newest entries are kept", func() {
				entries, err := Get()
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, Capacity)
				So(entries[0].AttemptID, ShouldEqual, 6)

				last, err := Last(3)
				So(err, ShouldBeNil)
				So(last, ShouldHaveLength, 3)
				So(last[0].AttemptID, ShouldEqual, Capacity+5)
			})
		})
	})
}

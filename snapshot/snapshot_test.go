package snapshot

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given an empty store", t, func() {
		s := NewStore()

		Convey("Nothing is frozen", func() {
			So(s.Frozen().IsPresent(), ShouldBeFalse)
			So(s.Current(), ShouldResemble, Snapshot{})
		})

		Convey("Update is last-write-wins", func() {
			s.Update(Snapshot{TrackID: "T1", PositionMs: 1000, IsPlaying: true})
			s.Update(Snapshot{TrackID: "T1", PositionMs: 500})
			So(s.Current().PositionMs, ShouldEqual, 500)
			So(s.Current().IsPlaying, ShouldBeFalse)
		})

		Convey("Freeze keeps a copy independent of later updates", func() {
			s.Update(Snapshot{TrackID: "T1", PositionMs: 42000, DurationMs: 200000, IsPlaying: true})
			frozen := s.Freeze()
			s.Update(Snapshot{TrackID: "T2"})

			So(frozen.TrackID, ShouldEqual, "T1")
			So(s.Frozen().MustGet().PositionMs, ShouldEqual, 42000)
			So(s.Current().TrackID, ShouldEqual, "T2")

			s.Thaw()
			So(s.Frozen().IsPresent(), ShouldBeFalse)
		})

		Convey("String describes the state", func() {
			So(Snapshot{TrackID: "T1", PositionMs: 1, DurationMs: 2, IsPlaying: true}.String(), ShouldEqual, "playing T1 1/2ms")
		})
	})
}

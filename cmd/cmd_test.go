package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/massdroid-cli/massd/continuity"
	"github.com/massdroid-cli/massd/daemon"
	"github.com/massdroid-cli/massd/endpoint"
	"github.com/massdroid-cli/massd/filesystem"
	"github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/session"
	"github.com/massdroid-cli/massd/snapshot"
	"github.com/massdroid-cli/massd/where"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseValue(t *testing.T) {
	Convey("Given config values typed by their defaults", t, func() {
		Convey("Integers are parsed and negatives rejected", func() {
			v, err := parseValue(key.ContinuityMaxRetries, []string{"3"})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 3)

			_, err = parseValue(key.ContinuityMaxRetries, []string{"-1"})
			So(err, ShouldNotBeNil)

			_, err = parseValue(key.ContinuityMaxRetries, []string{"many"})
			So(err, ShouldNotBeNil)
		})

		Convey("Booleans are parsed", func() {
			v, err := parseValue(key.ContinuityAutoResume, []string{"false"})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, false)
		})

		Convey("Enumerated strings must be one of the known values", func() {
			v, err := parseValue(key.PlayerBackend, []string{daemon.BackendMPD})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, daemon.BackendMPD)

			_, err = parseValue(key.PlayerBackend, []string{"mdp"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, daemon.BackendMPD)
		})

		Convey("A missing value is an error", func() {
			_, err := parseValue(key.PlayerBackend, nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestConfigSections(t *testing.T) {
	Convey("Continuity and interruption keys reload live", t, func() {
		So(reloadsLive(key.ContinuityAutoResume), ShouldBeTrue)
		So(reloadsLive(key.PlayerBackend), ShouldBeFalse)
		So(section(key.NetworkPollIntervalMs), ShouldEqual, "network")
	})
}

func TestEnvName(t *testing.T) {
	Convey("Config keys map to prefixed variables while path variables stay as they are", t, func() {
		So(envName(key.ContinuityMaxRetries), ShouldEqual, "MASSD_CONTINUITY_MAX_RETRIES")
		So(envName(where.EnvConfigPath), ShouldEqual, where.EnvConfigPath)
	})
}

func TestRenderStatus(t *testing.T) {
	Convey("Given a daemon status", t, func() {
		st := daemon.Status{
			Backend:   daemon.BackendMusicAssistant,
			NetworkUp: true,
			Endpoint:  endpoint.Endpoint{ID: "phone", IsLocalDevice: true},
			Continuity: continuity.Status{
				Phase:   continuity.Idle,
				Current: snapshot.Snapshot{TrackID: "T1", PositionMs: 42000, DurationMs: 200000, IsPlaying: true},
			},
			Sockets: map[string]daemon.SocketStatus{
				"stream_transport": {Connected: true, BelievedState: "playing", Window: session.Window{Stabilized: true, ChangeCount: 3}},
			},
		}

		out := renderStatus(st)

		Convey("It shows the phase, endpoint, track and sockets", func() {
			So(out, ShouldContainSubstring, "idle")
			So(out, ShouldContainSubstring, "phone")
			So(out, ShouldContainSubstring, "this device")
			So(out, ShouldContainSubstring, "T1")
			So(out, ShouldContainSubstring, "0:42 / 3:20")
			So(out, ShouldContainSubstring, "  stream_transport")
			So(out, ShouldContainSubstring, "changes=3")
			So(out, ShouldContainSubstring, "believed=playing")
			So(out, ShouldNotContainSubstring, "Deferred")
		})

		Convey("A resume held back by an interruption is shown", func() {
			st.Continuity.Phase = continuity.AwaitingStability
			st.Continuity.Deferred = continuity.PathPrimary
			So(renderStatus(st), ShouldContainSubstring, "primary")
			So(renderStatus(st), ShouldContainSubstring, "Deferred")
		})
	})
}

func TestWhere(t *testing.T) {
	t.Setenv(where.EnvConfigPath, "/massd")
	t.Setenv(where.EnvRuntimePath, "/run/massd")

	Convey("Given an in-memory filesystem", t, func() {
		filesystem.SetMemMapFs()
		byFlag := func(flag string) locator {
			for _, l := range locators {
				if l.flag == flag {
					return l
				}
			}
			panic(flag)
		}

		Convey("The config directory counts its entries", func() {
			where.Logs()
			loc := locate(byFlag("config"))
			So(loc.Path, ShouldEqual, "/massd")
			So(loc.Exists, ShouldBeTrue)
			So(loc.Entries, ShouldEqual, 1)
			So(describe(loc), ShouldEqual, "dir, 1 entry")
		})

		Convey("The journal reports its size once written", func() {
			loc := locate(byFlag("journal"))
			So(loc.Exists, ShouldBeFalse)
			So(describe(loc), ShouldEqual, "not created yet")

			So(filesystem.API().WriteFile(where.Journal(), []byte(`[{"id":1}]`), 0o644), ShouldBeNil)
			loc = locate(byFlag("journal"))
			So(loc.Exists, ShouldBeTrue)
			So(loc.Size, ShouldEqual, 10)
			So(describe(loc), ShouldEqual, "10 bytes")
		})

		Convey("A missing control socket means no daemon", func() {
			loc := locate(byFlag("socket"))
			So(loc.Path, ShouldEqual, filepath.Join("/run/massd", "control.sock"))
			So(describe(loc), ShouldEqual, "daemon not running")
		})

		Convey("JSON output lists the public paths", func() {
			var buf bytes.Buffer
			whereCmd.SetOut(&buf)
			So(whereCmd.Flags().Set("json", "true"), ShouldBeNil)
			Reset(func() {
				_ = whereCmd.Flags().Set("json", "false")
				whereCmd.SetOut(nil)
			})

			whereCmd.Run(whereCmd, nil)

			var got []location
			So(json.Unmarshal(buf.Bytes(), &got), ShouldBeNil)
			So(got, ShouldHaveLength, 4)
			So(got[0].Flag, ShouldEqual, "config")
			So(got[3].Kind, ShouldEqual, "file")
		})
	})
}

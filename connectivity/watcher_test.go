package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	. "github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnLost(e Event)      { r.add(e) }
func (r *recorder) OnAvailable(e Event) { r.add(e) }

func (r *recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestWatcherEdges(t *testing.T) {
	Convey("Given a watcher that starts up", t, func() {
		rec := &recorder{}
		w := NewWatcher(ProbeFunc(func(context.Context) (bool, error) { return true, nil }), 0, rec)
		w.Start(context.Background())
		Reset(w.Stop)

		Convey("Duplicate observations collapse into one edge per flip", func() {
			w.Report(true)
			w.Report(false)
			w.Report(false)
			w.CapabilitiesChanged(false, false)
			w.Report(true)
			w.CapabilitiesChanged(true, true)

			So(rec.all(), ShouldResemble, []Event{
				{Edge: Lost, Seq: 1},
				{Edge: Available, Seq: 2},
			})
		})

		Convey("An unvalidated network does not count as available", func() {
			w.Report(false)
			w.CapabilitiesChanged(true, false)
			So(len(rec.all()), ShouldEqual, 1)
			So(w.Up(), ShouldBeFalse)
		})

		Convey("Stop is idempotent", func() {
			w.Stop()
			w.Stop()
		})
	})

	Convey("A failing probe degrades to reachable", t, func() {
		rec := &recorder{}
		w := NewWatcher(ProbeFunc(func(context.Context) (bool, error) { return false, errors.New("no api") }), 0, rec)
		w.Start(context.Background())
		So(w.Up(), ShouldBeTrue)
		So(rec.all(), ShouldBeEmpty)
	})

	Convey("Polling reports flips from the probe", t, func() {
		var mu sync.Mutex
		up := true
		probe := ProbeFunc(func(context.Context) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			return up, nil
		})

		rec := &recorder{}
		w := NewWatcher(probe, 5*time.Millisecond, rec)
		w.Start(context.Background())
		defer w.Stop()

		mu.Lock()
		up = false
		mu.Unlock()

		deadline := time.Now().Add(2 * time.Second)
		for len(rec.all()) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		So(rec.all(), ShouldResemble, []Event{{Edge: Lost, Seq: 1}})
	})
}

func TestInterfaceProbe(t *testing.T) {
	Convey("Given a stubbed interface list", t, func() {
		probe := &InterfaceProbe{}

		Convey("Loopback and link-local only is unreachable", func() {
			probe.list = func(context.Context) (psnet.InterfaceStatList, error) {
				return psnet.InterfaceStatList{
					{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
					{Name: "eth0", Flags: []string{"up"}, Addrs: psnet.InterfaceAddrList{{Addr: "fe80::1/64"}}},
				}, nil
			}
			ok, err := probe.Reachable(context.Background())
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("An up interface with a routable address is reachable", func() {
			probe.list = func(context.Context) (psnet.InterfaceStatList, error) {
				return psnet.InterfaceStatList{
					{Name: "wlan0", Flags: []string{"up", "broadcast"}, Addrs: psnet.InterfaceAddrList{{Addr: "192.168.1.20/24"}}},
				}, nil
			}
			ok, err := probe.Reachable(context.Background())
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})

		Convey("A down interface is ignored", func() {
			probe.list = func(context.Context) (psnet.InterfaceStatList, error) {
				return psnet.InterfaceStatList{
					{Name: "wlan0", Flags: []string{"broadcast"}, Addrs: psnet.InterfaceAddrList{{Addr: "192.168.1.20/24"}}},
				}, nil
			}
			ok, _ := probe.Reachable(context.Background())
			So(ok, ShouldBeFalse)
		})

		Convey("List errors are returned", func() {
			probe.list = func(context.Context) (psnet.InterfaceStatList, error) { return nil, errors.New("boom") }
			_, err := probe.Reachable(context.Background())
			So(err, ShouldNotBeNil)
		})
	})
}

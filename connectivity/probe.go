package connectivity

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/samber/lo"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// Probe answers whether the host currently has a usable network.
type Probe interface {
	Reachable(ctx context.Context) (bool, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) (bool, error)

func (f ProbeFunc) Reachable(ctx context.Context) (bool, error) { return f(ctx) }

// InterfaceProbe reports reachable when at least one non-loopback interface is up
// and carries a routable address.
type InterfaceProbe struct {
	list func(ctx context.Context) (psnet.InterfaceStatList, error)
}

func NewInterfaceProbe() *InterfaceProbe {
	return &InterfaceProbe{list: psnet.InterfacesWithContext}
}

func (p *InterfaceProbe) Reachable(ctx context.Context) (bool, error) {
	ifaces, err := p.list(ctx)
	if err != nil {
		return false, fmt.Errorf("list interfaces: %w", err)
	}

	return lo.SomeBy(ifaces, usable), nil
}

func usable(iface psnet.InterfaceStat) bool {
	if !lo.Contains(iface.Flags, "up") || lo.Contains(iface.Flags, "loopback") {
		return false
	}

	return lo.SomeBy(iface.Addrs, func(a psnet.InterfaceAddr) bool {
		prefix, err := netip.ParsePrefix(a.Addr)
		var addr netip.Addr
		if err == nil {
			addr = prefix.Addr()
		} else if addr, err = netip.ParseAddr(strings.TrimSpace(a.Addr)); err != nil {
			return false
		}
		return !addr.IsLoopback() && !addr.IsLinkLocalUnicast() && !addr.IsUnspecified()
	})
}

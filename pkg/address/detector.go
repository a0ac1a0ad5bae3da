package address

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"runtime"
	"strings"
	"time"

	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/execx"
)

// probeTarget is a well-known external address used only for route-table
// introspection; no packets are sent over the UDP "connection".
const probeTarget = "8.8.8.8:80"

// Loopback is the terminal fallback: the sandbox must stay locally usable
// even fully offline.
var Loopback = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// Detector discovers the host's current primary LAN address through an
// ordered fallback chain. Detection never fails; it degrades down the chain
// and bottoms out at loopback.
type Detector struct {
	store  *config.Store
	runner execx.CommandRunner

	// Overridable probes for tests.
	routeSource func() (netip.Addr, error)
	hostAddrs   func() ([]netip.Addr, error)
}

// NewDetector creates a detector. store may be nil when no persisted identity
// can be reused (first initialization).
func NewDetector(store *config.Store, runner execx.CommandRunner) *Detector {
	return &Detector{
		store:       store,
		runner:      runner,
		routeSource: routeSourceAddress,
		hostAddrs:   hostInterfaceAddrs,
	}
}

// DetectPrimary returns the host's primary address, preferring the persisted
// identity when one exists. Use this when explicitly reusing prior identity,
// never for drift checks.
func (d *Detector) DetectPrimary(ctx context.Context) netip.Addr {
	if d.store != nil {
		if values, err := d.store.Load(); err == nil {
			if addr, err := netip.ParseAddr(values[config.KeyHostIP]); err == nil && addr.Is4() {
				return addr
			}
		}
	}
	return d.DetectPrimaryFresh(ctx)
}

// DetectPrimaryFresh runs the detection chain without consulting the
// persisted identity. The drift reconciler must use this mode: it exists to
// notice when the persisted value is stale.
func (d *Detector) DetectPrimaryFresh(ctx context.Context) netip.Addr {
	if addr, err := d.routeSource(); err == nil {
		return addr
	}

	if addrs, err := d.hostAddrs(); err == nil {
		for _, addr := range addrs {
			if addr.Is4() && !addr.IsLoopback() {
				return addr
			}
		}
	}

	if addr, err := d.platformQuery(ctx); err == nil {
		return addr
	}

	return Loopback
}

// routeSourceAddress asks the kernel which source address it would pick to
// reach a public host. Works without sending traffic and without the host
// being online in any meaningful sense, only a route must exist.
func routeSourceAddress() (netip.Addr, error) {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.Dial("udp4", probeTarget)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("route probe failed: %w", err)
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}

	addr, ok := netip.AddrFromSlice(local.IP.To4())
	if !ok {
		return netip.Addr{}, fmt.Errorf("non-IPv4 source address %s", local.IP)
	}
	return addr, nil
}

// hostInterfaceAddrs enumerates the host's interface addresses
func hostInterfaceAddrs() ([]netip.Addr, error) {
	ifAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var addrs []netip.Addr
	for _, ifAddr := range ifAddrs {
		ipNet, ok := ifAddr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip4); ok {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// platformQuery shells out to the platform's interface tooling as the
// second-to-last resort
func (d *Detector) platformQuery(ctx context.Context) (netip.Addr, error) {
	if d.runner == nil {
		return netip.Addr{}, fmt.Errorf("no command runner configured")
	}

	var out string
	var err error
	if runtime.GOOS == "darwin" {
		out, err = d.runner.Run(ctx, "ipconfig", "getifaddr", "en0")
	} else {
		out, err = d.runner.Run(ctx, "hostname", "-I")
	}
	if err != nil {
		return netip.Addr{}, err
	}

	for _, field := range strings.Fields(out) {
		addr, err := netip.ParseAddr(field)
		if err == nil && addr.Is4() && !addr.IsLoopback() {
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no usable address in tool output %q", strings.TrimSpace(out))
}

package address

import (
	"context"
	"fmt"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/execx"
)

func testStore(t *testing.T, hostIP string) *config.Store {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "sipbox.env"))
	if hostIP != "" {
		require.NoError(t, store.Save(map[string]string{config.KeyHostIP: hostIP}))
	}
	return store
}

func TestDetectPrimary_PrefersPersistedIdentity(t *testing.T) {
	d := NewDetector(testStore(t, "192.168.1.77"), execx.NewFakeRunner())
	d.routeSource = func() (netip.Addr, error) {
		return mustAddr(t, "192.168.1.100"), nil
	}

	got := d.DetectPrimary(context.Background())
	assert.Equal(t, "192.168.1.77", got.String())
}

func TestDetectPrimaryFresh_IgnoresPersistedIdentity(t *testing.T) {
	d := NewDetector(testStore(t, "192.168.1.77"), execx.NewFakeRunner())
	d.routeSource = func() (netip.Addr, error) {
		return mustAddr(t, "192.168.1.100"), nil
	}

	got := d.DetectPrimaryFresh(context.Background())
	assert.Equal(t, "192.168.1.100", got.String())
}

func TestDetectPrimary_FallsThroughWhenNothingPersisted(t *testing.T) {
	d := NewDetector(testStore(t, ""), execx.NewFakeRunner())
	d.routeSource = func() (netip.Addr, error) {
		return mustAddr(t, "192.168.1.100"), nil
	}

	got := d.DetectPrimary(context.Background())
	assert.Equal(t, "192.168.1.100", got.String())
}

func TestDetectPrimaryFresh_FallsBackToInterfaceEnumeration(t *testing.T) {
	d := NewDetector(nil, execx.NewFakeRunner())
	d.routeSource = func() (netip.Addr, error) {
		return netip.Addr{}, fmt.Errorf("no route")
	}
	d.hostAddrs = func() ([]netip.Addr, error) {
		return []netip.Addr{
			mustAddr(t, "127.0.0.1"), // loopback is skipped
			mustAddr(t, "10.1.2.3"),
		}, nil
	}

	got := d.DetectPrimaryFresh(context.Background())
	assert.Equal(t, "10.1.2.3", got.String())
}

func TestDetectPrimaryFresh_FallsBackToPlatformQuery(t *testing.T) {
	runner := execx.NewFakeRunner()
	runner.Results["hostname"] = execx.FakeResult{Output: "172.16.0.9 fe80::1\n"}
	runner.Results["ipconfig"] = execx.FakeResult{Output: "172.16.0.9\n"}

	d := NewDetector(nil, runner)
	d.routeSource = func() (netip.Addr, error) {
		return netip.Addr{}, fmt.Errorf("no route")
	}
	d.hostAddrs = func() ([]netip.Addr, error) {
		return nil, fmt.Errorf("enumeration failed")
	}

	got := d.DetectPrimaryFresh(context.Background())
	assert.Equal(t, "172.16.0.9", got.String())
}

func TestDetectPrimaryFresh_LoopbackIsTerminalFallback(t *testing.T) {
	runner := execx.NewFakeRunner()
	runner.Results["hostname"] = execx.FakeResult{Err: fmt.Errorf("tool missing")}
	runner.Results["ipconfig"] = execx.FakeResult{Err: fmt.Errorf("tool missing")}

	d := NewDetector(nil, runner)
	d.routeSource = func() (netip.Addr, error) {
		return netip.Addr{}, fmt.Errorf("no route")
	}
	d.hostAddrs = func() ([]netip.Addr, error) {
		return nil, fmt.Errorf("enumeration failed")
	}

	got := d.DetectPrimaryFresh(context.Background())
	assert.Equal(t, Loopback, got)
}

func TestDetectPrimary_IgnoresCorruptPersistedValue(t *testing.T) {
	d := NewDetector(testStore(t, "not-an-address"), execx.NewFakeRunner())
	d.routeSource = func() (netip.Addr, error) {
		return mustAddr(t, "192.168.1.100"), nil
	}

	got := d.DetectPrimary(context.Background())
	assert.Equal(t, "192.168.1.100", got.String())
}

package drift

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiplab/sipbox/pkg/cert"
	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/execx"
	"github.com/voiplab/sipbox/pkg/zone"
)

// stubDetector returns fixed addresses so cycles are deterministic
type stubDetector struct {
	primary netip.Addr
	fresh   netip.Addr
}

func (s *stubDetector) DetectPrimary(context.Context) netip.Addr      { return s.primary }
func (s *stubDetector) DetectPrimaryFresh(context.Context) netip.Addr { return s.fresh }

// testHarness bundles a reconciler over temp-dir artifact paths with the
// pieces the assertions need to reach
type testHarness struct {
	cfg      *config.Config
	store    *config.Store
	runner   *execx.FakeRunner
	detector *stubDetector
	rec      *Reconciler
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths = config.Paths{
		EnvFile:  filepath.Join(dir, "sipbox.env"),
		ZoneFile: filepath.Join(dir, "coredns", "Corefile"),
		CertDir:  filepath.Join(dir, "certs"),
	}

	runner := execx.NewFakeRunner()
	runner.Results["mkcert"] = execx.FakeResult{}
	// mkcert writes its material to the paths named by its flags; the fake
	// mimics that so the manager can read them back.
	runner.OnRun = func(name string, args []string) {
		if name != "mkcert" {
			return
		}
		for i := 0; i+1 < len(args); i++ {
			switch args[i] {
			case "-cert-file":
				_ = os.WriteFile(args[i+1], []byte("fake cert material"), 0644)
			case "-key-file":
				_ = os.WriteFile(args[i+1], []byte("fake key material"), 0600)
			}
		}
	}

	store := config.NewStore(cfg.Paths.EnvFile)
	detector := &stubDetector{}
	h := &testHarness{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		detector: detector,
	}
	h.rec = NewReconciler(cfg, store, detector,
		zone.NewGenerator(cfg, false),
		cert.NewManager(cfg, runner, false),
		false,
	)
	return h
}

func (h *testHarness) persist(t *testing.T, hostIP string) {
	t.Helper()
	require.NoError(t, h.store.Save(map[string]string{
		config.KeyHostIP:     hostIP,
		config.KeyBaseDomain: h.cfg.BaseDomain,
	}))
}

func TestReconcileOnce_RequiresProvisionedIdentity(t *testing.T) {
	h := newHarness(t)
	h.detector.fresh = netip.MustParseAddr("192.168.1.100")

	_, err := h.rec.ReconcileOnce(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, h.runner.Commands, "nothing should be regenerated")
}

func TestReconcileOnce_UnchangedTouchesNothing(t *testing.T) {
	h := newHarness(t)
	h.persist(t, "192.168.1.100")
	h.detector.fresh = netip.MustParseAddr("192.168.1.100")

	before, err := os.ReadFile(h.cfg.Paths.EnvFile)
	require.NoError(t, err)

	res, err := h.rec.ReconcileOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusUnchanged, res.Status)
	assert.False(t, res.DriftDetected())
	assert.Equal(t, "192.168.1.100", res.Previous.String())
	assert.Equal(t, "192.168.1.100", res.Current.String())
	assert.Empty(t, h.runner.Commands)

	after, err := os.ReadFile(h.cfg.Paths.EnvFile)
	require.NoError(t, err)
	assert.Equal(t, before, after, "store must not be rewritten on a no-op cycle")
}

func TestReconcileOnce_DriftRegeneratesEverything(t *testing.T) {
	h := newHarness(t)
	h.persist(t, "192.168.1.100")
	h.detector.fresh = netip.MustParseAddr("192.168.1.150")

	res, err := h.rec.ReconcileOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusReconciled, res.Status)
	assert.True(t, res.DriftDetected())
	assert.Equal(t, "192.168.1.100", res.Previous.String())
	assert.Equal(t, "192.168.1.150", res.Current.String())

	signaling, ok := res.Set.Role("signaling")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.158", signaling.String())
	media, ok := res.Set.Role("media")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.159", media.String())

	// Store reflects the new identity, keyed per role.
	values, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.150", values[config.KeyHostIP])
	assert.Equal(t, "192.168.1.158", values[config.RoleKey("signaling")])
	assert.Equal(t, "192.168.1.159", values[config.RoleKey("media")])
	assert.Equal(t, string(cert.TrustLocal), values[config.KeyTLSTrust])

	// Zone document targets the new addresses, never the old primary.
	doc, err := os.ReadFile(h.cfg.Paths.ZoneFile)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "192.168.1.150")
	assert.Contains(t, string(doc), "192.168.1.158")
	assert.Contains(t, string(doc), "192.168.1.159")
	assert.NotContains(t, string(doc), "192.168.1.100")

	// Certificate was reissued covering the new primary.
	require.Equal(t, 1, h.runner.CallCount("mkcert"))
	assert.Contains(t, h.runner.Commands[0], "192.168.1.150")
	assert.Equal(t, cert.TrustLocal, res.Trust)

	// Zone and cert both rotated, so every dependent service restarts.
	assert.ElementsMatch(t, []string{"coredns", "kamailio", "rtpengine", "console"}, res.Restarts)

	// The cycle converged: running again observes no drift.
	again, err := h.rec.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, again.Status)
}

func TestReconcileOnce_UnreadablePersistedAddressRegenerates(t *testing.T) {
	h := newHarness(t)
	h.persist(t, "not-an-address")
	h.detector.fresh = netip.MustParseAddr("10.0.0.20")

	res, err := h.rec.ReconcileOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusReconciled, res.Status)
	assert.False(t, res.Previous.IsValid())
	assert.Equal(t, "10.0.0.20", res.Current.String())

	values, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.20", values[config.KeyHostIP])
}

func TestReconcileOnce_ZoneFailureKeepsLastKnownGood(t *testing.T) {
	h := newHarness(t)
	h.persist(t, "192.168.1.100")
	h.detector.fresh = netip.MustParseAddr("192.168.1.150")

	// A regular file where the zone directory should go makes the write fail.
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("in the way"), 0644))
	h.cfg.Paths.ZoneFile = filepath.Join(blocked, "Corefile")

	res, err := h.rec.ReconcileOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusDrifted, res.Status)

	values, lerr := h.store.Load()
	require.NoError(t, lerr)
	assert.Equal(t, "192.168.1.100", values[config.KeyHostIP], "failed cycle must not overwrite the persisted identity")
}

func TestProvision_CreatesIdentityFromScratch(t *testing.T) {
	h := newHarness(t)
	h.detector.fresh = netip.MustParseAddr("172.20.0.4")

	require.False(t, h.store.Exists())

	res, err := h.rec.Provision(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, StatusReconciled, res.Status)
	assert.False(t, res.Previous.IsValid())
	assert.Equal(t, "172.20.0.4", res.Current.String())
	assert.True(t, h.store.Exists())

	_, err = os.Stat(h.cfg.Paths.ZoneFile)
	assert.NoError(t, err)
}

func TestProvision_ReusePrefersPersistedAddress(t *testing.T) {
	h := newHarness(t)
	h.persist(t, "192.168.1.100")
	h.detector.primary = netip.MustParseAddr("192.168.1.100")
	h.detector.fresh = netip.MustParseAddr("192.168.1.150")

	res, err := h.rec.Provision(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.100", res.Current.String())

	fresh, err := h.rec.Provision(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.150", fresh.Current.String())
}

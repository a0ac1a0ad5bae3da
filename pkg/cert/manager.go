// Package cert maintains the TLS bundle bound to the sandbox's current
// address set. Issuance is delegated to external tools: mkcert when installed
// (locally-trusted), openssl otherwise (self-signed). This package never
// builds X.509 material itself; it only inspects existing material to decide
// whether regeneration is needed.
package cert

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/voiplab/sipbox/pkg/address"
	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/execx"
	"github.com/voiplab/sipbox/pkg/resilience"
)

// TrustClass describes whether the host's trust store recognizes the bundle
type TrustClass string

const (
	// TrustLocal means the issuing CA is installed in the local trust store
	TrustLocal TrustClass = "locally-trusted"
	// TrustSelfSigned means browsers will require manual acceptance, and
	// background requests will fail silently
	TrustSelfSigned TrustClass = "self-signed"
)

// Certificate file names inside the per-domain material directory
const (
	certFileName = "cert.pem"
	keyFileName  = "key.pem"
)

// selfSignedDays is the openssl fallback validity window
const selfSignedDays = 825

// Bundle is the result of an Ensure call
type Bundle struct {
	Subjects []string   // SANs the certificate covers, in issuance order
	Trust    TrustClass
	CertPath string
	KeyPath  string
	CertPEM  []byte
	KeyPEM   []byte
	Rotated  bool     // false when existing material was reused unchanged
	Warnings []string // degradation notices, never fatal
}

// Manager ensures certificate material for the current address set
type Manager struct {
	cfg     *config.Config
	runner  execx.CommandRunner
	verbose bool

	// Breaker optionally guards mkcert invocations. Watch mode sets it so a
	// broken mkcert install stops being retried on every cycle.
	Breaker *resilience.ServiceBreaker
}

// NewManager creates a certificate manager
func NewManager(cfg *config.Config, runner execx.CommandRunner, verbose bool) *Manager {
	return &Manager{cfg: cfg, runner: runner, verbose: verbose}
}

// SubjectNames computes the SAN list for an address set: the base domain and
// its wildcard, one wildcard per family, localhost, loopback, and the literal
// primary address. The primary in the SAN set is why a primary change
// invalidates the bundle.
func (m *Manager) SubjectNames(set address.Set) []string {
	names := []string{
		m.cfg.BaseDomain,
		"*." + m.cfg.BaseDomain,
	}
	for _, fam := range m.cfg.SortedFamilies() {
		names = append(names, "*."+m.cfg.FQDN(fam.Name))
	}
	names = append(names, "localhost", address.Loopback.String(), set.Primary.String())
	return names
}

// Dir returns the material directory for the configured base domain
func (m *Manager) Dir() string {
	return filepath.Join(m.cfg.Paths.CertDir, m.cfg.BaseDomain)
}

// Ensure returns a bundle covering the address set, reusing existing material
// when its SAN set still matches and it is still valid. Issuance-tool failure
// degrades the trust class instead of failing the cycle: a running but
// untrusted sandbox beats a broken one.
func (m *Manager) Ensure(ctx context.Context, set address.Set) (*Bundle, error) {
	subjects := m.SubjectNames(set)
	dir := m.Dir()
	certPath := filepath.Join(dir, certFileName)
	keyPath := filepath.Join(dir, keyFileName)

	if bundle, ok := m.reusable(certPath, keyPath, subjects); ok {
		if m.verbose {
			fmt.Printf("  Certificate for %s is current, reusing\n", m.cfg.BaseDomain)
		}
		return bundle, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	bundle := &Bundle{
		Subjects: subjects,
		CertPath: certPath,
		KeyPath:  keyPath,
		Rotated:  true,
	}

	trust, warnings, err := m.generate(ctx, certPath, keyPath, subjects, set)
	if err != nil {
		return nil, err
	}
	bundle.Trust = trust
	bundle.Warnings = warnings

	bundle.CertPEM, err = os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated certificate: %w", err)
	}
	bundle.KeyPEM, err = os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated key: %w", err)
	}

	if m.verbose {
		fmt.Printf("  ✓ Certificate generated (%s) for %s\n", trust, m.cfg.BaseDomain)
	}
	return bundle, nil
}

// Info summarizes existing material for display
type Info struct {
	Subjects []string
	Trust    TrustClass
	NotAfter time.Time
}

// Current loads and summarizes the bundle on disk, reporting whether any
// usable material exists. Read-only; never triggers issuance.
func (m *Manager) Current() (*Info, bool) {
	certPEM, err := os.ReadFile(filepath.Join(m.Dir(), certFileName))
	if err != nil {
		return nil, false
	}
	info, err := inspect(certPEM)
	if err != nil {
		return nil, false
	}
	return &Info{
		Subjects: info.subjects(),
		Trust:    info.trustClass(),
		NotAfter: info.notAfter,
	}, true
}

// reusable loads existing material and checks it still covers the desired
// SAN set and is within its validity window
func (m *Manager) reusable(certPath, keyPath string, subjects []string) (*Bundle, bool) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, false
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, false
	}

	info, err := inspect(certPEM)
	if err != nil || !info.valid() || !sameSubjects(info.subjects(), subjects) {
		return nil, false
	}

	return &Bundle{
		Subjects: subjects,
		Trust:    info.trustClass(),
		CertPath: certPath,
		KeyPath:  keyPath,
		CertPEM:  certPEM,
		KeyPEM:   keyPEM,
		Rotated:  false,
	}, true
}

// generate produces new material, preferring mkcert
func (m *Manager) generate(ctx context.Context, certPath, keyPath string, subjects []string, set address.Set) (TrustClass, []string, error) {
	var warnings []string

	if m.runner.LookPath("mkcert") {
		err := m.runMkcert(ctx, certPath, keyPath, subjects)
		if err == nil {
			return TrustLocal, warnings, nil
		}
		warnings = append(warnings, fmt.Sprintf("mkcert failed (%v), falling back to self-signed", err))
		if m.verbose {
			fmt.Printf("  ⚠ mkcert failed: %v\n", err)
		}
	} else {
		warnings = append(warnings, "mkcert not installed; generating a self-signed certificate (browsers will warn, background requests fail silently)")
	}

	if err := m.runOpenssl(ctx, certPath, keyPath, subjects); err != nil {
		return "", nil, fmt.Errorf("certificate generation failed: %w", err)
	}
	return TrustSelfSigned, warnings, nil
}

// runMkcert invokes mkcert, through the breaker when one is configured
func (m *Manager) runMkcert(ctx context.Context, certPath, keyPath string, subjects []string) error {
	args := append([]string{"-key-file", keyPath, "-cert-file", certPath}, subjects...)

	invoke := func() error {
		_, err := m.runner.Run(ctx, "mkcert", args...)
		return err
	}

	if m.Breaker != nil {
		return m.Breaker.Execute(invoke)
	}
	return invoke()
}

// runOpenssl generates a self-signed certificate covering the subjects
func (m *Manager) runOpenssl(ctx context.Context, certPath, keyPath string, subjects []string) error {
	san := make([]string, len(subjects))
	for i, s := range subjects {
		if _, err := netip.ParseAddr(s); err == nil {
			san[i] = "IP:" + s
		} else {
			san[i] = "DNS:" + s
		}
	}

	sanArg := "subjectAltName="
	for i, s := range san {
		if i > 0 {
			sanArg += ","
		}
		sanArg += s
	}

	_, err := m.runner.Run(ctx, "openssl", "req", "-x509",
		"-newkey", "rsa:2048",
		"-sha256",
		"-nodes",
		"-days", fmt.Sprintf("%d", selfSignedDays),
		"-keyout", keyPath,
		"-out", certPath,
		"-subj", "/CN="+m.cfg.BaseDomain,
		"-addext", sanArg,
	)
	return err
}

// EnvValues returns the store mirror of a bundle for services that consume
// certificate material as environment values rather than files
func (b *Bundle) EnvValues() map[string]string {
	return map[string]string{
		config.KeyTLSTrust: string(b.Trust),
		config.KeyTLSCert:  base64.StdEncoding.EncodeToString(b.CertPEM),
		config.KeyTLSKey:   base64.StdEncoding.EncodeToString(b.KeyPEM),
	}
}

// sameSubjects compares SAN sets ignoring order
func sameSubjects(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := make([]string, len(a))
	bs := make([]string, len(b))
	copy(as, a)
	copy(bs, b)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

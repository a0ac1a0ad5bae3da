package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/voiplab/sipbox/pkg/utils"
)

// Identity store keys. Dependent services read these at startup; the store
// file is the single source of truth for the provisioned network identity.
const (
	KeyHostIP     = "SIPBOX_HOST_IP"
	KeyBaseDomain = "SIPBOX_BASE_DOMAIN"
	KeyTLSTrust   = "SIPBOX_TLS_TRUST"
	KeyTLSCert    = "SIPBOX_TLS_CERT_B64"
	KeyTLSKey     = "SIPBOX_TLS_KEY_B64"
)

// RoleKey returns the store key for a secondary-address role,
// e.g. "signaling" -> SIPBOX_SIGNALING_IP
func RoleKey(role string) string {
	return "SIPBOX_" + strings.ToUpper(strings.ReplaceAll(role, "-", "_")) + "_IP"
}

// Store is the persisted identity store: a key-value env file that is read
// whole, mutated in memory, and written whole atomically. There is no
// concurrent-writer protocol; callers serialize reconciliation.
type Store struct {
	Path string
}

// NewStore creates a store backed by the given env file path
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Exists reports whether an identity has ever been persisted
func (s *Store) Exists() bool {
	info, err := os.Stat(s.Path)
	return err == nil && !info.IsDir()
}

// Load reads the whole store. A missing file is not an error; it returns an
// empty map so callers can distinguish via Exists.
func (s *Store) Load() (map[string]string, error) {
	values, err := godotenv.Read(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read identity store: %w", err)
	}
	return values, nil
}

// Save overwrites the whole store atomically. Keys are sorted so repeated
// saves of the same identity are byte-identical.
func (s *Store) Save(values map[string]string) error {
	var sb strings.Builder
	sb.WriteString("# sipbox network identity\n")
	sb.WriteString("# Generated: " + time.Now().UTC().Format(time.RFC3339) + "\n")
	sb.WriteString("# Regenerated on every init or drift event; do not edit.\n\n")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(quoteEnvValue(values[k]))
		sb.WriteByte('\n')
	}

	if err := utils.WriteFileAtomic(s.Path, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("failed to persist identity store: %w", err)
	}
	return nil
}

// quoteEnvValue quotes a value when it contains characters that would break
// the KEY=value line format
func quoteEnvValue(value string) string {
	if !strings.ContainsAny(value, " \t\n\"'#$") {
		return value
	}

	escaped := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"$", `\$`,
	).Replace(value)
	return `"` + escaped + `"`
}

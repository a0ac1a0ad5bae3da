// Package zone renders the CoreDNS configuration that maps the sandbox's
// symbolic domains to the current address set.
package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/voiplab/sipbox/pkg/address"
	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/utils"
)

// forwardCacheTTL bounds how long unmatched upstream answers are cached
const forwardCacheTTL = 30

// Generator renders and writes the zone document
type Generator struct {
	cfg     *config.Config
	verbose bool
}

// NewGenerator creates a zone generator
func NewGenerator(cfg *config.Config, verbose bool) *Generator {
	return &Generator{cfg: cfg, verbose: verbose}
}

// Render produces the full zone document for the given address set:
// one server block per web domain answering with the primary address, one
// wildcard block per SIP/media family answering with its role's secondary
// address, and a terminal catch-all forwarding to the public resolvers.
func (g *Generator) Render(set address.Set) (string, error) {
	if !set.Primary.Is4() {
		return "", fmt.Errorf("primary address %s is not IPv4", set.Primary)
	}

	var sb strings.Builder
	sb.WriteString("# sipbox zone configuration\n")
	sb.WriteString("# Regenerated on every init or drift event; do not edit.\n\n")

	webDomains := make([]string, len(g.cfg.WebDomains))
	copy(webDomains, g.cfg.WebDomains)
	sort.Strings(webDomains)

	// Web domains resolve to the host: the reverse proxy's port mapping
	// routes them from there.
	for _, label := range webDomains {
		writeServerBlock(&sb, g.cfg.FQDN(label), set.Primary.String(), g.cfg.TTL)
	}

	// Wildcard families resolve to dedicated role addresses. SIP and media
	// stacks drop same-address traffic as a routing loop, so these must
	// never point at the host address.
	for _, fam := range g.cfg.SortedFamilies() {
		target, ok := set.Role(fam.Role)
		if !ok {
			return "", fmt.Errorf("family %q needs role %q but the address set has no such secondary", fam.Name, fam.Role)
		}
		writeServerBlock(&sb, g.cfg.FQDN(fam.Name), target.String(), g.cfg.TTL)
	}

	// Terminal catch-all: everything else goes upstream.
	sb.WriteString(".:53 {\n")
	sb.WriteString("    forward . " + strings.Join(g.cfg.Resolvers, " ") + "\n")
	fmt.Fprintf(&sb, "    cache %d\n", forwardCacheTTL)
	sb.WriteString("}\n")

	return sb.String(), nil
}

// writeServerBlock emits one CoreDNS server block answering every A query in
// the zone (the zone apex and all subdomains, which is what makes family
// blocks wildcards) with a fixed address.
func writeServerBlock(sb *strings.Builder, zone, target string, ttl int) {
	fmt.Fprintf(sb, "%s:53 {\n", zone)
	sb.WriteString("    template IN A {\n")
	fmt.Fprintf(sb, "        answer \"{{ .Name }} %d IN A %s\"\n", ttl, target)
	sb.WriteString("    }\n")
	sb.WriteString("}\n\n")
}

// Write overwrites the zone file atomically. A stale path that exists as a
// directory (a container mount racing the generator) is removed first. On
// any failure the previous zone file is left untouched so the resolver keeps
// serving stale-but-valid records.
func (g *Generator) Write(document string) error {
	path := g.cfg.Paths.ZoneFile

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove stale zone directory %s: %w", path, err)
		}
		if g.verbose {
			fmt.Printf("  Removed stale directory at %s\n", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create zone directory: %w", err)
	}

	if err := utils.WriteFileAtomic(path, []byte(document), 0644); err != nil {
		return fmt.Errorf("failed to write zone file: %w", err)
	}

	if g.verbose {
		fmt.Printf("  ✓ Zone written to %s\n", path)
	}
	return nil
}

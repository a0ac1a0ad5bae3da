// Package config owns the two configuration surfaces of sipbox: the
// project file (sipbox.yaml) describing what the sandbox looks like, and the
// generated environment store holding the provisioned network identity.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config is the parsed sipbox.yaml project configuration
type Config struct {
	Project    string         `yaml:"project"`
	BaseDomain string         `yaml:"base_domain"`
	TTL        int            `yaml:"ttl"`
	WebDomains []string       `yaml:"web_domains"`
	Families   []DomainFamily `yaml:"families"`
	Roles      []Role         `yaml:"roles"`
	Resolvers  []string       `yaml:"resolvers"`
	Paths      Paths          `yaml:"paths"`
	Services   []Service      `yaml:"services"`
}

// DomainFamily is a wildcard DNS family routed to a dedicated role address.
// SIP and media traffic cannot target the host address: the services would
// see their own traffic as a routing loop.
type DomainFamily struct {
	Name string `yaml:"name"` // subdomain label, e.g. "sip" -> *.sip.<base_domain>
	Role string `yaml:"role"` // secondary-address role serving this family
}

// Role is a service role that receives a dedicated secondary address
type Role struct {
	Name   string `yaml:"name"`
	Offset int    `yaml:"offset"` // added to the primary host octet
}

// Paths holds the generated artifact locations
type Paths struct {
	EnvFile  string `yaml:"env_file"`
	ZoneFile string `yaml:"zone_file"`
	CertDir  string `yaml:"cert_dir"`
}

// Service is a dependent sandbox service and what regeneration forces its
// restart: "zone" consumers cache resolved addresses, "cert" consumers load
// TLS material once at startup.
type Service struct {
	Name      string   `yaml:"name"`
	RestartOn []string `yaml:"restart_on"`
}

// DefaultConfig returns the configuration used when no sipbox.yaml exists
func DefaultConfig() *Config {
	return &Config{
		Project:    "sipbox",
		BaseDomain: "sipbox.test",
		TTL:        300,
		WebDomains: []string{"console", "api"},
		Families: []DomainFamily{
			{Name: "sip", Role: "signaling"},
			{Name: "media", Role: "media"},
		},
		Roles: []Role{
			{Name: "signaling", Offset: 8},
			{Name: "media", Offset: 9},
		},
		Resolvers: []string{"1.1.1.1", "8.8.8.8"},
		Paths: Paths{
			EnvFile:  ".sipbox/sipbox.env",
			ZoneFile: ".sipbox/coredns/Corefile",
			CertDir:  ".sipbox/certs",
		},
		Services: []Service{
			{Name: "coredns", RestartOn: []string{"zone"}},
			{Name: "kamailio", RestartOn: []string{"zone", "cert"}},
			{Name: "rtpengine", RestartOn: []string{"zone"}},
			{Name: "console", RestartOn: []string{"cert"}},
		},
	}
}

// LoadConfig reads the project configuration from path. An empty path loads
// ./sipbox.yaml; a missing file yields the defaults so a fresh checkout works
// without any setup.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "sipbox.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks cross-references between families and roles
func (c *Config) Validate() error {
	if c.BaseDomain == "" {
		return fmt.Errorf("base_domain is required")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %d", c.TTL)
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("at least one role is required")
	}

	roles := make(map[string]bool, len(c.Roles))
	offsets := make(map[int]string, len(c.Roles))
	for _, r := range c.Roles {
		if roles[r.Name] {
			return fmt.Errorf("duplicate role %q", r.Name)
		}
		roles[r.Name] = true

		if r.Offset <= 0 {
			return fmt.Errorf("role %q has non-positive offset %d", r.Name, r.Offset)
		}
		if prev, ok := offsets[r.Offset]; ok {
			return fmt.Errorf("roles %q and %q share offset %d", prev, r.Name, r.Offset)
		}
		offsets[r.Offset] = r.Name
	}

	for _, f := range c.Families {
		if f.Name == "" {
			return fmt.Errorf("family with empty name")
		}
		if !roles[f.Role] {
			return fmt.Errorf("family %q references unknown role %q", f.Name, f.Role)
		}
	}

	return nil
}

// RoleNames returns the role names in declaration order
func (c *Config) RoleNames() []string {
	names := make([]string, len(c.Roles))
	for i, r := range c.Roles {
		names[i] = r.Name
	}
	return names
}

// FQDN returns label.<base_domain> for a web domain or family label
func (c *Config) FQDN(label string) string {
	return label + "." + c.BaseDomain
}

// RestartTargets returns the names of services that must restart when any of
// the given artifacts ("zone", "cert") were regenerated. Order follows the
// service declaration order and names are unique.
func (c *Config) RestartTargets(artifacts ...string) []string {
	want := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		want[a] = true
	}

	var targets []string
	seen := make(map[string]bool)
	for _, svc := range c.Services {
		for _, on := range svc.RestartOn {
			if want[on] && !seen[svc.Name] {
				targets = append(targets, svc.Name)
				seen[svc.Name] = true
			}
		}
	}
	return targets
}

// SortedFamilies returns the families ordered by name for deterministic
// zone rendering
func (c *Config) SortedFamilies() []DomainFamily {
	fams := make([]DomainFamily, len(c.Families))
	copy(fams, c.Families)
	sort.Slice(fams, func(i, j int) bool { return fams[i].Name < fams[j].Name })
	return fams
}

package cert

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// certInfo is what reuse decisions need from existing material
type certInfo struct {
	dnsNames  []string
	ips       []string
	notAfter  time.Time
	notBefore time.Time
	selfIssue bool
}

// inspect parses the leaf certificate out of PEM material. Parsing only;
// issuance is always subprocess-delegated.
func inspect(certPEM []byte) (*certInfo, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate block in material")
	}

	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	info := &certInfo{
		dnsNames:  leaf.DNSNames,
		notAfter:  leaf.NotAfter,
		notBefore: leaf.NotBefore,
		selfIssue: leaf.Subject.String() == leaf.Issuer.String(),
	}
	for _, ip := range leaf.IPAddresses {
		info.ips = append(info.ips, ip.String())
	}
	return info, nil
}

// subjects returns all SANs, DNS names then IPs
func (c *certInfo) subjects() []string {
	out := make([]string, 0, len(c.dnsNames)+len(c.ips))
	out = append(out, c.dnsNames...)
	out = append(out, c.ips...)
	return out
}

// valid reports whether the certificate is within its validity window
func (c *certInfo) valid() bool {
	now := time.Now()
	return now.After(c.notBefore) && now.Before(c.notAfter)
}

// trustClass infers the trust class from the issuer: mkcert issues from a
// local CA, the openssl fallback self-issues
func (c *certInfo) trustClass() TrustClass {
	if c.selfIssue {
		return TrustSelfSigned
	}
	return TrustLocal
}

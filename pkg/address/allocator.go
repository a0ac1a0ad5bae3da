package address

import (
	"fmt"
	"net/netip"
)

const (
	// wrapCeiling is the highest host octet handed out directly; above it the
	// derivation wraps below the primary instead.
	wrapCeiling = 250

	// wrapDistance is subtracted from the primary host octet in the wrap branch.
	wrapDistance = 50

	// safeBase seeds derivation if a wrapped octet still lands below the valid
	// host range. Unreachable with the shipped role offsets; kept so a future
	// offset change cannot silently derive an invalid address.
	safeBase = 160

	minHostOctet = 2
	maxHostOctet = 254
)

// Role pairs a role name with its derivation offset
type Role struct {
	Name   string
	Offset int
}

// AllocateSecondaries deterministically derives one dedicated address per
// role from the primary address. The same primary always yields the same
// secondaries, so zone documents and certificates regenerate identically.
//
// Derivation, per role at index i:
//
//	candidate = host_octet + offset
//	if candidate > 250:  candidate = host_octet - 50 + i
//	if candidate < 2:    candidate = 160 + i
//
// Any collision with the primary or between roles is a derivation bug, not
// bad input, and is returned as a hard error.
func AllocateSecondaries(primary netip.Addr, roles []Role) (map[string]netip.Addr, error) {
	if !primary.Is4() {
		return nil, fmt.Errorf("primary address %s is not IPv4", primary)
	}

	octets := primary.As4()
	host := int(octets[3])

	secondaries := make(map[string]netip.Addr, len(roles))
	taken := make(map[int]string, len(roles))

	for i, role := range roles {
		candidate := deriveHostOctet(host, role.Offset, i)

		if candidate < minHostOctet || candidate > maxHostOctet {
			return nil, fmt.Errorf("derived octet %d for role %q outside host range", candidate, role.Name)
		}
		if candidate == host {
			return nil, fmt.Errorf("derived address for role %q collides with primary %s", role.Name, primary)
		}
		if prev, ok := taken[candidate]; ok {
			return nil, fmt.Errorf("roles %q and %q both derived host octet %d", prev, role.Name, candidate)
		}
		taken[candidate] = role.Name

		secondaries[role.Name] = netip.AddrFrom4([4]byte{octets[0], octets[1], octets[2], byte(candidate)})
	}

	return secondaries, nil
}

// deriveHostOctet applies the offset-plus-wraparound rule for a single role.
// index disambiguates roles that land in the same wrap branch.
func deriveHostOctet(host, offset, index int) int {
	candidate := host + offset
	if candidate > wrapCeiling {
		candidate = host - wrapDistance + index
	}
	if candidate < minHostOctet {
		candidate = safeBase + index
	}
	return candidate
}

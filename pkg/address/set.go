// Package address derives the sandbox's network identity: the host's primary
// LAN address plus deterministic per-role secondary addresses on the same /24.
package address

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// Set is the unit of identity for one reconciliation cycle: the detected
// primary address and the dedicated secondary address for each service role.
// A Set is computed fresh on every initialization or drift event and
// superseded wholesale, never merged.
type Set struct {
	Primary   netip.Addr
	Secondary map[string]netip.Addr // role name -> dedicated address
}

// Role returns the secondary address for a role
func (s Set) Role(name string) (netip.Addr, bool) {
	addr, ok := s.Secondary[name]
	return addr, ok
}

// Equal reports whether two sets describe the same identity
func (s Set) Equal(other Set) bool {
	if s.Primary != other.Primary || len(s.Secondary) != len(other.Secondary) {
		return false
	}
	for role, addr := range s.Secondary {
		if other.Secondary[role] != addr {
			return false
		}
	}
	return true
}

// String renders the set as "primary [role=addr role=addr]" with roles sorted
func (s Set) String() string {
	roles := make([]string, 0, len(s.Secondary))
	for role := range s.Secondary {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	parts := make([]string, len(roles))
	for i, role := range roles {
		parts[i] = fmt.Sprintf("%s=%s", role, s.Secondary[role])
	}
	return fmt.Sprintf("%s [%s]", s.Primary, strings.Join(parts, " "))
}

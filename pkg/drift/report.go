package drift

import (
	"fmt"
	"sort"
	"strings"
)

// Format returns a human-readable summary of one reconciliation cycle
func (r *Result) Format() string {
	var sb strings.Builder

	switch r.Status {
	case StatusUnchanged:
		fmt.Fprintf(&sb, "✓ Identity unchanged: %s\n", r.Current)
		return sb.String()
	case StatusDrifted:
		if r.Previous.IsValid() {
			fmt.Fprintf(&sb, "⚠ Drift detected (%s → %s) but reconciliation did not complete\n", r.Previous, r.Current)
		} else {
			fmt.Fprintf(&sb, "⚠ Reconciliation did not complete\n")
		}
		return sb.String()
	}

	if r.Previous.IsValid() {
		fmt.Fprintf(&sb, "✓ Reconciled: %s → %s\n", r.Previous, r.Current)
	} else {
		fmt.Fprintf(&sb, "✓ Identity provisioned: %s\n", r.Current)
	}

	roles := make([]string, 0, len(r.Set.Secondary))
	for role := range r.Set.Secondary {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Fprintf(&sb, "    %-12s %s\n", role, r.Set.Secondary[role])
	}

	fmt.Fprintf(&sb, "    certificate  %s\n", r.Trust)

	for _, warning := range r.Warnings {
		fmt.Fprintf(&sb, "  ⚠ %s\n", warning)
	}

	if len(r.Restarts) > 0 {
		fmt.Fprintf(&sb, "\n  Restart required: %s\n", strings.Join(r.Restarts, ", "))
	}

	return sb.String()
}

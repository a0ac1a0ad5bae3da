package cmd

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voiplab/sipbox/pkg/address"
	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/utils"
)

var zoneWrite bool

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Render the DNS zone document for the current identity",
	Long: `Render the zone configuration from the persisted identity. By default the
document is printed; with --write it overwrites the zone file the resolver
container serves from.`,
	RunE: runZone,
}

func init() {
	rootCmd.AddCommand(zoneCmd)
	zoneCmd.Flags().BoolVar(&zoneWrite, "write", false, "overwrite the zone file instead of printing")
}

func runZone(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return utils.Wrapf(err, "failed to load config")
	}
	return renderZone(eng)
}

// renderZone prints the zone document, or with --write overwrites the zone
// file and reports which consumers must restart to observe it
func renderZone(eng *engine) error {
	set, err := loadPersistedSet(eng)
	if err != nil {
		return err
	}

	document, err := eng.zones.Render(set)
	if err != nil {
		return utils.Wrapf(err, "failed to render zone")
	}

	if zoneWrite {
		if err := eng.zones.Write(document); err != nil {
			return err
		}
		fmt.Printf("✓ Zone written to %s\n", eng.cfg.Paths.ZoneFile)
		targets := eng.cfg.RestartTargets("zone")
		if len(targets) > 0 {
			fmt.Printf("\n  Restart required: %s\n", strings.Join(targets, ", "))
		}
		return nil
	}

	fmt.Print(document)
	return nil
}

// loadPersistedSet rebuilds the AddressSet from the identity store without
// running detection (live reads must not have side effects)
func loadPersistedSet(eng *engine) (address.Set, error) {
	if !eng.store.Exists() {
		return address.Set{}, fmt.Errorf("no identity provisioned yet; run: sipbox init")
	}

	values, err := eng.store.Load()
	if err != nil {
		return address.Set{}, utils.Wrapf(err, "failed to read identity store")
	}

	primary, err := netip.ParseAddr(values[config.KeyHostIP])
	if err != nil {
		return address.Set{}, fmt.Errorf("identity store has no usable host address: %w", err)
	}

	set := address.Set{Primary: primary, Secondary: make(map[string]netip.Addr)}
	for _, role := range eng.cfg.RoleNames() {
		addr, err := netip.ParseAddr(values[config.RoleKey(role)])
		if err != nil {
			return address.Set{}, fmt.Errorf("identity store missing address for role %q", role)
		}
		set.Secondary[role] = addr
	}
	return set, nil
}

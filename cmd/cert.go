package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voiplab/sipbox/pkg/cert"
	"github.com/voiplab/sipbox/pkg/utils"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Ensure the TLS bundle covers the current identity",
	Long: `Check the certificate bundle against the persisted identity and
regenerate it when the subject set no longer matches. Reuse is idempotent:
an up-to-date bundle is returned unchanged, byte for byte.`,
	RunE: runCert,
}

func init() {
	rootCmd.AddCommand(certCmd)
}

func runCert(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return utils.Wrapf(err, "failed to load config")
	}
	return ensureCert(cmd.Context(), eng)
}

// ensureCert checks the bundle against the persisted identity. Rotated
// material is mirrored back into the identity store so services consuming the
// encoded fields observe the same bundle as the files on disk.
func ensureCert(ctx context.Context, eng *engine) error {
	set, err := loadPersistedSet(eng)
	if err != nil {
		return err
	}

	bundle, err := eng.certs.Ensure(ctx, set)
	if err != nil {
		return utils.Wrapf(err, "failed to ensure certificate")
	}

	if bundle.Rotated {
		if err := mirrorBundle(eng, bundle); err != nil {
			return err
		}
		fmt.Printf("✓ Certificate regenerated (%s)\n", bundle.Trust)
	} else {
		fmt.Printf("✓ Certificate up to date (%s)\n", bundle.Trust)
	}
	fmt.Printf("    %s\n", bundle.CertPath)
	fmt.Printf("    subjects: %s\n", strings.Join(bundle.Subjects, ", "))

	for _, warning := range bundle.Warnings {
		fmt.Printf("  ⚠ %s\n", warning)
	}

	if bundle.Rotated {
		targets := eng.cfg.RestartTargets("cert")
		if len(targets) > 0 {
			fmt.Printf("\n  Restart required: %s\n", strings.Join(targets, ", "))
		}
	}

	return nil
}

// mirrorBundle merges the bundle's store fields into the identity store
func mirrorBundle(eng *engine, bundle *cert.Bundle) error {
	values, err := eng.store.Load()
	if err != nil {
		return utils.Wrapf(err, "failed to read identity store")
	}
	for k, v := range bundle.EnvValues() {
		values[k] = v
	}
	if err := eng.store.Save(values); err != nil {
		return utils.Wrapf(err, "failed to persist rotated certificate")
	}
	return nil
}

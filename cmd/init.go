package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voiplab/sipbox/pkg/lifecycle"
	"github.com/voiplab/sipbox/pkg/utils"
)

var (
	initForce bool
	initReuse bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision the sandbox's network identity",
	Long: `Detect the host's primary LAN address, derive dedicated secondary
addresses for loop-sensitive services, and generate the DNS zone, TLS
certificates, and the identity store the sandbox services read at startup.

Examples:
  # Provision from scratch
  sipbox init

  # Keep a previously persisted primary address instead of re-detecting
  sipbox init --reuse

  # Overwrite the identity of a running sandbox
  sipbox init --force
`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite the identity even while the sandbox is running")
	initCmd.Flags().BoolVar(&initReuse, "reuse", false, "reuse the persisted primary address when one exists")
}

func runInit(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return utils.Wrapf(err, "failed to load config")
	}

	ctx := cmd.Context()

	// A running sandbox has services holding the current identity; silently
	// replacing it underneath them needs explicit confirmation.
	if phase := eng.classifier.Classify(ctx); phase == lifecycle.Running && !initForce {
		return utils.NewError("refusing to overwrite identity", nil,
			"sandbox is running; stop it or pass --force")
	}

	res, err := eng.reconciler.Provision(ctx, initReuse)
	if err != nil {
		return utils.Wrapf(err, "failed to provision identity")
	}

	fmt.Print(res.Format())
	return nil
}

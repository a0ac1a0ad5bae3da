package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voiplab/sipbox/pkg/config"
	"github.com/voiplab/sipbox/pkg/lifecycle"
	"github.com/voiplab/sipbox/pkg/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sandbox's lifecycle phase and current identity",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return utils.Wrapf(err, "failed to load config")
	}

	phase := eng.classifier.Classify(cmd.Context())
	fmt.Printf("Phase:       %s\n", phase)

	if phase == lifecycle.Uninitialized {
		fmt.Println("\nNo identity provisioned yet. Run: sipbox init")
		return nil
	}

	values, err := eng.store.Load()
	if err != nil {
		return utils.Wrapf(err, "failed to read identity store")
	}

	fmt.Printf("Base domain: %s\n", values[config.KeyBaseDomain])
	fmt.Printf("Host:        %s\n", values[config.KeyHostIP])
	for _, role := range eng.cfg.RoleNames() {
		fmt.Printf("%-12s %s\n", role+":", values[config.RoleKey(role)])
	}
	if info, ok := eng.certs.Current(); ok {
		fmt.Printf("TLS:         %s (expires %s)\n", info.Trust, info.NotAfter.Format("2006-01-02"))
	} else if trust := values[config.KeyTLSTrust]; trust != "" {
		fmt.Printf("TLS:         %s\n", trust)
	}

	return nil
}

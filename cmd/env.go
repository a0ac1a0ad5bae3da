package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/voiplab/sipbox/pkg/utils"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the persisted identity store",
	Long: `Print the generated environment file as KEY=value lines. This is a live
read with no side effects: it never triggers detection or reconciliation.`,
	RunE: runEnv,
}

func init() {
	rootCmd.AddCommand(envCmd)
}

func runEnv(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return utils.Wrapf(err, "failed to load config")
	}

	if !eng.store.Exists() {
		return fmt.Errorf("no identity provisioned yet; run: sipbox init")
	}

	values, err := eng.store.Load()
	if err != nil {
		return utils.Wrapf(err, "failed to read identity store")
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, values[k])
	}
	return nil
}

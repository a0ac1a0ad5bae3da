package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voiplab/sipbox/pkg/drift"
	"github.com/voiplab/sipbox/pkg/utils"
)

var (
	reconcileWatch    bool
	reconcileInterval time.Duration
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Detect and repair network identity drift",
	Long: `Compare the persisted identity against a fresh detection of the host's
primary address. On mismatch, re-derive secondary addresses, regenerate the
zone document and certificate bundle, and report which services must restart.

Reads never reconcile; this command is the only entry point with side
effects, so callers stay in control of when regeneration happens.

Examples:
  # Check once
  sipbox reconcile

  # Watch continuously (check every 5 minutes)
  sipbox reconcile --watch --interval 5m
`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileWatch, "watch", false, "continuously watch for drift")
	reconcileCmd.Flags().DurationVar(&reconcileInterval, "interval", 5*time.Minute, "check interval for watch mode")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return utils.Wrapf(err, "failed to load config")
	}

	ctx := cmd.Context()

	if !reconcileWatch {
		res, err := eng.reconciler.ReconcileOnce(ctx)
		if err != nil {
			if errors.Is(err, drift.ErrNotInitialized) {
				return utils.Wrapf(err, "nothing to reconcile")
			}
			return err
		}
		fmt.Print(res.Format())
		return nil
	}

	// Watch mode: run until interrupted.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nStopping watch...")
		cancel()
	}()

	watcher := drift.NewWatcher(eng.reconciler, verbose)
	err = watcher.Start(ctx, reconcileInterval, func(res *drift.Result) {
		if res.DriftDetected() {
			fmt.Print(res.Format())
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

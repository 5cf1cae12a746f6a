// Package cmd implements the driftsync command line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/pkg/buildinfo"
	"github.com/driftsync/driftsync/pkg/config"
	"github.com/driftsync/driftsync/pkg/engine"
	"github.com/driftsync/driftsync/pkg/hints"
	"github.com/driftsync/driftsync/pkg/hook"
	"github.com/driftsync/driftsync/pkg/metrics"
	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/snapshot"
)

var (
	flagConfig   string
	flagLogLevel string
	flagQuiet    bool
)

var rootCmd = &cobra.Command{
	Use:   buildinfo.Name,
	Short: "Keep a project directory and a document vault convergent",
	Long: `driftsync keeps two independently-owned file trees convergent in both
directions without a central server. It diffs both trees against the snapshot
persisted after the last sync, so it can tell a local edit from a remote one
and a deletion from a file that never existed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		plog.SetLevel(flagLogLevel)
		plog.SetQuiet(flagQuiet)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
}

// ExecuteContext runs the CLI. The context is cancelled on SIGINT/SIGTERM
// by main.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadEngine loads the config and snapshot store and wires an engine with
// terminal prompts for conflicts and deletions.
func loadEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, err
	}

	snapStore := snapshot.NewStore(cfg.SnapshotPath())
	if err := snapStore.Load(); err != nil {
		return nil, nil, err
	}

	e := engine.New(cfg, snapStore, &metrics.SyncMetrics{})
	e.ConflictDecider = promptConflict
	e.DeletionConfirmer = promptDeletions
	return e, cfg, nil
}

// runSync wraps a set of mapping runs in the configured pre and post sync
// hooks. A failing pre-sync hook aborts before any mapping is touched; a
// failing post-sync hook turns an otherwise clean run into an error.
func runSync(ctx context.Context, e *engine.Engine, cfg *config.Config, ids []string, dryRun bool) ([]*engine.Result, error) {
	executor := hook.NewExecutor(nil)
	if err := executor.Run(ctx, hook.PhasePreSync, cfg.Hooks.PreSync, dryRun); err != nil && !hints.IsHint(err) {
		return nil, err
	}

	results, err := e.RunAll(ctx, ids, dryRun)
	if err != nil {
		return nil, err
	}
	e.Metrics().Log()

	if err := executor.Run(ctx, hook.PhasePostSync, cfg.Hooks.PostSync, dryRun); err != nil && !hints.IsHint(err) {
		return results, err
	}
	return results, nil
}

func summarize(results []*engine.Result) error {
	var failed int
	for _, res := range results {
		// Skipped-because-busy is a hint, not a failure.
		if !res.Success && !hints.IsHint(res.Err) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d mapping runs failed", failed, len(results))
	}
	return nil
}

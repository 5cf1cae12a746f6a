package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/pkg/config"
	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/snapshot"
)

var resetCmd = &cobra.Command{
	Use:   "reset [mapping-id...]",
	Short: "Forget the recorded sync state for the given mappings, or all of them",
	Long: `Discards the snapshot recorded after the last sync. The next run then
behaves like a first sync: files are copied in both directions and nothing is
deleted. Use this after manually rearranging either tree.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		snapStore := snapshot.NewStore(cfg.SnapshotPath())
		if err := snapStore.Load(); err != nil {
			return err
		}

		ids := args
		if len(ids) == 0 {
			ids = snapStore.MappingIDs()
		}
		if len(ids) == 0 {
			plog.Info("No recorded sync state to reset")
			return nil
		}
		for _, id := range ids {
			if _, ok := cfg.MappingByID(id); !ok {
				// Stale entries for mappings removed from the config are
				// still droppable by ID.
				plog.Warn("Mapping not in config, dropping recorded state anyway", "mapping", id)
			}
			snapStore.DropMapping(id)
		}
		if err := snapStore.Save(); err != nil {
			return err
		}
		fmt.Printf("Reset sync state for %d mapping(s). The next sync starts from scratch.\n", len(ids))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

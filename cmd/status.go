package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/pkg/config"
	"github.com/driftsync/driftsync/pkg/snapshot"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last recorded sync state per mapping",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		snapStore := snapshot.NewStore(cfg.SnapshotPath())
		if err := snapStore.Load(); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "MAPPING\tENABLED\tDIRECTION\tLAST SYNC\tPROJECT FILES\tVAULT FILES")
		for i := range cfg.Mappings {
			m := &cfg.Mappings[i]
			entry := snapStore.Mapping(m.ID)
			lastSync := "never"
			if !entry.LastSyncTime.IsZero() {
				lastSync = entry.LastSyncTime.Local().Format("2006-01-02 15:04:05")
			}
			direction, _ := config.ParseDirection(m.Direction)
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%d\t%d\n",
				m.ID, m.Enabled, direction, lastSync, len(entry.ProjectFiles), len(entry.VaultFiles))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

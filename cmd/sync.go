package cmd

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [mapping-id...]",
	Short: "Run a sync for the given mappings, or all enabled ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cfg, err := loadEngine()
		if err != nil {
			return err
		}
		results, err := runSync(cmd.Context(), e, cfg, args, false)
		if err != nil {
			return err
		}
		return summarize(results)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

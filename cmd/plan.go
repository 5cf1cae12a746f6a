package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/pkg/engine"
)

var planCmd = &cobra.Command{
	Use:   "plan [mapping-id...]",
	Short: "Show what a sync would do without touching any files",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cfg, err := loadEngine()
		if err != nil {
			return err
		}
		results, err := runSync(cmd.Context(), e, cfg, args, true)
		if err != nil {
			return err
		}
		printPlans(results)
		return summarize(results)
	},
}

func printPlans(results []*engine.Result) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	defer w.Flush()

	for _, res := range results {
		fmt.Fprintf(w, "Mapping %s:\n", res.MappingID)
		if res.Err != nil {
			fmt.Fprintf(w, "\terror: %v\n", res.Err)
			continue
		}
		if len(res.Planned) == 0 {
			fmt.Fprintf(w, "\tnothing to do\n")
			continue
		}
		for _, action := range res.Planned {
			if action.Kind == engine.ActionSkip {
				continue
			}
			fmt.Fprintf(w, "\t%s\t%s\t%s\t%s\n", action.Kind, action.Flow, action.RelPath, action.Reason)
		}
		fmt.Fprintf(w, "\t%d copy, %d update, %d delete, %d skip\n",
			res.Copied, res.Updated, res.Deleted, res.Skipped)
	}
}

func init() {
	rootCmd.AddCommand(planCmd)
}

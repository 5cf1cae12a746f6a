package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/pkg/config"
	"github.com/driftsync/driftsync/pkg/engine"
	"github.com/driftsync/driftsync/pkg/plog"
	"github.com/driftsync/driftsync/pkg/store"
	"github.com/driftsync/driftsync/pkg/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch all enabled mappings and sync after each quiet period",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, cfg, err := loadEngine()
		if err != nil {
			return err
		}
		if cfg.Watch.LogFile != "" {
			plog.SetFileSink(cfg.Watch.LogFile)
		}

		mappings := cfg.EnabledMappings()
		if len(mappings) == 0 {
			return fmt.Errorf("no enabled mappings to watch")
		}

		// An initial run brings both trees up to date before watching.
		if results, err := runSync(cmd.Context(), e, cfg, nil, false); err != nil {
			return err
		} else if err := summarize(results); err != nil {
			plog.Warn("Initial sync had failures", "error", err)
		}

		subs, err := buildSubscriptions(cfg, mappings)
		if err != nil {
			return err
		}

		w := watcher.New(cfg.IdleWindow())
		w.OnBatch(func(batch []watcher.Event) {
			ids := mappingIDs(batch)
			plog.Notice("Change batch received", "events", len(batch), "mappings", len(ids))
			results, err := runSync(cmd.Context(), e, cfg, ids, false)
			if err != nil {
				plog.Error("Batch sync failed", "error", err)
				return
			}
			for _, res := range results {
				if res.Err != nil && res.Err != engine.ErrRunInProgress {
					plog.Error("Mapping sync failed", "mapping", res.MappingID, "error", res.Err)
				}
			}
		})

		if err := w.Start(subs); err != nil {
			return err
		}
		defer w.Stop()

		plog.Notice("Watching for changes", "mappings", len(mappings), "idleWindow", cfg.IdleWindow().String())
		<-cmd.Context().Done()
		plog.Notice("Shutting down")
		return nil
	},
}

func buildSubscriptions(cfg *config.Config, mappings []*config.Mapping) ([]watcher.Subscription, error) {
	var subs []watcher.Subscription
	for _, m := range mappings {
		policy, err := cfg.EffectivePolicy(m)
		if err != nil {
			return nil, err
		}
		filter := store.NewPathFilter(store.ListOptions{
			FileTypes:       policy.FileTypes,
			ExcludePatterns: policy.ExcludePatterns,
			FollowSymlinks:  policy.FollowSymlinks,
		})
		subs = append(subs,
			watcher.Subscription{MappingID: m.ID, Side: watcher.SideProject, Root: m.EffectiveProjectRoot(), Filter: filter},
			watcher.Subscription{MappingID: m.ID, Side: watcher.SideVault, Root: m.EffectiveVaultRoot(), Filter: filter},
		)
	}
	return subs, nil
}

func mappingIDs(batch []watcher.Event) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, event := range batch {
		if !seen[event.MappingID] {
			seen[event.MappingID] = true
			ids = append(ids, event.MappingID)
		}
	}
	return ids
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

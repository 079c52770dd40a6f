package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
)

func NewStatsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := newClient(cfg).Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return outputJSON(cmd, stats)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "records: %d (recent %d)\n", stats.Records, stats.Recent)
			fmt.Fprintf(out, "created since start: %d\n", stats.Created)

			names := make([]string, 0, len(stats.Names))
			for name := range stats.Names {
				names = append(names, name)
			}
			sort.Slice(names, func(i, j int) bool {
				if stats.Names[names[i]] != stats.Names[names[j]] {
					return stats.Names[names[i]] > stats.Names[names[j]]
				}
				return names[i] < names[j]
			})
			for _, name := range names {
				fmt.Fprintf(out, "  %-20s %d\n", name, stats.Names[name])
			}
			return nil
		},
	}
}

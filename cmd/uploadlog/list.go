package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
	"github.com/coffersTech/uploadlog/internal/feed"
	"github.com/coffersTech/uploadlog/internal/model"
)

func NewListCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent records",
		Long:    `List records newest first. Records older than seven days are hidden unless --all is given.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			asJSON, _ := cmd.Flags().GetBool("json")

			records, err := newClient(cfg).List(cmd.Context(), all)
			if err != nil {
				return fmt.Errorf("list records: %w", err)
			}
			if asJSON {
				return outputJSON(cmd, records)
			}
			return outputRecords(cmd, records)
		},
	}

	cmd.Flags().BoolP("all", "a", false, "Include records outside the retention window")
	return cmd
}

func outputRecords(cmd *cobra.Command, records []model.Record) error {
	f := feed.New()
	f.Load(records)
	return feed.Write(cmd.OutOrStdout(), f.Render(time.Local))
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
	"github.com/coffersTech/uploadlog/internal/model"
)

func NewAddCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Record an action",
		Long:  `Record a named action. The server assigns the id and, unless --timestamp is given, the timestamp.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, _ := cmd.Flags().GetString("meta")
			ts, _ := cmd.Flags().GetString("timestamp")
			asJSON, _ := cmd.Flags().GetBool("json")

			if meta != "" && !json.Valid([]byte(meta)) {
				return fmt.Errorf("--meta is not valid JSON")
			}

			rec, err := newClient(cfg).Create(cmd.Context(), model.NewRecord{
				Name:      args[0],
				Timestamp: ts,
				Meta:      json.RawMessage(meta),
			})
			if err != nil {
				return fmt.Errorf("add record: %w", err)
			}

			if asJSON {
				return outputJSON(cmd, rec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		},
	}

	cmd.Flags().String("meta", "", "JSON payload stored with the record")
	cmd.Flags().String("timestamp", "", "Display timestamp (ISO-8601)")
	return cmd
}

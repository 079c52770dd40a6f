package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
)

func NewGetCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one record",
		Long:  `Show one record as JSON, or save it as a file with --download.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			download, _ := cmd.Flags().GetBool("download")
			dir, _ := cmd.Flags().GetString("dir")
			c := newClient(cfg)

			if !download {
				rec, err := c.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("get record %d: %w", id, err)
				}
				return outputJSON(cmd, rec)
			}

			body, filename, err := c.Download(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("download record %d: %w", id, err)
			}
			path := filepath.Join(dir, filepath.Base(filename))
			if err := os.WriteFile(path, body, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().BoolP("download", "d", false, "Save the record to a file")
	cmd.Flags().String("dir", ".", "Directory for downloaded files")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
	"github.com/coffersTech/uploadlog/internal/feed"
)

func NewClearCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every listed record",
		Long:  `Delete every record the list currently shows. With --all, records outside the retention window go too.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !confirm(cmd, "Delete all listed records?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			r := feed.NewReconciler(newClient(cfg), feed.WithIncludeAll(all))
			n, err := r.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d records\n", n)
			return nil
		},
	}

	cmd.Flags().BoolP("all", "a", false, "Include records outside the retention window")
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
)

func NewRmCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"del"},
		Short:   "Delete a record",
		Long:    `Delete a record permanently. Asks for confirmation unless --yes is given.`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !confirm(cmd, fmt.Sprintf("Delete record %d?", id)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			if err := newClient(cfg).Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete record %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

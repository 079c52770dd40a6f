package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
	"github.com/coffersTech/uploadlog/internal/storage"
	"github.com/coffersTech/uploadlog/internal/store"
)

func NewSnapshotCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage record snapshots",
		Long:  `Take, list and inspect zstd-compressed archives of the record list.`,
	}

	cmd.PersistentFlags().StringVar(&cfg.SnapshotDir, "snapshot-dir", cfg.SnapshotDir, "Directory for snapshot archives")
	cmd.AddCommand(
		newSnapshotNowCmd(cfg),
		newSnapshotListCmd(cfg),
		newSnapshotInspectCmd(),
	)
	return cmd
}

func newSnapshotNowCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Archive the local record store now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			st, err := store.Open(cfg.Backend, cfg.StorePath())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			snap, err := storage.NewSnapshotter(st, cfg.SnapshotDir, cfg.SnapshotRetention)
			if err != nil {
				return err
			}
			defer snap.Stop()

			path, err := snap.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Backend, "backend", cfg.Backend, "Record store backend (file|sqlite)")
	f.StringVar(&cfg.DataFile, "data", cfg.DataFile, "JSON file for the file backend")
	f.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "Database path for the sqlite backend")
	f.DurationVar(&cfg.SnapshotRetention, "snapshot-retention", cfg.SnapshotRetention, "Age after which snapshots are purged")
	return cmd
}

func newSnapshotListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List snapshot archives, oldest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshots, err := storage.ListSnapshots(cfg.SnapshotDir)
			if err != nil {
				return err
			}
			for _, s := range snapshots {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", s.TakenAt.Local().Format(time.DateTime), s.Path)
			}
			return nil
		},
	}
}

func newSnapshotInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the records in a snapshot archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := storage.NewSnapshotReader()
			if err != nil {
				return err
			}
			defer r.Close()

			records, err := r.Read(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return outputJSON(cmd, records)
			}
			return outputRecords(cmd, records)
		},
	}
}

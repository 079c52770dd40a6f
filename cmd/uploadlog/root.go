package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/client"
	"github.com/coffersTech/uploadlog/internal/config"
)

func NewRootCmd(version string, cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "uploadlog",
		Short:         "Upload action log server and client",
		Long:          `Records named upload actions with timestamps and keeps a polling view of the recent ones.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Record API base URL for client commands")
	pf.DurationVar(&cfg.ClientTimeout, "timeout", cfg.ClientTimeout, "Per-request timeout for client commands")
	pf.Bool("json", false, "Output in JSON format")

	rootCmd.AddCommand(
		NewServeCmd(cfg),
		NewListCmd(cfg),
		NewGetCmd(cfg),
		NewAddCmd(cfg),
		NewRmCmd(cfg),
		NewClearCmd(cfg),
		NewWatchCmd(cfg),
		NewSnapshotCmd(cfg),
		NewStatsCmd(cfg),
	)
	return rootCmd
}

func newClient(cfg *config.Config) *client.Client {
	return client.New(cfg.ServerURL, cfg.ClientTimeout)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

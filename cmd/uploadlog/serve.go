package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
	"github.com/coffersTech/uploadlog/internal/server"
	"github.com/coffersTech/uploadlog/internal/storage"
	"github.com/coffersTech/uploadlog/internal/store"
)

func NewServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the record API server",
		Long:  `Serve the record API and the static web client until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP address to listen on")
	f.StringVar(&cfg.Backend, "backend", cfg.Backend, "Record store backend (file|sqlite)")
	f.StringVar(&cfg.DataFile, "data", cfg.DataFile, "JSON file for the file backend")
	f.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "Database path for the sqlite backend")
	f.StringVar(&cfg.WebDir, "web", cfg.WebDir, "Directory for static web files")
	f.StringVar(&cfg.SnapshotDir, "snapshot-dir", cfg.SnapshotDir, "Directory for snapshot archives")
	f.StringVar(&cfg.SnapshotSchedule, "snapshot-schedule", cfg.SnapshotSchedule, "Cron spec for snapshots, empty to disable")
	f.DurationVar(&cfg.SnapshotRetention, "snapshot-retention", cfg.SnapshotRetention, "Age after which snapshots are purged")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := store.Open(cfg.Backend, cfg.StorePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	log.Printf("Record store ready. Backend: %s, Path: %s", cfg.Backend, cfg.StorePath())

	var snap *storage.Snapshotter
	if cfg.SnapshotSchedule != "" {
		snap, err = storage.NewSnapshotter(st, cfg.SnapshotDir, cfg.SnapshotRetention)
		if err != nil {
			return err
		}
		defer snap.Stop()
		if err := snap.Start(cfg.SnapshotSchedule); err != nil {
			return err
		}
	}

	srv := server.NewRecordServer(st, cfg.WebDir)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", cfg.Addr)
		errCh <- srv.Start(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Printf("Received shutdown signal. Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Printf("uploadlog exited gracefully. %d records accepted.", srv.Created())
	return nil
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffersTech/uploadlog/internal/config"
	"github.com/coffersTech/uploadlog/internal/feed"
)

const watchHelp = `Commands: "+ NAME" records an action, "- ID" deletes a record, "all" toggles old records, "clear" deletes everything listed.`

func NewWatchCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow recent records",
		Long:  `Show the recent records and keep them current by polling. ` + watchHelp,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return runWatch(cmd.Context(), cfg, all, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolP("all", "a", false, "Include records outside the retention window")
	cmd.Flags().DurationVar(&cfg.PollInterval, "interval", cfg.PollInterval, "Poll interval")
	return cmd
}

func runWatch(ctx context.Context, cfg *config.Config, all bool, in io.Reader, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var outMu sync.Mutex
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	r := feed.NewReconciler(newClient(cfg),
		feed.WithIncludeAll(all),
		feed.WithOnChange(func(lines []feed.Line) {
			outMu.Lock()
			defer outMu.Unlock()
			fmt.Fprintf(out, "--- %s ---\n", time.Now().Format("15:04:05"))
			feed.Write(out, lines)
		}),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if err := applyWatchCommand(ctx, r, scanner.Text()); err != nil {
				printf("error: %v\n", err)
			}
		}
	}()

	return r.Run(ctx, cfg.PollInterval)
}

// applyWatchCommand runs one interactive line against the reconciler.
func applyWatchCommand(ctx context.Context, r *feed.Reconciler, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case strings.HasPrefix(line, "+"):
		_, err := r.Add(ctx, strings.TrimSpace(line[1:]), nil)
		return err
	case strings.HasPrefix(line, "-"):
		id, err := parseID(strings.TrimSpace(line[1:]))
		if err != nil {
			return err
		}
		return r.Delete(ctx, id)
	case line == "all":
		return r.SetIncludeAll(ctx, !r.IncludeAll())
	case line == "clear":
		_, err := r.Clear(ctx)
		return err
	}
	return errors.New(watchHelp)
}

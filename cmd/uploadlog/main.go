package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coffersTech/uploadlog/internal/config"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = NewRootCmd(version, cfg).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "uploadlog: %v\n", err)
		os.Exit(1)
	}
}

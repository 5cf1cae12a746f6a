package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftsync/driftsync/cmd"
	"github.com/driftsync/driftsync/pkg/plog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		plog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

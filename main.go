// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vexlio/drover/cmd"
	"github.com/vexlio/drover/internal/observability"
)

// main is the entry point for the Drover application.
func main() {
	// Commands receive a context that is cancelled on SIGINT/SIGTERM so the
	// bridge and the API shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	cmd.Execute(ctx)
}

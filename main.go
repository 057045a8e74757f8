// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/clearance-cli/cmd"
	"github.com/xkilldash9x/clearance-cli/internal/observability"
)

// main is the entry point for the clearance CLI application.
func main() {
	// Interrupt signals cancel the context so in-flight solves unwind
	// cleanly and browser processes are torn down.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		os.Exit(1)
	}
}

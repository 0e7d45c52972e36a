// Command projector runs actuarial projection and valuation batches.
//
// Usage:
//
//	projector run --config projector.yaml
//	projector validate --config projector.yaml
//	projector history --run-log runs.db --limit 10
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

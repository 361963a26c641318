// Command neutronct configures and runs neutron CT preprocessing sessions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	os.Exit(runMain())
}

// runMain executes the command tree with a context that is cancelled on
// SIGINT or SIGTERM, so a running reconstruction is stopped and recorded
func runMain() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

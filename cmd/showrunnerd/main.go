// showrunnerd runs the daemon directly, without going through the CLI's
// hidden daemon subcommand. Useful under a process supervisor.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"showrunner/internal/config"
	"showrunner/internal/daemonrun"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(ctx, cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("run daemon: %v", err)
	}
}

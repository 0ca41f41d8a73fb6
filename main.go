package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/cmd/migrate"
	"github.com/memoric/memoric/internal/cmd/runpolicies"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "memoric",
		Usage: "Policy-governed memory store for AI agents",
		Commands: []*cli.Command{
			migrate.Command(),
			runpolicies.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"driftrace/internal/app"
	"driftrace/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
	configPath := fs.String("config", "", "path to a JSON, YAML or TOML config file")
	fs.String("addr", ":8080", "listen address (overrides server.addr)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx, cfg)
}

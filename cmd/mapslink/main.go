package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/JakeFAU/mapslink/internal/config"
	"github.com/JakeFAU/mapslink/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(context.Background(), *cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "mapslink: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("build app failed: %w", err)
	}
	return app.Run(ctx)
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/docrag/internal/cli"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/pipeline"
)

func main() {
	level := slog.LevelWarn
	if os.Getenv("DOCRAG_DEBUG") != "" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	build := func(ctx context.Context, configPath string) (*pipeline.Components, error) {
		if configPath != "" {
			os.Setenv("DOCRAG_CONFIG", configPath)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return pipeline.Build(ctx, cfg, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(build)
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

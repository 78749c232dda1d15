package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docrag/internal/api"
	"github.com/dgallion1/docrag/internal/config"
	"github.com/dgallion1/docrag/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients and stores.
	comps, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		log.Error("build components", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	orch, err := pipeline.NewOrchestrator(comps.Ingester, log, cfg.WorkerCount, cfg.MaxQueueSize, cfg.JobTTL)
	if err != nil {
		log.Error("build orchestrator", "error", err)
		os.Exit(1)
	}
	orch.Start(ctx)

	sessions := pipeline.NewSessionStore(cfg.SessionTTL)
	go sessions.Run(ctx, 5*time.Minute)

	// Initialize HTTP server.
	srv := api.NewServer(orch, comps, sessions, log, cfg)

	// Chat responses stream for as long as generation may take.
	writeTimeout := 120 * time.Second
	if cfg.GenerationTimeout > 0 && cfg.GenerationTimeout+30*time.Second > writeTimeout {
		writeTimeout = cfg.GenerationTimeout + 30*time.Second
	}
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		cancel()
		if err := comps.Close(); err != nil {
			log.Error("close components", "error", err)
		}
	}()

	log.Info("starting docrag", "port", cfg.Port, "store", cfg.VectorStore)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/d-o-hub/memcore/internal/config"
	"github.com/d-o-hub/memcore/internal/logging"
	"github.com/d-o-hub/memcore/internal/orchestrator"
)

// startEmbeddedNATS starts an in-process NATS broker for the audit
// recorder to publish to when no external cluster is configured. It
// blocks until the broker accepts connections or the 5s deadline
// passes, mirroring the teacher's embedded-broker startup sequence.
func startEmbeddedNATS(port int, log logging.Logger) (*natsserver.Server, error) {
	srv, err := natsserver.NewServer(&natsserver.Options{
		Port:     port,
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded NATS server did not become ready in time")
	}
	log.Infow("embedded NATS broker started", "port", port)
	return srv, nil
}

func main() {
	configPath := flag.String("config", "configs/memoryd.yaml", "Path to configuration file")
	port := flag.Int("port", 0, "Override server port (0 = use config)")
	env := flag.String("env", "development", "Logging environment: development or production")
	flag.Parse()

	log, err := logging.New(*env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[MAIN] failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Infow("starting memoryd", "version", "dev")

	var cfg *config.Config
	if _, statErr := os.Stat(*configPath); statErr == nil {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Warnw("failed to load config, using defaults", "path", *configPath, "error", err)
			cfg = config.DefaultConfig()
		} else {
			log.Infow("loaded configuration", "path", *configPath)
		}
	} else {
		log.Infow("config file not found, using defaults", "path", *configPath)
		cfg = config.DefaultConfig()
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	log.Infow("configuration resolved",
		"server_port", cfg.Server.Port,
		"durable_path", cfg.Durable.Path,
		"capacity_max_episodes", cfg.Capacity.MaxEpisodes,
		"sandbox_interpreter", cfg.Sandbox.Interpreter,
	)

	var natsSrv *natsserver.Server
	if cfg.Audit.NATSEnabled && cfg.Audit.NATSURL == "" && cfg.Server.EmbeddedNATSPort > 0 {
		natsSrv, err = startEmbeddedNATS(cfg.Server.EmbeddedNATSPort, log)
		if err != nil {
			log.Errorw("failed to start embedded NATS broker", "error", err)
			os.Exit(1)
		}
		defer natsSrv.Shutdown()
		cfg.Audit.NATSURL = fmt.Sprintf("nats://localhost:%d", cfg.Server.EmbeddedNATSPort)
	}

	orch, err := orchestrator.New(cfg, log)
	if err != nil {
		log.Errorw("failed to build orchestrator", "error", err)
		os.Exit(1)
	}
	defer orch.Close()

	mux := newMux(orch, log)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Infow("http server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("http server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Infow("memoryd ready",
		"health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
		"episodes", fmt.Sprintf("http://localhost:%d/v1/episodes", cfg.Server.Port),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infow("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warnw("http server shutdown error", "error", err)
	}

	log.Infow("memoryd shutdown complete")
}

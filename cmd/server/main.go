package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sonitel/callbridge/internal/api"
	"github.com/sonitel/callbridge/internal/callcontrol"
	"github.com/sonitel/callbridge/internal/config"
	"github.com/sonitel/callbridge/internal/mediastream"
	"github.com/sonitel/callbridge/internal/metrics"
	"github.com/sonitel/callbridge/internal/recognition"
	"github.com/sonitel/callbridge/internal/recording"
	"github.com/sonitel/callbridge/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting call bridge server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Create metrics registry
	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	// Create recognition components
	recCfg := cfg.Recognition.Client()
	dialer := recognition.NewWSDialer(recCfg, log)
	sessions := recognition.NewRegistry(dialer, recCfg, log, m)

	// Create call control responder
	updater := callcontrol.NewTwilioUpdater(cfg.CallControl.AccountSID, cfg.CallControl.AuthToken)
	responder := callcontrol.NewResponder(cfg.CallControl, updater, log, m)

	// Create media-stream server
	mediaServer := mediastream.NewServer(sessions, responder, log, m)

	// Create recording fallback service if enabled
	var recordings api.RecordingProcessor
	if cfg.Recording.Enabled {
		transcriber, err := recording.NewGeminiTranscriber(
			context.Background(),
			cfg.Recording.APIKey,
			cfg.Recording.Model,
			cfg.Recording.Prompt,
			log,
		)
		if err != nil {
			log.Error("Failed to create recording transcriber", logger.Error(err))
			os.Exit(1)
		}
		recordings = recording.NewService(cfg.Recording, transcriber, responder, log, m)
		log.Info("Recording fallback enabled", logger.String("model", cfg.Recording.Model))
	} else {
		log.Info("Recording fallback disabled in configuration")
	}

	// Create API router
	router := api.NewRouter(mediaServer, responder, recordings, sessions, promRegistry, log)

	// --- Setup for multiple HTTP servers ---
	var servers []*http.Server
	allPorts := []int{cfg.Server.Port}
	if len(cfg.Server.AdditionalPorts) > 0 {
		allPorts = append(allPorts, cfg.Server.AdditionalPorts...)
	}

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	// Start a server for each configured port
	for _, port := range allPorts {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		server := &http.Server{
			Addr:         addr,
			Handler:      router.Routes(), // All servers use the same main router
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Close recognition sessions so no audio stays in flight while the
	// HTTP servers drain
	log.Info("Closing recognition sessions...")
	sessions.CloseAll()
	log.Info("Recognition sessions closed.")

	// Let in-flight call updates finish
	log.Info("Waiting for pending call updates...")
	responder.Wait()
	log.Info("Call updates drained.")

	// Shutdown all HTTP servers
	log.Info("Shutting down HTTP servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			log.Info("Attempting to shutdown HTTP server", logger.String("addr", srv.Addr))
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait() // Wait for all server shutdowns to complete

	log.Info("All HTTP servers shutdown.")

	log.Info("Server fully stopped")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/su-jin-shin/speechflow/internal/config"
	"github.com/su-jin-shin/speechflow/internal/metrics"
	"github.com/su-jin-shin/speechflow/internal/pipeline"
	"github.com/su-jin-shin/speechflow/internal/server"
	"github.com/su-jin-shin/speechflow/internal/session"
	"github.com/su-jin-shin/speechflow/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "speechflow"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (empty for defaults and environment only)")
	envFiles := flag.String("env", "", "Comma-separated .env files to load before reading configuration")
	flag.Parse()

	var envPaths []string
	if *envFiles != "" {
		envPaths = strings.Split(*envFiles, ",")
	}
	if err := config.LoadEnvFiles(envPaths...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("min_duration", cfg.Audio.MinDuration),
		slog.String("provider", cfg.Transcription.Provider),
		slog.String("language", cfg.Transcription.Language),
		slog.Duration("transcription_timeout", cfg.Transcription.GetTimeoutDuration()),
		slog.Bool("websocket_enabled", cfg.WebSocket.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	transcriber, err := transcription.NewProvider(transcription.Config{
		Provider: cfg.Transcription.Provider,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
		Google: transcription.GoogleConfig{
			APIKey:   cfg.Transcription.Google.APIKey,
			Endpoint: cfg.Transcription.Google.Endpoint,
			Model:    cfg.Transcription.Google.Model,
		},
		OpenAI: transcription.OpenAIConfig{
			APIKey:  cfg.Transcription.OpenAI.APIKey,
			Model:   cfg.Transcription.OpenAI.Model,
			BaseURL: cfg.Transcription.OpenAI.BaseURL,
		},
		HTTP: transcription.HTTPConfig{
			Endpoint:      cfg.Transcription.HTTP.Endpoint,
			APIKey:        cfg.Transcription.HTTP.APIKey,
			MaxConcurrent: cfg.Transcription.HTTP.MaxConcurrent,
		},
	}, logger)
	if err != nil {
		logger.Error("Failed to create transcription provider", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription provider initialized", slog.String("provider", transcriber.Name()))

	p, err := pipeline.New(pipeline.Config{
		SampleRate:  cfg.Audio.SampleRate,
		MinDuration: cfg.Audio.MinDuration,
		Language:    cfg.Transcription.Language,
		Timeout:     cfg.Transcription.GetTimeoutDuration(),
	}, transcriber)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appMetrics := metrics.NewMetrics()

	var sessions *session.Manager
	if cfg.WebSocket.Enabled {
		sessions, err = session.NewManager(logger, session.ManagerConfig{
			IdleTimeout:       cfg.WebSocket.GetIdleTimeout(),
			MaxUtteranceBytes: cfg.WebSocket.MaxUtteranceBytes,
		})
		if err != nil {
			logger.Error("Failed to create session manager", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Session manager initialized",
			slog.Duration("idle_timeout", cfg.WebSocket.GetIdleTimeout()),
			slog.Int("max_utterance_bytes", cfg.WebSocket.MaxUtteranceBytes),
		)
	}

	httpServer := server.NewHTTPServer(cfg, logger, p, sessions, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Service started successfully, waiting for signals...")

	<-ctx.Done()
	logger.Info("Received shutdown signal, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if err := transcriber.Close(); err != nil {
		logger.Error("Error closing transcription provider", slog.String("error", err.Error()))
	}

	if reporter, ok := transcriber.(transcription.StatsReporter); ok {
		stats := reporter.GetStats()
		logger.Info("Final transcription statistics",
			slog.Uint64("total_requests", stats.TotalRequests),
			slog.Uint64("success_requests", stats.SuccessRequests),
			slog.Uint64("failed_requests", stats.FailedRequests),
		)
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

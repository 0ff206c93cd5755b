// Command matreshka is the arbitrage engine entry point. It loads
// configuration, validates it, wires dependencies, sets up signal
// handling, and starts the engine in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/app"
	"github.com/DecentralizedMoney/matreshka/internal/config"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// Exit codes: 0 normal shutdown, 1 configuration error, 2 unrecoverable
// startup or runtime failure, 3 emergency stop completed.
const (
	exitConfigError    = 1
	exitRuntimeFailure = 2
	exitEmergencyStop  = 3
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (monitor or execute)")
	healthCheck := flag.Bool("health-check", false, "probe a running instance and exit")
	noDashboard := flag.Bool("no-dashboard", false, "disable the HTTP dashboard server")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(exitConfigError)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *noDashboard {
		cfg.Server.Enabled = false
	}

	if *healthCheck {
		os.Exit(runHealthCheck(cfg))
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(exitConfigError)
	}

	logger.Info("matreshka starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		switch {
		case errors.Is(err, context.Canceled):
			logger.Info("engine shut down gracefully")
		case errors.Is(err, domain.ErrEmergencyStopped):
			logger.Error("engine halted by emergency stop")
			application.Close()
			os.Exit(exitEmergencyStop)
		default:
			logger.Error("engine exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(exitRuntimeFailure)
		}
	}

	logger.Info("matreshka stopped")
}

// runHealthCheck probes the dashboard of a running instance and prints a
// one-line verdict.
func runHealthCheck(cfg *config.Config) int {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s:%d/api/health", host, cfg.Server.Port)

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("unhealthy: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("unhealthy: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Println("healthy")
	return 0
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"pullhook/internal/app"
	"pullhook/internal/journal"
	"pullhook/internal/security"
	"pullhook/internal/server"
	"pullhook/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logFile    string
	dbPath     string
	host       string
	port       int
	testMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server to receive GitHub webhook requests.

The server listens for push events and runs the pull-then-restart deploy
sequence for the matching app.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("PULLHOOK_CONFIG_FILE", ""), "Path to apps.yaml configuration file")
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("PULLHOOK_LOG_FILE", "./pullhook.log"), "Path to log file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("PULLHOOK_DB_PATH", "./pullhook.db"), "Path to SQLite journal database")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("PULLHOOK_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("PULLHOOK_PORT", 9000), "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("PULLHOOK_SKIP_VALIDATION") == "1", "Enable test mode (no journal, no rate limiting)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		searchPaths := fileutil.DefaultConfigPaths("apps.yaml")
		configFile = fileutil.SearchPathsOptional(searchPaths)
		if configFile == "" {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found in default locations:\n")
			for _, path := range searchPaths {
				fmt.Fprintf(os.Stderr, "  - %s\n", path)
			}
			fmt.Fprintf(os.Stderr, "Use --config flag to specify a custom location\n")
			return fmt.Errorf("configuration file not found")
		}
	}

	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting pullhook")

	// The config file holds webhook secrets
	if err := security.ValidateSecurePermissions(configFile); err != nil {
		logger.Warn("Config file permissions are too open", "error", err)
	}

	logger.Info("Loading configuration", "config", configFile)
	_, apps, err := app.LoadConfig(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("Configuration validated successfully", "count", len(apps))

	if len(apps) == 0 {
		logger.Warn("No apps configured in config file", "config", configFile)
		logger.Warn("The server will start but won't handle any deploys until apps are added")
	}

	registry := app.NewRegistry(apps)

	var jnl *journal.Journal
	if !testMode {
		logger.Info("Opening journal database", "db", dbPath)
		jnl, err = journal.New(dbPath)
		if err != nil {
			logger.Error("Failed to open journal database", "error", err)
			return fmt.Errorf("failed to open journal database: %w", err)
		}
		defer jnl.Close()

		if err := security.FixFilePermissions(dbPath, security.PermDBFile); err != nil {
			logger.Warn("Failed to tighten journal permissions", "error", err)
		}
	}

	srv := server.NewServer(registry, jnl, logger, testMode)

	logger.Info("Starting HTTP server", "host", host, "port", port)
	if err := srv.Start(host, port); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// setupLogging configures slog for file logging.
// Returns both the logger and the file handle (caller must close the file).
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Append-only log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)

	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

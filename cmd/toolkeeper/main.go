// Package main is the toolkeeper CLI entry point.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/ai"
	"github.com/hyperjump/toolkeeper/internal/auth"
	"github.com/hyperjump/toolkeeper/internal/config"
	"github.com/hyperjump/toolkeeper/internal/importer"
	"github.com/hyperjump/toolkeeper/internal/inventory"
	"github.com/hyperjump/toolkeeper/internal/migrate"
	"github.com/hyperjump/toolkeeper/internal/normalize"
	"github.com/hyperjump/toolkeeper/internal/search"
	"github.com/hyperjump/toolkeeper/internal/server"
	"github.com/hyperjump/toolkeeper/internal/storage"
	"github.com/hyperjump/toolkeeper/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/toolkeeper/config.yaml"
	envFile           = ".env"
)

// loadConfig loads .env from the working directory, then config from path. When
// path is the default and ./config.yaml exists, that file is used instead so the
// binary picks up the project config during development. A missing default file
// is not an error: defaults and environment variables are enough to run.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, "", err
	}
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg, err := config.Load("")
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "login":
		runLogin()
	case "search":
		runSearch()
	case "list":
		runList()
	case "import":
		runImport()
	case "migrate":
		runMigrate()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("toolkeeper version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("storage_driver", cfg.Storage.Driver),
	)
	if cfg.Auth.Secret == "" {
		secret, err := randomSecret()
		if err != nil {
			logger.Fatal("Failed to generate token secret", zap.Error(err))
		}
		cfg.Auth.Secret = secret
		logger.Warn("auth.secret is not set; using a random secret, tokens will not survive a restart")
	}

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(
		components.Inventory,
		components.Engine,
		components.Auth,
		components.Storage,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	sheet := fs.String("sheet", "", "sheet name (default: first sheet)")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: toolkeeper import [flags] <file.xlsx>")
		os.Exit(1)
	}

	cfg, logger, components := offlineComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	file, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", fs.Arg(0), err)
		os.Exit(1)
	}
	defer file.Close()

	report, err := importer.New(components.Inventory, logger).Import(context.Background(), file, *sheet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d tools from sheet %q into %s\n", len(report.Imported), report.Sheet, cfg.Storage.DatabasePath)
	for _, failure := range report.Failed {
		fmt.Printf("  skipped %v\n", failure)
	}
}

func runMigrate() {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dryRun := fs.Bool("dry-run", false, "report the tools that would change without writing")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := offlineComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	m := migrate.New(components.Storage, components.Normalizer, logger, cfg.Inventory.DefaultStatus)
	report, err := m.Run(context.Background(), *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	verb := "Migrated"
	if *dryRun {
		verb = "Would migrate"
	}
	fmt.Printf("%s %d of %d tools\n", verb, len(report.Updated), report.Scanned)
	for _, id := range report.Failed {
		fmt.Printf("  unreadable: %s\n", id)
	}
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeStarterConfig(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}

// writeStarterConfig writes the default config with a fresh token secret.
func writeStarterConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	secret, err := randomSecret()
	if err != nil {
		return err
	}
	cfg.Auth.Secret = secret
	return config.Save(path, &cfg)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// offlineComponents loads config and opens the store for commands that work on
// the database directly. It exits on failure.
func offlineComponents(configPath string) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return cfg, logger, components
}

// Components holds the wired services.
type Components struct {
	Storage    storage.Storage
	Normalizer *normalize.Normalizer
	Inventory  *inventory.Service
	Engine     *search.Engine
	Auth       *auth.Service
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		return storage.NewMemoryStorage(), nil
	}
	return storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var assistant *ai.Assistant
	if cfg.AI.Enabled() {
		gen, err := ai.NewGenerator(ctx, cfg.AI)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize AI provider: %w", err)
		}
		assistant = ai.NewAssistant(gen, logger, cfg.AI.Timeout)
		logger.Info("AI enabled", zap.String("provider", cfg.AI.Provider), zap.String("model", cfg.AI.Model))
	} else {
		logger.Info("AI disabled: no api key configured")
	}

	normalizer := normalize.New(store,
		normalize.WithLogger(logger),
		normalize.WithDefaultStatus(cfg.Inventory.DefaultStatus),
	)
	inv := inventory.NewService(store, normalizer, assistant, logger,
		cfg.Inventory.DefaultLimit, cfg.Inventory.MaxLimit)

	return &Components{
		Storage:    store,
		Normalizer: normalizer,
		Inventory:  inv,
		Engine:     search.NewEngine(store, assistant, logger, cfg.Inventory.MaxLimit),
		Auth:       auth.NewService(store, cfg.Auth.Secret, cfg.Auth.TokenTTL, logger),
	}, nil
}

func printUsage() {
	fmt.Println(`toolkeeper - tool inventory server with natural-language search

Usage:
  toolkeeper server [flags]               Start the HTTP server
  toolkeeper login [flags]                Get a bearer token from a running server
  toolkeeper search [flags] <query>       Ask a running server about the inventory
  toolkeeper list [flags]                 List tools on a running server
  toolkeeper import [flags] <file.xlsx>   Import tools from a spreadsheet
  toolkeeper migrate [flags]              Rewrite legacy tool records
  toolkeeper init [flags]                 Write a starter config file
  toolkeeper version                      Show version
  toolkeeper help                         Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/toolkeeper/config.yaml)
  --debug            Enable debug logging

Client Flags (login, search, list):
  --server string    Server URL (default: http://localhost:8080)
  --token string     Bearer token (default: $TOOLKEEPER_TOKEN)
  --output string    Output format: text, compact, or json (default: text)

Import Flags:
  --config string    Config file path
  --sheet string     Sheet name (default: first sheet)

Migrate Flags:
  --config string    Config file path
  --dry-run          Only report what would change

Environment:
  TOOLKEEPER_AI_API_KEY, TOOLKEEPER_AUTH_SECRET and every other setting can be
  given as TOOLKEEPER_<SECTION>_<KEY>; a .env file in the working directory is
  loaded first.

Examples:
  toolkeeper init --config ./config.yaml
  toolkeeper server
  export TOOLKEEPER_TOKEN=$(toolkeeper login --username alice --password secret123)
  toolkeeper search "what voltage is the cordless drill?"
  toolkeeper list --category "Power Tools" --output compact
  toolkeeper import inventory.xlsx
  toolkeeper migrate --dry-run`)
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neuroclinic/supportbot/internal/api"
	"github.com/neuroclinic/supportbot/internal/events"
	"github.com/neuroclinic/supportbot/internal/genai"
	"github.com/neuroclinic/supportbot/internal/handoff"
	"github.com/neuroclinic/supportbot/internal/helpdesk"
	"github.com/neuroclinic/supportbot/internal/messaging"
	"github.com/neuroclinic/supportbot/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for support bot state data
	DefaultStateDir = "/var/lib/supportbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "supportbot.db"
	// ShutdownTimeout bounds graceful HTTP server shutdown
	ShutdownTimeout = 10 * time.Second
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	ai, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Error("Failed to initialize AI client", "error", err)
		os.Exit(1)
	}

	gateway, err := messaging.NewTwilioService()
	if err != nil {
		slog.Error("Failed to initialize messaging gateway", "error", err)
		os.Exit(1)
	}

	desk, err := helpdesk.NewClient()
	if err != nil {
		slog.Error("Failed to initialize helpdesk client", "error", err)
		os.Exit(1)
	}

	var publisher handoff.TransitionPublisher
	if *flags.amqpURL != "" {
		pub, err := events.NewPublisher(events.WithURL(*flags.amqpURL))
		if err != nil {
			slog.Error("Failed to initialize event publisher", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		publisher = pub
	} else {
		slog.Info("No AMQP URL configured, transition events disabled")
	}

	engine := handoff.NewEngine(st, ai, gateway, desk, publisher)
	server := api.NewServer(engine, api.WithAddr(*flags.apiAddr))

	slog.Info("Bootstrapping support bot with configured modules")
	if err := run(server); err != nil {
		slog.Error("Support bot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Support bot exited successfully")
}

// run starts the webhook server and blocks until a termination signal or a
// server error, then shuts down gracefully.
func run(server *api.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("Termination signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	RedisAddr   string
	RedisPass   string
	AMQPURL     string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
	redisAddr *string
	amqpURL   *string
	redisPass string
}

// initializeLogger sets up structured logging. LOG_LEVEL=debug enables
// debug output; anything else logs at info.
func initializeLogger() {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("SUPPORTBOT_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),
		AMQPURL:     os.Getenv("AMQP_URL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SUPPORTBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SUPPORTBOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"REDIS_ADDR", config.RedisAddr,
		"REDIS_PASSWORD_SET", config.RedisPass != "",
		"AMQP_URL_SET", config.AMQPURL != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for support bot data (overrides $SUPPORTBOT_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the handoff store (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		redisAddr: flag.String("redis-addr", config.RedisAddr, "Redis address for handoff flag caching (overrides $REDIS_ADDR)"),
		amqpURL:   flag.String("amqp-url", config.AMQPURL, "AMQP broker URL for transition events (overrides $AMQP_URL)"),
		redisPass: config.RedisPass,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"redisAddr", *flags.redisAddr,
		"amqpURL_set", *flags.amqpURL != "")

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	return os.MkdirAll(stateDir, 0755)
}

// buildStore constructs the persistence backend from the resolved DSN and
// wraps it with the Redis cache when one is configured.
func buildStore(flags Flags) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		st, err = store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
		st, err = store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
	}
	if err != nil {
		return nil, err
	}

	if *flags.redisAddr != "" {
		slog.Info("Redis configured, caching handoff flags", "addr", *flags.redisAddr)
		st = store.NewCachedStore(st, *flags.redisAddr, flags.redisPass)
	}
	return st, nil
}

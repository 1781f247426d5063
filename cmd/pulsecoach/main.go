package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pulsecoach/internal/api"
	"pulsecoach/internal/bot"
	"pulsecoach/internal/genai"
	"pulsecoach/internal/lockfile"
	"pulsecoach/internal/scheduler"
	"pulsecoach/internal/store"
	"pulsecoach/internal/syncer"
	"pulsecoach/internal/whoop"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PulseCoach state data
	DefaultStateDir = "/var/lib/pulsecoach"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "pulsecoach.db"
)

func main() {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	loc, err := time.LoadLocation(*flags.syncTZ)
	if err != nil {
		slog.Error("Invalid sync time zone", "error", err, "tz", *flags.syncTZ)
		os.Exit(1)
	}

	// Guard the state directory when running on a local SQLite file
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		lock, err := lockfile.AcquireLock(filepath.Dir(*flags.dbDSN))
		if err != nil {
			slog.Error("Failed to acquire state directory lock", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	whoopClient, err := whoop.NewClient(st, buildWhoopOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize WHOOP client", "error", err)
		os.Exit(1)
	}

	coach, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize GenAI client", "error", err)
		os.Exit(1)
	}

	tgBot, err := bot.NewBot(st, whoopClient, coach,
		bot.WithToken(*flags.telegramToken),
		bot.WithLocation(loc))
	if err != nil {
		slog.Error("Failed to initialize Telegram bot", "error", err)
		os.Exit(1)
	}

	sync := syncer.NewSynchronizer(st, whoopClient, syncer.WithLocation(loc))

	srv := api.NewServer(whoopClient, tgBot, sync, tgBot, buildAPIOptions(flags)...)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := registerSweeps(sched, flags, sync, tgBot); err != nil {
		slog.Error("Failed to register scheduled sweeps", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping PulseCoach",
		"api_addr", *flags.apiAddr, "sync_tz", *flags.syncTZ,
		"dsn_set", *flags.dbDSN != "")

	go tgBot.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("PulseCoach failed to run", "error", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), api.DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
		tgBot.Stop()
	}
	slog.Info("PulseCoach exited successfully")
}

// Config holds environment configuration
type Config struct {
	TelegramToken     string
	WhoopClientID     string
	WhoopClientSecret string
	PublicURL         string
	DatabaseURL       string
	StateDir          string
	OpenAIKey         string
	OpenAIModel       string
	APIAddr           string
	SyncTZ            string
	SyncCron          string
	CheckInCron       string
	Debug             bool
}

// Flags holds command line flag values
type Flags struct {
	telegramToken *string
	whoopClientID *string
	whoopSecret   *string
	publicURL     *string
	stateDir      *string
	dbDSN         *string
	openaiKey     *string
	openaiModel   *string
	apiAddr       *string
	syncTZ        *string
	syncCron      *string
	checkInCron   *string
}

var debugLogging bool

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if debugLogging {
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
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		WhoopClientID:     os.Getenv("WHOOP_CLIENT_ID"),
		WhoopClientSecret: os.Getenv("WHOOP_CLIENT_SECRET"),
		PublicURL:         os.Getenv("PUBLIC_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StateDir:          os.Getenv("PULSECOACH_STATE_DIR"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		APIAddr:           os.Getenv("API_ADDR"),
		SyncTZ:            os.Getenv("SYNC_TZ"),
		SyncCron:          os.Getenv("SYNC_SCHEDULE"),
		CheckInCron:       os.Getenv("CHECKIN_SCHEDULE"),
		Debug:             parseBoolEnv("DEBUG", false),
	}
	debugLogging = config.Debug

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.SyncTZ == "" {
		config.SyncTZ = "UTC"
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
	}

	return config
}

// parseBoolEnv reads a boolean environment variable. Accepts true/1/yes/on
// and false/0/no/off, case-insensitive; empty or unrecognized values fall
// back to the default.
func parseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("parseBoolEnv: invalid boolean value, using default", "key", key, "value", val, "default", defaultValue)
	return defaultValue
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		telegramToken: flag.String("telegram-token", config.TelegramToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		whoopClientID: flag.String("whoop-client-id", config.WhoopClientID, "WHOOP OAuth client ID (overrides $WHOOP_CLIENT_ID)"),
		whoopSecret:   flag.String("whoop-client-secret", config.WhoopClientSecret, "WHOOP OAuth client secret (overrides $WHOOP_CLIENT_SECRET)"),
		publicURL:     flag.String("public-url", config.PublicURL, "public base URL for the OAuth redirect (overrides $PUBLIC_URL)"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for PulseCoach data (overrides $PULSECOACH_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN, PostgreSQL URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:   flag.String("openai-model", config.OpenAIModel, "OpenAI chat model (overrides $OPENAI_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		syncTZ:        flag.String("sync-tz", config.SyncTZ, "time zone for day boundaries (overrides $SYNC_TZ)"),
		syncCron:      flag.String("sync-cron", config.SyncCron, "cron schedule for the metrics sweep (overrides $SYNC_SCHEDULE)"),
		checkInCron:   flag.String("checkin-cron", config.CheckInCron, "cron schedule for the check-in sweep (overrides $CHECKIN_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"telegramTokenSet", *flags.telegramToken != "",
		"whoopClientIDSet", *flags.whoopClientID != "",
		"publicURL", *flags.publicURL,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"syncTZ", *flags.syncTZ)

	return flags
}

// buildStore opens the backend matching the DSN shape
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildWhoopOptions constructs WHOOP client configuration options
func buildWhoopOptions(flags Flags) []whoop.Option {
	opts := []whoop.Option{
		whoop.WithClientCredentials(*flags.whoopClientID, *flags.whoopSecret),
	}
	if *flags.publicURL != "" {
		opts = append(opts, whoop.WithRedirectURI(*flags.publicURL+"/whoop/callback"))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}

// registerSweeps wires the optional cron-driven sweeps. With no schedules
// configured, the HTTP endpoints remain the only triggers.
func registerSweeps(sched *scheduler.Scheduler, flags Flags, sync *syncer.Synchronizer, tgBot *bot.Bot) error {
	if expr := *flags.syncCron; expr != "" {
		if err := sched.AddJob(expr, func() {
			if _, err := sync.SyncAll(context.Background(), sync.Today()); err != nil {
				slog.Error("Scheduled metrics sweep failed", "error", err)
			}
		}); err != nil {
			return err
		}
		slog.Info("Metrics sweep scheduled", "cron", expr)
	}
	if expr := *flags.checkInCron; expr != "" {
		if err := sched.AddJob(expr, func() {
			if err := tgBot.CheckInAll(context.Background()); err != nil {
				slog.Error("Scheduled check-in sweep failed", "error", err)
			}
		}); err != nil {
			return err
		}
		slog.Info("Check-in sweep scheduled", "cron", expr)
	}
	return nil
}

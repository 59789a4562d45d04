package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/crypto"
	"github.com/pulseiq/pulse-engine/pkg/database"
	"github.com/pulseiq/pulse-engine/pkg/repositories"
	"github.com/pulseiq/pulse-engine/pkg/services"

	// Provider adapters register themselves on import.
	_ "github.com/pulseiq/pulse-engine/pkg/providers/ganalytics"
	_ "github.com/pulseiq/pulse-engine/pkg/providers/quickbooks"
	_ "github.com/pulseiq/pulse-engine/pkg/providers/shopify"
	_ "github.com/pulseiq/pulse-engine/pkg/providers/stripe"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting pulse-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations run over database/sql; the application pool is pgx native.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	catalog, err := config.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		logger.Fatal("Failed to load provider catalog", zap.Error(err))
	}
	logger.Info("Provider catalog loaded", zap.Strings("enabled", catalog.EnabledIDs()))

	cipher, err := crypto.NewTokenCipher(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to create token cipher", zap.Error(err))
	}

	connectionRepo := repositories.NewConnectionRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	snapshotRepo := repositories.NewSnapshotRepository(db)
	historyRepo := repositories.NewMetricHistoryRepository(db)
	syncLogRepo := repositories.NewSyncLogRepository(db)
	prefRepo := repositories.NewPreferenceRepository(db)

	scorer := services.NewPillarScorer()
	notifier := services.NewLogNotifier(logger)

	connectService := services.NewConnectService(
		connectionRepo, catalog, cfg.OAuth, cfg.BaseURL, cipher, logger)
	syncService := services.NewSyncService(
		connectionRepo, profileRepo, snapshotRepo, historyRepo, syncLogRepo, prefRepo,
		scorer, notifier, cipher, catalog, cfg.Sync, logger)

	for _, info := range connectService.AvailableProviders() {
		logger.Info("Provider available",
			zap.String("provider_id", info.ID),
			zap.String("category", info.Category))
	}

	interval := time.Duration(cfg.Sync.ScheduleIntervalMinutes) * time.Minute
	syncService.RunScheduler(ctx, interval)

	<-ctx.Done()
	logger.Info("Shutting down pulse-engine")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	return cfg.Build()
}

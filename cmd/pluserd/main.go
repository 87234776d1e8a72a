package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/jwtauth/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/pluser/pkg/audit"
	"github.com/tendant/pluser/pkg/chain"
	"github.com/tendant/pluser/pkg/config"
	"github.com/tendant/pluser/pkg/eventlog"
	"github.com/tendant/pluser/pkg/factory"
	"github.com/tendant/pluser/pkg/ratelimit"
	"github.com/tendant/pluser/pkg/router"
	"github.com/tendant/pluser/pkg/typeddata"
	"github.com/tendant/pluser/pkg/wellknown"
)

func main() {
	loadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting pluserd", "chainId", cfg.ChainConfig.ChainID, "eventlog", cfg.EventLogConfig.Persistence)

	ctx := context.Background()
	events, closeEvents, err := openEventLog(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open event log", "persistence", cfg.EventLogConfig.Persistence, "error", err)
		os.Exit(1)
	}
	defer closeEvents()

	ch := chain.New(chain.Config{
		ChainID: cfg.ChainConfig.ChainIDBig(),
		Clock:   chain.SystemClock{},
		Events:  events,
	})

	f, err := factory.Install(ctx, ch, factory.Config{
		Address:           cfg.ChainConfig.Factory(),
		Owner:             cfg.ChainConfig.Owner(),
		TwoFactorVerifier: cfg.ChainConfig.Verifier(),
		Deployers:         cfg.ChainConfig.Deployers(),
		Verifier:          typeddata.NewECDSAVerifier(),
	})
	if err != nil {
		slog.Error("Failed to install factory", "error", err)
		os.Exit(1)
	}

	rateLimit := ratelimit.NewMiddleware(cfg.RateLimitConfig.ToMiddlewareConfig(router.DeployPath()))
	defer rateLimit.Close()

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	routes := router.Config{
		Chain:     ch,
		Factory:   f,
		JWTAuth:   jwtauth.New("HS256", []byte(cfg.JwtConfig.Secret), nil),
		RateLimit: rateLimit,
		BaseURL:   cfg.BaseURL,
	}
	if cfg.AuditEnabled {
		routes.Audit = audit.NewMiddleware(audit.Config{Logger: logger})
	}
	router.SetupRoutes(server.R, routes)

	slog.Info(strings.Repeat("=", 60))
	slog.Info("pluserd ready")
	slog.Info("Factory: " + f.Address().Hex())
	slog.Info("Two-factor verifier: " + f.TwoFactorVerifier().Hex())
	slog.Info("Discovery: " + cfg.BaseURL + wellknown.ConfigurationPath)
	slog.Info(strings.Repeat("=", 60))

	server.Run()
}

// openEventLog builds the configured event repository. The returned func
// releases whatever connection it holds.
func openEventLog(ctx context.Context, cfg config.Config) (eventlog.Repository, func(), error) {
	noop := func() {}

	switch cfg.EventLogConfig.Persistence {
	case config.PersistencePostgres:
		pool, err := openPool(ctx, cfg.DatabaseConfig)
		if err != nil {
			return nil, noop, err
		}
		repo := eventlog.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		slog.Info("Database connected", "host", cfg.DatabaseConfig.Host, "database", cfg.DatabaseConfig.Database)
		return repo, pool.Close, nil
	default:
		repo, err := eventlog.NewRepository(cfg.EventLogConfig.Persistence, eventlog.RepositoryConfig{
			DataDir: cfg.EventLogConfig.Dir,
		})
		return repo, noop, err
	}
}

// openPool connects through db-utils, which has no search_path setting, so
// a non-public schema is reached through the full connection URL instead.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.Schema != "" && cfg.Schema != "public" {
		pool, err := pgxpool.New(ctx, cfg.ToDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return pool, nil
	}

	dbConfig := cfg.ToDbConfig()
	pool, err := dbutils.NewDbPool(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}

	envFile := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, _ := os.Getwd()
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

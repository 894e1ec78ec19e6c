package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetjson/internal/config"
	"github.com/JonMunkholm/sheetjson/internal/history"
	"github.com/JonMunkholm/sheetjson/internal/logging"
	"github.com/JonMunkholm/sheetjson/internal/metrics"
	"github.com/JonMunkholm/sheetjson/internal/source"
	"github.com/JonMunkholm/sheetjson/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	src, err := source.Open(ctx, cfg.Source)
	if err != nil {
		slog.Error("failed to open source", "mode", cfg.Source.Mode, "error", err)
		os.Exit(1)
	}
	defer src.Close()

	m := metrics.New()
	retriever := source.NewRetriever(cfg, m.InstrumentTransport(src.Transport), src.SpreadsheetID, m.Reporter())
	m.RegisterLimiter(retriever.Limiter())

	opts := []web.Option{web.WithMetrics(m)}

	if cfg.Database.Enabled() {
		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		store := history.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare fetch history", "error", err)
			os.Exit(1)
		}
		opts = append(opts, web.WithHistory(store))
		slog.Info("fetch history enabled")
	}

	// Warm the metadata cache; a failure here is retried on first request.
	if md, err := retriever.Metadata(ctx, false); err != nil {
		slog.Warn("could not load spreadsheet metadata", "spreadsheet", src.SpreadsheetID, "error", err)
	} else {
		slog.Info("spreadsheet loaded", "spreadsheet", src.SpreadsheetID, "title", md.Title, "tables", len(md.Tables))
	}

	server := web.NewServer(cfg, retriever, opts...)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := retriever.Limiter().Status(); status.Active > 0 {
			slog.Info("waiting for fetches to complete", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

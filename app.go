package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ItachiCrypto/appforge-sub001/internal/config"
	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/redis"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
	"github.com/ItachiCrypto/appforge-sub001/internal/tools"
)

// app holds the collaborators shared by the serve and mcp commands.
type app struct {
	cfg   *config.Config
	db    *storage.DB
	store *storage.Store
	files *files.Service
	exec  *tools.Executor
	redis *redis.Client
}

func openApp(cfg *config.Config) (*app, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, db: db}

	a.store = storage.NewStore(db, storage.Limits{
		MaxFileSize:  cfg.Limits.MaxFileSize,
		DefaultQuota: cfg.Limits.DefaultQuota,
	})

	var locker files.Locker
	if cfg.Redis.Enabled() {
		a.redis, err = redis.NewRedisClient(cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		locker = redis.NewLocker(a.redis, cfg.Redis.LockTTL)
		slog.Info("Using redis project locks", "host", cfg.Redis.Host, "ttl", cfg.Redis.LockTTL)
	}

	a.files = files.NewService(a.store, locker, files.Options{
		Timeout:        cfg.Server.OperationTimeout,
		MinQueryLength: cfg.Limits.MinQueryLength,
		MaxBulkOps:     cfg.Limits.MaxBulkOps,
	})
	a.exec = tools.NewExecutor(a.files, nil)
	return a, nil
}

func openDB(cfg *config.Config) (*storage.DB, error) {
	if path, ok := cfg.SQLitePath(); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		slog.Info("Opening sqlite database", "path", path)
		return storage.OpenSQLite(path)
	}
	slog.Info("Opening database", "driver", cfg.Database.Driver)
	return storage.Open(cfg.Database.Driver, cfg.Database.DSN)
}

func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		slog.Warn("Failed to close redis", "err", err)
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("Failed to close database", "err", err)
	}
}

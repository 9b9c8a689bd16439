package main

import (
	"context"
	"io/fs"
	"log"
	"sort"
	"strings"

	"github.com/niota4/ageless-literature-sub006/internal/config"
	"github.com/niota4/ageless-literature-sub006/internal/db"
	"github.com/niota4/ageless-literature-sub006/internal/logger"
	"github.com/niota4/ageless-literature-sub006/migrations"
)

// Applies the embedded migrations in filename order, tracking each file in
// schema_migrations so reruns are no-ops.
func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	zlog := logger.New()
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		zlog.Fatalw("db connect failed", "error", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		zlog.Fatalw("ensure schema table failed", "error", err)
	}

	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		zlog.Fatalw("list migrations failed", "error", err)
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		var exists bool
		row := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, name)
		if err := row.Scan(&exists); err != nil {
			zlog.Fatalw("check migration failed", "file", name, "error", err)
		}
		if exists {
			continue
		}

		body, err := migrations.FS.ReadFile(name)
		if err != nil {
			zlog.Fatalw("read migration failed", "file", name, "error", err)
		}
		if sql := strings.TrimSpace(string(body)); sql != "" {
			if _, err := pool.Exec(ctx, sql); err != nil {
				zlog.Fatalw("apply migration failed", "file", name, "error", err)
			}
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			zlog.Fatalw("mark migration failed", "file", name, "error", err)
		}
		zlog.Infow("migration applied", "file", name)
		applied++
	}
	zlog.Infow("migrations up to date", "applied", applied, "total", len(files))
}

// db.go
//
// Results database bootstrap.
// Responsibilities:
//   - Ensure the parent directory exists for file-backed SQLite DSNs (e.g. ./data/app.db).
//   - Open the configured backend and apply migrations (internal/results).

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/internal/results"
)

// openResults opens and migrates the results store described by cfg.
func openResults(ctx context.Context, cfg *Config) (*results.Store, error) {
	d, err := results.DialectFor(cfg.dbDriver)
	if err != nil {
		return nil, err
	}
	if _, ok := d.(results.SQLite); ok {
		if err := ensureDir(sqlitePath(cfg.dbDSN)); err != nil {
			return nil, err
		}
	}

	res, err := results.Open(cfg.dbDriver, cfg.dbDSN)
	if err != nil {
		return nil, err
	}
	if err := res.Migrate(ctx); err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("driver", res.Dialect().DriverName()).Msg("results database ready")
	return res, nil
}

// sqlitePath strips the file: scheme and query options from dsn.
// In-memory databases yield "".
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == ":memory:" || p == "" {
		return ""
	}
	return p
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

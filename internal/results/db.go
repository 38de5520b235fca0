// internal/results/db.go
//
// Results database handle.
// Responsibilities:
//   - Open the configured backend through its Dialect and verify the connection.
//   - Apply embedded migrations once each, recorded in _migrations.
//
// Notes:
//   - Migrations are applied statement by statement inside one transaction;
//     MySQL commits DDL implicitly, so a failed MySQL migration may be partial.

package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/reelfling/assets"
)

// Store persists game results, match ranks and daily outcomes.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time

	// profile updates are read-modify-write
	profileMu sync.Mutex
}

// Open connects to driver/dsn. Call Migrate before first use.
func Open(driver, dsn string) (*Store, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.DriverName(), d.DSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("results: open %s: %w", d.DriverName(), err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("results: ping %s: %w", d.DriverName(), err)
	}
	if err := d.ConfigureConnection(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("results: configure %s: %w", d.DriverName(), err)
	}
	return &Store{db: db, dialect: d, now: time.Now}, nil
}

// Dialect reports the active dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate applies every embedded migration not yet recorded.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.CreateMigrationsTableQuery()); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}
	migrations, err := assets.Migrations(s.dialect.MigrationsSubdir())
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	for _, m := range migrations {
		var done int
		err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM _migrations WHERE name=?`), m.Name).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", m.Name).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range assets.Statements(m.SQL) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply %s: %w", m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO _migrations(name) VALUES (?)`), m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.Name, err)
		}
		log.Info().Str("migration", m.Name).Msg("applied")
	}
	return nil
}

func (s *Store) rebind(q string) string { return s.dialect.RewriteQuery(q) }

func (s *Store) stamp() string { return s.now().UTC().Format(time.RFC3339) }

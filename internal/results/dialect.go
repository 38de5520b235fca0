// internal/results/dialect.go
//
// SQL dialects for the results store.
// Responsibilities:
//   - Driver name and DSN shaping per backend (sqlite3, postgres, mysql).
//   - Placeholder rewriting (? → $n for postgres).
//   - Pool settings and per-connection pragmas.
//   - The few statements whose syntax differs: migrations table, profile upsert,
//     insert-if-absent for daily results.

package results

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect hides backend differences from the recorder.
type Dialect interface {
	// DriverName is the database/sql driver name.
	DriverName() string

	// DSN adapts a configured DSN for the driver.
	DSN(dsn string) string

	// RewriteQuery converts ? placeholders where the driver needs it.
	RewriteQuery(query string) string

	// ConfigureConnection applies pool settings and session pragmas.
	ConfigureConnection(db *sql.DB) error

	// MigrationsSubdir names the embedded migrations directory.
	MigrationsSubdir() string

	// CreateMigrationsTableQuery creates the applied-migrations ledger.
	CreateMigrationsTableQuery() string

	// UpsertProfileQuery writes every profile column, inserting or replacing by player_id.
	UpsertProfileQuery() string

	// InsertDailyQuery inserts a daily result and silently skips an existing (player_id, date).
	InsertDailyQuery() string
}

// DialectFor resolves a configured driver name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	}
	return nil, fmt.Errorf("results: unsupported database driver %q", name)
}

const profileColumns = `player_id, games_played, wins, losses, streak, highest_streak, xp, level, daily_streak, last_daily, updated_at`

const profileValues = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

var profileUpdates = []string{
	"games_played", "wins", "losses", "streak", "highest_streak",
	"xp", "level", "daily_streak", "last_daily", "updated_at",
}

const dailyColumns = `(player_id, date, movie_id, won, strikes, elapsed_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

func conflictUpsert() string {
	sets := make([]string, len(profileUpdates))
	for i, c := range profileUpdates {
		sets[i] = c + " = excluded." + c
	}
	return `INSERT INTO profiles (` + profileColumns + `) VALUES (` + profileValues + `)
		ON CONFLICT (player_id) DO UPDATE SET ` + strings.Join(sets, ", ")
}

func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
}

// SQLite is the default, file-backed dialect (mattn/go-sqlite3).
type SQLite struct{}

func (SQLite) DriverName() string { return "sqlite3" }

// DSN adds a busy timeout and WAL journaling unless the DSN already carries options.
func (SQLite) DSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

func (SQLite) RewriteQuery(q string) string { return q }

func (SQLite) ConfigureConnection(db *sql.DB) error {
	configurePool(db)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("set pragmas: %w", err)
	}
	return nil
}

func (SQLite) MigrationsSubdir() string { return "sqlite" }

func (SQLite) CreateMigrationsTableQuery() string {
	return `CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY)`
}

func (SQLite) UpsertProfileQuery() string { return conflictUpsert() }

func (SQLite) InsertDailyQuery() string {
	return `INSERT OR IGNORE INTO daily_results ` + dailyColumns
}

// Postgres uses lib/pq.
type Postgres struct{}

func (Postgres) DriverName() string { return "postgres" }

func (Postgres) DSN(dsn string) string { return dsn }

var placeholder = regexp.MustCompile(`\?`)

// RewriteQuery numbers placeholders in order: ?, ? → $1, $2.
func (Postgres) RewriteQuery(q string) string {
	n := 0
	return placeholder.ReplaceAllStringFunc(q, func(string) string {
		n++
		return "$" + strconv.Itoa(n)
	})
}

func (Postgres) ConfigureConnection(db *sql.DB) error {
	configurePool(db)
	return nil
}

func (Postgres) MigrationsSubdir() string { return "postgres" }

func (Postgres) CreateMigrationsTableQuery() string {
	return `CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY)`
}

func (Postgres) UpsertProfileQuery() string { return conflictUpsert() }

func (Postgres) InsertDailyQuery() string {
	return `INSERT INTO daily_results ` + dailyColumns + ` ON CONFLICT (player_id, date) DO NOTHING`
}

// MySQL uses go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) DriverName() string { return "mysql" }

func (MySQL) DSN(dsn string) string { return dsn }

func (MySQL) RewriteQuery(q string) string { return q }

func (MySQL) ConfigureConnection(db *sql.DB) error {
	configurePool(db)
	return nil
}

func (MySQL) MigrationsSubdir() string { return "mysql" }

func (MySQL) CreateMigrationsTableQuery() string {
	return `CREATE TABLE IF NOT EXISTS _migrations (name VARCHAR(255) PRIMARY KEY)`
}

func (MySQL) UpsertProfileQuery() string {
	sets := make([]string, len(profileUpdates))
	for i, c := range profileUpdates {
		sets[i] = c + " = VALUES(" + c + ")"
	}
	return `INSERT INTO profiles (` + profileColumns + `) VALUES (` + profileValues + `)
		ON DUPLICATE KEY UPDATE ` + strings.Join(sets, ", ")
}

func (MySQL) InsertDailyQuery() string {
	return `INSERT IGNORE INTO daily_results ` + dailyColumns
}

// assets/embed.go
//
// Embedded data shipped with the binary:
//   - movies.json: the fallback movie catalog used when TMDb is unavailable.
//   - sql/<dialect>/*.sql: schema migrations, one directory per database dialect.

package assets

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed movies.json sql
var FS embed.FS

// MoviesJSON returns the raw embedded catalog.
func MoviesJSON() ([]byte, error) {
	return FS.ReadFile("movies.json")
}

// Migration is a single schema script.
type Migration struct {
	Name string // e.g. "sqlite/001_init.sql"
	SQL  string
}

// Migrations lists the scripts for dialect ("sqlite", "postgres", "mysql")
// in lexical order. Blank files are skipped.
func Migrations(dialect string) ([]Migration, error) {
	dir := path.Join("sql", dialect)
	entries, err := fs.ReadDir(FS, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, n := range names {
		b, err := FS.ReadFile(path.Join(dir, n))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		out = append(out, Migration{Name: path.Join(dialect, n), SQL: string(b)})
	}
	return out, nil
}

// Statements splits a migration into individual statements on terminating
// semicolons. Line comments are dropped. Drivers differ on multi-statement
// Exec support, so migrations are always applied one statement at a time.
func Statements(sqlText string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(sqlText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(cur.String())
			out = append(out, strings.TrimSuffix(stmt, ";"))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

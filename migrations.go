package forumwatch

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// MigrationFiles contains the schema of the topic store, one directory per
// SQL dialect (postgres, sqlite3, mysql). Every statement is idempotent, so
// the whole set is safe to apply on each startup.
//
// Example with golang-migrate style tooling:
//
//	sub, _ := fs.Sub(forumwatch.MigrationFiles, "migrations/postgres")
//
//go:embed migrations/*/*.sql
var MigrationFiles embed.FS

// Execer is the part of *sql.DB and *sql.Tx needed to apply migrations.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Dialect maps a database/sql driver name to its migration directory.
// "pgx" and "postgres" share the PostgreSQL dialect; "sqlite" is an alias of "sqlite3".
func Dialect(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return "postgres", nil
	case "sqlite3", "sqlite":
		return "sqlite3", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", NewError(ErrCodeConfiguration, fmt.Sprintf("unsupported database driver %q", driver))
	}
}

// MigrationStatements returns the statements for driver in file order.
func MigrationStatements(driver string) ([]string, error) {
	dialect, err := Dialect(driver)
	if err != nil {
		return nil, err
	}

	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(MigrationFiles, dir)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to read migrations", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var statements []string
	for _, name := range names {
		body, err := fs.ReadFile(MigrationFiles, path.Join(dir, name))
		if err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to read migration "+name, err)
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				statements = append(statements, stmt)
			}
		}
	}
	return statements, nil
}

// ApplyMigrations creates or upgrades the topic table.
func ApplyMigrations(ctx context.Context, db Execer, driver string) error {
	statements, err := MigrationStatements(driver)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return NewErrorWithCause(ErrCodeDatabase, "failed to apply migration", err)
		}
	}
	return nil
}

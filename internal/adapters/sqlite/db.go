// Package sqlite is the single-node ledger backend, used for local runs and
// tests. It implements the same ports as the postgres adapter.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type DB struct {
	SQL *sql.DB
}

// Open opens path (a file path or a "file:" DSN) with foreign keys and a busy
// timeout. Writes are serialised on one connection.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{SQL: sqlDB}, nil
}

func (db *DB) Close() { db.SQL.Close() }

func (db *DB) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db.SQL, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

var ErrNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }

var timeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// timeScanner reads DATETIME columns whether the driver hands back a
// time.Time (declared column) or text (expressions, RETURNING).
type timeScanner struct{ dst *time.Time }

func scanTime(dst *time.Time) timeScanner { return timeScanner{dst: dst} }

func (s timeScanner) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s.dst = time.Time{}
		return nil
	case time.Time:
		*s.dst = v.UTC()
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (s timeScanner) parse(v string) error {
	v = strings.TrimSuffix(v, "Z")
	for _, layout := range timeFormats {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			*s.dst = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", v)
}

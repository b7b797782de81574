package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrations embed.FS

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// DB wraps *sql.DB so stores can write "?" placeholders for either dialect.
type DB struct {
	*sql.DB
	Dialect string
}

// Open opens the database named by dsn and runs migrations. A postgres:// or
// postgresql:// URL selects Postgres through pgx; anything else is a SQLite
// path (":memory:" included).
func Open(dsn string) (*DB, error) {
	dialect, driver, source := resolve(dsn)

	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == DialectSQLite && strings.Contains(dsn, ":memory:") {
		// Each pooled connection would otherwise get its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(sqlDB, dialect); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

func resolve(dsn string) (dialect, driver, source string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres, "pgx", dsn
	}
	return DialectSQLite, "sqlite", dsn + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_time_format=sqlite"
}

func runMigrations(db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrations)

	gooseDialect := "sqlite3"
	if dialect == DialectPostgres {
		gooseDialect = "postgres"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations/"+dialect); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Rebind rewrites "?" placeholders to "$1", "$2", ... for Postgres. Question
// marks inside single-quoted literals are left alone.
func Rebind(dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	return db.DB.Exec(Rebind(db.Dialect, query), args...)
}

func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return db.DB.Query(Rebind(db.Dialect, query), args...)
}

func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	return db.DB.QueryRow(Rebind(db.Dialect, query), args...)
}

// Begin starts a transaction whose statements are rebound like the DB's.
func (db *DB) Begin() (*Tx, error) {
	tx, err := db.DB.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, dialect: db.Dialect}, nil
}

type Tx struct {
	*sql.Tx
	dialect string
}

func (tx *Tx) Exec(query string, args ...any) (sql.Result, error) {
	return tx.Tx.Exec(Rebind(tx.dialect, query), args...)
}

func (tx *Tx) QueryRow(query string, args ...any) *sql.Row {
	return tx.Tx.QueryRow(Rebind(tx.dialect, query), args...)
}

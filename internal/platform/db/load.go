package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ehr/screenseed/internal/platform/seedio"
)

// Beginner starts a transaction. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LoadedTable is the outcome of loading one table.
type LoadedTable struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Loader copies seed tables into one warehouse schema. Every column is
// loaded as TEXT, leaving typing to the models built on top.
type Loader struct {
	db     Beginner
	schema string
	logger zerolog.Logger
}

// NewLoader creates a loader writing into schema.
func NewLoader(db Beginner, schema string, logger zerolog.Logger) *Loader {
	return &Loader{db: db, schema: schema, logger: logger}
}

// Load replaces the contents of every table in a single transaction: either
// all tables are loaded or none is changed.
func (l *Loader) Load(ctx context.Context, tables []*seedio.Table) ([]LoadedTable, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, CreateSchemaSQL(l.schema)); err != nil {
		return nil, fmt.Errorf("create schema %s: %w", l.schema, err)
	}

	loaded := make([]LoadedTable, 0, len(tables))
	for _, t := range tables {
		if _, err := tx.Exec(ctx, CreateTableSQL(l.schema, t)); err != nil {
			return nil, fmt.Errorf("create table %s: %w", t.Name, err)
		}
		if _, err := tx.Exec(ctx, TruncateSQL(l.schema, t.Name)); err != nil {
			return nil, fmt.Errorf("truncate %s: %w", t.Name, err)
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{l.schema, t.Name}, t.Header, pgx.CopyFromRows(CopyRows(t)))
		if err != nil {
			return nil, fmt.Errorf("copy into %s: %w", t.Name, err)
		}
		l.logger.Info().Str("schema", l.schema).Str("table", t.Name).Int64("rows", n).Msg("loaded table")
		loaded = append(loaded, LoadedTable{Table: t.Name, Rows: n})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit load: %w", err)
	}
	return loaded, nil
}

// CreateSchemaSQL returns the statement creating schema if missing.
func CreateSchemaSQL(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize()
}

// CreateTableSQL returns the statement creating t with one TEXT column per
// header field.
func CreateTableSQL(schema string, t *seedio.Table) string {
	cols := make([]string, len(t.Header))
	for i, h := range t.Header {
		cols[i] = pgx.Identifier{h}.Sanitize() + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier{schema, t.Name}.Sanitize(), strings.Join(cols, ", "))
}

// TruncateSQL returns the statement emptying a table.
func TruncateSQL(schema, table string) string {
	return "TRUNCATE " + pgx.Identifier{schema, table}.Sanitize()
}

// CopyRows converts table rows into COPY values. Empty fields become NULL.
func CopyRows(t *seedio.Table) [][]any {
	out := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		vals := make([]any, len(row))
		for j, v := range row {
			if v != "" {
				vals[j] = v
			}
		}
		out[i] = vals
	}
	return out
}

// ReadDir reads every seed table in dir, in name order.
func ReadDir(dir string) ([]*seedio.Table, error) {
	paths, err := seedio.ListTables(dir)
	if err != nil {
		return nil, err
	}
	tables := make([]*seedio.Table, 0, len(paths))
	for _, p := range paths {
		t, err := seedio.ReadTable(p)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

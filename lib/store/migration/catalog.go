package migration

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Catalog gives access to the live schema of the store.
type Catalog interface {
	Ping(ctx context.Context) error
	// TableCount returns the number of base tables in the public schema.
	TableCount(ctx context.Context) (int, error)
	// Schema returns the live tables of the public schema, except the table named exclude.
	Schema(ctx context.Context, exclude string) (Schema, error)
	// EnsureVersionTable creates the version table if missing and records version when it holds no row. It returns
	// true if the version was recorded.
	EnsureVersionTable(ctx context.Context, table string, version uint) (bool, error)
}

// SQLCatalog implements Catalog over a PostgreSQL connection pool.
type SQLCatalog struct {
	db *sqlx.DB
}

// NewCatalog returns a catalog reading through db.
func NewCatalog(db *sqlx.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

// Ping runs a trivial query.
func (c *SQLCatalog) Ping(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "SELECT 1")

	return err
}

// TableCount implements Catalog.
func (c *SQLCatalog) TableCount(ctx context.Context) (int, error) {
	var n int

	err := c.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`)
	if err != nil {
		return 0, fmt.Errorf("counting tables: %w", err)
	}

	return n, nil
}

type liveColumn struct {
	Table    string `db:"table_name"`
	Column   string `db:"column_name"`
	Type     string `db:"data_type"`
	Nullable string `db:"is_nullable"`
}

// Schema implements Catalog.
func (c *SQLCatalog) Schema(ctx context.Context, exclude string) (Schema, error) {
	var cols []liveColumn

	err := c.db.SelectContext(ctx, &cols, `SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
		FROM information_schema.columns c
		JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE' AND c.table_name <> $1
		ORDER BY c.table_name, c.ordinal_position`, exclude)
	if err != nil {
		return nil, fmt.Errorf("reading live schema: %w", err)
	}

	return groupColumns(cols), nil
}

func groupColumns(cols []liveColumn) Schema {
	var s Schema

	for _, lc := range cols {
		if len(s) == 0 || s[len(s)-1].Name != lc.Table {
			s = append(s, Table{Name: lc.Table})
		}

		t := &s[len(s)-1]
		t.Columns = append(t.Columns, Column{Name: lc.Column, Type: lc.Type, Nullable: lc.Nullable == "YES"})
	}

	return s
}

// EnsureVersionTable implements Catalog. The table layout is the one golang-migrate uses.
func (c *SQLCatalog) EnsureVersionTable(ctx context.Context, table string, version uint) (bool, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	tbl := pq.QuoteIdentifier(table)
	if _, err = tx.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version bigint NOT NULL PRIMARY KEY, dirty boolean NOT NULL)", tbl)); err != nil {
		return false, fmt.Errorf("creating version table: %w", err)
	}

	var n int
	if err = tx.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", tbl)); err != nil {
		return false, err
	}

	if n > 0 {
		return false, tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (version, dirty) VALUES ($1, false)", tbl),
		version); err != nil {
		return false, fmt.Errorf("seeding version table: %w", err)
	}

	return true, tx.Commit()
}

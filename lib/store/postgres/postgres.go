// Package postgres implements the store repositories for PostgreSQL on top of sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system

	"github.com/tarancss/soltracker/lib/store"
)

// Table is a generic repository over the rows of one table.
type Table[T any] struct {
	db      *sqlx.DB
	name    string
	insert  []string        // columns written by Create
	columns map[string]bool // columns accepted by filters and updates
}

// NewTable returns a repository for table name. insert lists the columns written by Create, the rest take their
// defaults; columns lists every column of the table.
func NewTable[T any](db *sqlx.DB, name string, insert, columns []string) *Table[T] {
	t := &Table[T]{db: db, name: name, insert: insert, columns: make(map[string]bool, len(columns))}
	for _, c := range columns {
		t.columns[c] = true
	}

	return t
}

// Create inserts v and scans back the stored row, defaults included.
func (t *Table[T]) Create(ctx context.Context, v *T) error {
	named := make([]string, len(t.insert))
	for i, c := range t.insert {
		named[i] = ":" + c
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		t.name, strings.Join(t.insert, ", "), strings.Join(named, ", "))

	return t.write(ctx, func(tx *sqlx.Tx) error {
		rows, err := sqlx.NamedQueryContext(ctx, tx, query, v)
		if err != nil {
			return err
		}
		defer rows.Close()

		if !rows.Next() {
			if err = rows.Err(); err != nil {
				return err
			}

			return sql.ErrNoRows
		}

		return rows.StructScan(v)
	})
}

// Get returns the row with the given id or store.ErrNotFound.
func (t *Table[T]) Get(ctx context.Context, id int64) (*T, error) {
	v := new(T)

	err := t.db.GetContext(ctx, v, fmt.Sprintf("SELECT * FROM %s WHERE id = $1", t.name), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("postgres: get %s %d: %w", t.name, id, err)
	}

	return v, nil
}

// List implements store.Repo.
func (t *Table[T]) List(ctx context.Context, f store.Filter) ([]T, error) {
	where, args, err := t.where(f)
	if err != nil {
		return nil, err
	}

	var vs []T
	if err = t.db.SelectContext(ctx, &vs, fmt.Sprintf("SELECT * FROM %s%s ORDER BY id DESC", t.name, where),
		args...); err != nil {
		return nil, fmt.Errorf("postgres: list %s: %w", t.name, err)
	}

	return vs, nil
}

// Count implements store.Repo.
func (t *Table[T]) Count(ctx context.Context, f store.Filter) (int, error) {
	where, args, err := t.where(f)
	if err != nil {
		return 0, err
	}

	var n int
	if err = t.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.name, where), args...); err != nil {
		return 0, fmt.Errorf("postgres: count %s: %w", t.name, err)
	}

	return n, nil
}

// Update sets f on the row with the given id.
func (t *Table[T]) Update(ctx context.Context, id int64, f store.Fields) error {
	if len(f) == 0 {
		return nil
	}

	keys, err := t.keys(f)
	if err != nil {
		return err
	}

	sets := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+1)

	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = ?", k)
		args = append(args, f[k])
	}

	args = append(args, id)
	query := t.db.Rebind(fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.name, strings.Join(sets, ", ")))

	return t.write(ctx, func(tx *sqlx.Tx) error {
		return affected(tx.ExecContext(ctx, query, args...))
	})
}

// Delete removes the row with the given id.
func (t *Table[T]) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.name)

	return t.write(ctx, func(tx *sqlx.Tx) error {
		return affected(tx.ExecContext(ctx, query, id))
	})
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return store.ErrNotFound
	}

	return nil
}

// write runs fn in its own transaction.
func (t *Table[T]) write(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	if err = fn(tx); err != nil {
		_ = tx.Rollback()

		if errors.Is(err, store.ErrNotFound) {
			return err
		}

		return fmt.Errorf("postgres: %s: %w", t.name, err)
	}

	return tx.Commit()
}

// keys returns the sorted keys of m after checking they are columns of the table.
func (t *Table[T]) keys(m map[string]interface{}) ([]string, error) {
	keys := make([]string, 0, len(m))

	for k := range m {
		if !t.columns[k] {
			return nil, fmt.Errorf("%w: %s.%s", store.ErrBadColumn, t.name, k)
		}

		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys, nil
}

// where renders the WHERE clause for f with postgres bind vars.
func (t *Table[T]) where(f store.Filter) (string, []interface{}, error) {
	if len(f) == 0 {
		return "", nil, nil
	}

	keys, err := t.keys(f)
	if err != nil {
		return "", nil, err
	}

	conds := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))

	for _, k := range keys {
		v := f[k]

		if isList(v) {
			if reflect.ValueOf(v).Len() == 0 {
				conds = append(conds, "FALSE")

				continue
			}

			conds = append(conds, fmt.Sprintf("%s IN (?)", k))
		} else {
			conds = append(conds, fmt.Sprintf("%s = ?", k))
		}

		args = append(args, v)
	}

	query, args, err := sqlx.In(" WHERE "+strings.Join(conds, " AND "), args...)
	if err != nil {
		return "", nil, err
	}

	return t.db.Rebind(query), args, nil
}

func isList(v interface{}) bool {
	if v == nil {
		return false
	}

	if _, ok := v.([]byte); ok {
		return false
	}

	k := reflect.TypeOf(v).Kind()

	return k == reflect.Slice || k == reflect.Array
}

// Package store defines the repository interfaces the bot uses to persist users and their tracked addresses.
package store

import (
	"context"
	"errors"
)

// Errors returned.
var (
	ErrNotFound  = errors.New("store: not found")
	ErrBadColumn = errors.New("store: unknown column")
)

// Filter selects rows by column. A slice value matches any of its elements (IN), any other value is compared for
// equality.
type Filter map[string]interface{}

// Fields are the column values set by an update.
type Fields map[string]interface{}

// Repo is the generic CRUD repository over the rows of one table. Every call runs in its own session: writes in
// their own transaction, reads on a pooled connection.
type Repo[T any] interface {
	Create(ctx context.Context, v *T) error
	Get(ctx context.Context, id int64) (*T, error)
	// List returns the matching rows ordered by id descending. A nil filter matches every row.
	List(ctx context.Context, f Filter) ([]T, error)
	Update(ctx context.Context, id int64, f Fields) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context, f Filter) (int, error)
}

// Store groups the repositories. It is built once at startup and handed to the components that need it.
type Store struct {
	Users     Repo[User]
	Addresses Repo[Address]
}

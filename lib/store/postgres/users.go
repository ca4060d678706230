package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tarancss/soltracker/lib/store"
)

// Users is the users repository. Get loads the user's addresses too.
type Users struct {
	*Table[store.User]
	addresses *Table[store.Address]
}

// Get returns the user with its addresses, newest first.
func (u *Users) Get(ctx context.Context, id int64) (*store.User, error) {
	user, err := u.Table.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.Addresses, err = u.addresses.List(ctx, store.Filter{"user_id": id}); err != nil {
		return nil, fmt.Errorf("postgres: loading addresses of %d: %w", id, err)
	}

	return user, nil
}

// New returns the repositories bound to the db pool.
func New(db *sqlx.DB) *store.Store {
	addresses := NewTable[store.Address](db, store.AddressesTable,
		[]string{"user_id", "sol_address", "name", "active"},
		[]string{"id", "user_id", "sol_address", "name", "active", "created_at"},
	)
	users := NewTable[store.User](db, store.UsersTable,
		[]string{"id", "username", "balance"},
		[]string{"id", "username", "balance", "registered_at"},
	)

	return &store.Store{
		Users:     &Users{Table: users, addresses: addresses},
		Addresses: addresses,
	}
}

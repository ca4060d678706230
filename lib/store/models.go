package store

import (
	"database/sql"
	"time"

	"github.com/tarancss/soltracker/lib/store/migration"
)

// Table names.
const (
	UsersTable     = "users"
	AddressesTable = "addresses"
)

// User is a Telegram user of the bot. ID is the Telegram user id.
type User struct {
	ID           int64          `db:"id" json:"id"`
	Username     sql.NullString `db:"username" json:"username"`
	Balance      float64        `db:"balance" json:"balance"`
	RegisteredAt time.Time      `db:"registered_at" json:"registered_at"`
	Addresses    []Address      `db:"-" json:"addresses,omitempty"`
}

// Address is a Solana wallet address tracked for a user.
type Address struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	SolAddress string    `db:"sol_address" json:"sol_address"`
	Name       string    `db:"name" json:"name"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Schema returns the declared models the migration manager compares the live schema against.
func Schema() migration.Schema {
	return migration.Schema{
		{Name: UsersTable, Columns: []migration.Column{
			{Name: "id", Type: "BIGINT", PrimaryKey: true},
			{Name: "username", Type: "TEXT", Nullable: true, Unique: true},
			{Name: "balance", Type: "DOUBLE PRECISION", Default: "0"},
			{Name: "registered_at", Type: "TIMESTAMPTZ", Default: "now()"},
		}},
		{Name: AddressesTable, Columns: []migration.Column{
			{Name: "id", Type: "BIGSERIAL", PrimaryKey: true},
			{Name: "user_id", Type: "BIGINT", References: "users(id)", OnDelete: "CASCADE"},
			{Name: "sol_address", Type: "TEXT"},
			{Name: "name", Type: "TEXT"},
			{Name: "active", Type: "BOOLEAN", Default: "true"},
			{Name: "created_at", Type: "TIMESTAMPTZ", Default: "now()"},
		}},
	}
}

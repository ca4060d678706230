package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogType(t *testing.T) {
	for in, want := range map[string]string{
		"BIGSERIAL":        "bigint",
		"SERIAL":           "integer",
		"TIMESTAMPTZ":      "timestamp with time zone",
		"VARCHAR(255)":     "character varying",
		"TEXT":             "text",
		"BOOLEAN":          "boolean",
		"DOUBLE PRECISION": "double precision",
		"NUMERIC(10, 2)":   "numeric",
		"jsonb":            "jsonb",
	} {
		assert.Equal(t, want, CatalogType(in), in)
	}
}

func TestDiff(t *testing.T) {
	live := Schema{
		{Name: "legacy", Columns: []Column{{Name: "id", Type: "integer"}}},
		{Name: "users", Columns: []Column{
			{Name: "id", Type: "bigint"},
			{Name: "username", Type: "character varying", Nullable: true},
			{Name: "old", Type: "text", Nullable: true},
		}},
	}

	changes := Diff(models, live)
	require.Len(t, changes, 4)

	assert.Equal(t, AlterColumn, changes[0].Kind)
	assert.Equal(t, "alter column users.username", changes[0].String())
	assert.Equal(t, DropColumn, changes[1].Kind)
	assert.Equal(t, "old", changes[1].Column.Name)
	assert.Equal(t, CreateTable, changes[2].Kind)
	assert.Equal(t, "addresses", changes[2].Table)
	assert.Equal(t, DropTable, changes[3].Kind)
	assert.Equal(t, "legacy", changes[3].Table)

	assert.Empty(t, Diff(models, models))
}

func TestChangeStatements(t *testing.T) {
	alter := Change{Kind: AlterColumn, Table: "users",
		Column:   Column{Name: "id", Type: "BIGSERIAL", PrimaryKey: true},
		Previous: Column{Name: "id", Type: "integer", Nullable: true}}
	assert.Equal(t, "ALTER TABLE \"users\" ALTER COLUMN \"id\" TYPE BIGINT USING \"id\"::BIGINT;\n"+
		"ALTER TABLE \"users\" ALTER COLUMN \"id\" SET NOT NULL", alter.Up())
	assert.Equal(t, "ALTER TABLE \"users\" ALTER COLUMN \"id\" TYPE integer USING \"id\"::integer;\n"+
		"ALTER TABLE \"users\" ALTER COLUMN \"id\" DROP NOT NULL", alter.Down())

	create := Change{Kind: CreateTable, Table: "addresses", Def: models[1]}
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"addresses\" (\n"+
		"\t\"id\" BIGSERIAL NOT NULL PRIMARY KEY,\n"+
		"\t\"user_id\" BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,\n"+
		"\t\"sol_address\" TEXT NOT NULL\n)", create.Up())
	assert.Equal(t, "DROP TABLE IF EXISTS \"addresses\"", create.Down())

	drop := Change{Kind: DropColumn, Table: "users", Column: Column{Name: "old", Type: "text", Nullable: true}}
	assert.Equal(t, "ALTER TABLE \"users\" DROP COLUMN IF EXISTS \"old\"", drop.Up())
	assert.Equal(t, "ALTER TABLE \"users\" ADD COLUMN \"old\" text", drop.Down())
}

func TestScript(t *testing.T) {
	up, down := Script(nil)
	assert.Equal(t, "SELECT 1;\n", up)
	assert.Equal(t, "SELECT 1;\n", down)

	changes := Diff(models, nil)
	up, down = Script(changes)
	assert.Contains(t, up, `CREATE TABLE IF NOT EXISTS "users"`)
	// tables are dropped in reverse creation order
	assert.Equal(t, "DROP TABLE IF EXISTS \"addresses\";\n\nDROP TABLE IF EXISTS \"users\";\n", down)
}

package migration

import (
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// Column describes one table column. Type is written the way it goes into DDL (ie. BIGSERIAL, TEXT).
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
	Unique     bool
	Default    string
	References string // referenced table and column, ie. users(id)
	OnDelete   string
}

// Table is a named list of columns.
type Table struct {
	Name    string
	Columns []Column
}

// Column returns the column called name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}

	return Column{}, false
}

// Schema is an ordered set of tables. Tables referenced by foreign keys must come first.
type Schema []Table

// Table returns the table called name.
func (s Schema) Table(name string) (Table, bool) {
	for _, t := range s {
		if t.Name == name {
			return t, true
		}
	}

	return Table{}, false
}

var typeSize = regexp.MustCompile(`\s*\(.*\)$`)

// CatalogType returns the name information_schema.columns.data_type reports for a DDL type.
func CatalogType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = typeSize.ReplaceAllString(t, "")

	switch t {
	case "bigserial", "serial8", "bigint", "int8":
		return "bigint"
	case "serial", "serial4", "int", "integer", "int4":
		return "integer"
	case "smallserial", "serial2", "smallint", "int2":
		return "smallint"
	case "timestamptz", "timestamp with time zone":
		return "timestamp with time zone"
	case "timestamp", "timestamp without time zone":
		return "timestamp without time zone"
	case "varchar", "character varying":
		return "character varying"
	case "char", "character", "bpchar":
		return "character"
	case "bool", "boolean":
		return "boolean"
	case "float8", "double precision":
		return "double precision"
	case "float4", "real":
		return "real"
	case "decimal", "numeric":
		return "numeric"
	}

	return t
}

// alterType is the type used in ALTER COLUMN ... TYPE, where pseudo types like serial are not allowed.
func alterType(t string) string {
	if strings.Contains(strings.ToLower(t), "serial") {
		return strings.ToUpper(CatalogType(t))
	}

	return t
}

func (c Column) definition() string {
	var b strings.Builder

	b.WriteString(pq.QuoteIdentifier(c.Name))
	b.WriteByte(' ')
	b.WriteString(c.Type)

	if !c.Nullable || c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}

	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}

	if c.Unique {
		b.WriteString(" UNIQUE")
	}

	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}

	if c.References != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(c.References)

		if c.OnDelete != "" {
			b.WriteString(" ON DELETE ")
			b.WriteString(c.OnDelete)
		}
	}

	return b.String()
}

func (c Column) nullable() bool {
	return c.Nullable && !c.PrimaryKey
}

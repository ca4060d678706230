package migration

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// Kind of schema change.
type Kind int

// Change kinds.
const (
	CreateTable Kind = iota + 1
	DropTable
	AddColumn
	DropColumn
	AlterColumn
)

func (k Kind) String() string {
	switch k {
	case CreateTable:
		return "create table"
	case DropTable:
		return "drop table"
	case AddColumn:
		return "add column"
	case DropColumn:
		return "drop column"
	case AlterColumn:
		return "alter column"
	}

	return "unknown"
}

// Change is a single difference between the declared and the live schema. Def is set for table changes, Column
// for column changes and Previous holds the live column of an AlterColumn.
type Change struct {
	Kind     Kind
	Table    string
	Def      Table
	Column   Column
	Previous Column
}

func (c Change) String() string {
	if c.Kind == CreateTable || c.Kind == DropTable {
		return fmt.Sprintf("%s %s", c.Kind, c.Table)
	}

	return fmt.Sprintf("%s %s.%s", c.Kind, c.Table, c.Column.Name)
}

// Diff compares the declared schema with the live one. Types are compared by catalog name, so BIGSERIAL matches
// bigint. Defaults, indexes and constraints are not compared.
func Diff(declared, live Schema) []Change {
	var changes []Change

	for _, dt := range declared {
		lt, ok := live.Table(dt.Name)
		if !ok {
			changes = append(changes, Change{Kind: CreateTable, Table: dt.Name, Def: dt})

			continue
		}

		for _, dc := range dt.Columns {
			lc, ok := lt.Column(dc.Name)
			switch {
			case !ok:
				changes = append(changes, Change{Kind: AddColumn, Table: dt.Name, Column: dc})
			case CatalogType(dc.Type) != CatalogType(lc.Type) || dc.nullable() != lc.nullable():
				changes = append(changes, Change{Kind: AlterColumn, Table: dt.Name, Column: dc, Previous: lc})
			}
		}

		for _, lc := range lt.Columns {
			if _, ok := dt.Column(lc.Name); !ok {
				changes = append(changes, Change{Kind: DropColumn, Table: dt.Name, Column: lc})
			}
		}
	}

	var dropped []Table
	for _, lt := range live {
		if _, ok := declared.Table(lt.Name); !ok {
			dropped = append(dropped, lt)
		}
	}

	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Name < dropped[j].Name })

	for _, lt := range dropped {
		changes = append(changes, Change{Kind: DropTable, Table: lt.Name, Def: lt})
	}

	return changes
}

// Up renders the statement applying the change.
func (c Change) Up() string {
	t := pq.QuoteIdentifier(c.Table)

	switch c.Kind {
	case CreateTable:
		return createTable(c.Def)
	case DropTable:
		return fmt.Sprintf("DROP TABLE IF EXISTS %s", t)
	case AddColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", t, c.Column.definition())
	case DropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", t, pq.QuoteIdentifier(c.Column.Name))
	case AlterColumn:
		return alterColumn(c.Table, c.Previous, c.Column)
	}

	return ""
}

// Down renders the statement reverting the change.
func (c Change) Down() string {
	t := pq.QuoteIdentifier(c.Table)

	switch c.Kind {
	case CreateTable:
		return fmt.Sprintf("DROP TABLE IF EXISTS %s", t)
	case DropTable:
		return createTable(c.Def)
	case AddColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", t, pq.QuoteIdentifier(c.Column.Name))
	case DropColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", t, c.Column.definition())
	case AlterColumn:
		return alterColumn(c.Table, c.Column, c.Previous)
	}

	return ""
}

func createTable(t Table) string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, "\t"+c.definition())
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", pq.QuoteIdentifier(t.Name), strings.Join(cols, ",\n"))
}

func alterColumn(table string, from, to Column) string {
	t, col := pq.QuoteIdentifier(table), pq.QuoteIdentifier(to.Name)

	var stmts []string
	if CatalogType(from.Type) != CatalogType(to.Type) {
		typ := alterType(to.Type)
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", t, col, typ, col, typ))
	}

	if from.nullable() != to.nullable() {
		op := "SET"
		if to.nullable() {
			op = "DROP"
		}

		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s NOT NULL", t, col, op))
	}

	return strings.Join(stmts, ";\n")
}

// Script renders the up and down scripts for changes. Down statements run in reverse order. An empty change set
// renders a no-op statement so the revision can still be applied.
func Script(changes []Change) (up, down string) {
	if len(changes) == 0 {
		return "SELECT 1;\n", "SELECT 1;\n"
	}

	ups := make([]string, 0, len(changes))
	downs := make([]string, 0, len(changes))

	for i := range changes {
		ups = append(ups, changes[i].Up()+";")
		downs = append(downs, changes[len(changes)-1-i].Down()+";")
	}

	return strings.Join(ups, "\n\n") + "\n", strings.Join(downs, "\n\n") + "\n"
}

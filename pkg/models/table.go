package models

import (
	"fmt"
	"slices"
)

// UniqueConstraint is a (possibly multi-column) unique constraint.
type UniqueConstraint struct {
	Name    string
	Columns []string
}

// Index is a named secondary index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// TableDefinition is the structural definition of a table: its name,
// columns, constraints and backend-specific options.
type TableDefinition struct {
	Options map[string]string // backend hints, e.g. "mysql_engine"
	Name    string
	Columns []ColumnSpec
	Uniques []UniqueConstraint
	Indexes []Index
}

// NewTable builds a table definition from its columns.
func NewTable(name string, columns ...ColumnSpec) TableDefinition {
	return TableDefinition{Name: name, Columns: columns}
}

// WithUnique returns a copy of the table with an extra unique constraint.
func (t TableDefinition) WithUnique(columns ...string) TableDefinition {
	t = t.Clone()
	t.Uniques = append(t.Uniques, UniqueConstraint{Columns: columns})
	return t
}

// WithIndex returns a copy of the table with an extra named index.
func (t TableDefinition) WithIndex(name string, columns ...string) TableDefinition {
	t = t.Clone()
	t.Indexes = append(t.Indexes, Index{Name: name, Columns: columns})
	return t
}

// WithOption returns a copy of the table with a backend option set.
func (t TableDefinition) WithOption(key, value string) TableDefinition {
	t = t.Clone()
	if t.Options == nil {
		t.Options = make(map[string]string)
	}
	t.Options[key] = value
	return t
}

// WithColumns returns a copy of the table with its column list replaced.
func (t TableDefinition) WithColumns(columns []ColumnSpec) TableDefinition {
	t = t.Clone()
	t.Columns = slices.Clone(columns)
	return t
}

// Column returns the column with the given name.
func (t TableDefinition) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// HasColumns reports whether every named column exists in the table.
func (t TableDefinition) HasColumns(names ...string) bool {
	for _, n := range names {
		if _, ok := t.Column(n); !ok {
			return false
		}
	}
	return true
}

// ColumnNames returns the column names in declaration order.
func (t TableDefinition) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// PrimaryKey returns the names of the primary key columns.
func (t TableDefinition) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// Dependencies returns the distinct tables this table holds foreign keys to,
// in column order. Self references are not dependencies.
func (t TableDefinition) Dependencies() []string {
	var deps []string
	for _, c := range t.Columns {
		if c.ForeignKey == nil || c.ForeignKey.Table == t.Name {
			continue
		}
		if !slices.Contains(deps, c.ForeignKey.Table) {
			deps = append(deps, c.ForeignKey.Table)
		}
	}
	return deps
}

// Clone returns a deep copy of the definition.
func (t TableDefinition) Clone() TableDefinition {
	out := TableDefinition{Name: t.Name}
	out.Columns = make([]ColumnSpec, len(t.Columns))
	for i, c := range t.Columns {
		if c.ForeignKey != nil {
			fk := *c.ForeignKey
			c.ForeignKey = &fk
		}
		out.Columns[i] = c
	}
	for _, u := range t.Uniques {
		out.Uniques = append(out.Uniques, UniqueConstraint{Name: u.Name, Columns: slices.Clone(u.Columns)})
	}
	for _, ix := range t.Indexes {
		out.Indexes = append(out.Indexes, Index{Name: ix.Name, Columns: slices.Clone(ix.Columns), Unique: ix.Unique})
	}
	if t.Options != nil {
		out.Options = make(map[string]string, len(t.Options))
		for k, v := range t.Options {
			out.Options[k] = v
		}
	}
	return out
}

// Validate checks names, duplicate columns and constraint column references.
func (t TableDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table has no name")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	for _, u := range t.Uniques {
		if len(u.Columns) == 0 || !t.HasColumns(u.Columns...) {
			return fmt.Errorf("table %s: unique constraint on unknown columns %v", t.Name, u.Columns)
		}
	}
	for _, ix := range t.Indexes {
		if ix.Name == "" {
			return fmt.Errorf("table %s: index on %v has no name", t.Name, ix.Columns)
		}
		if len(ix.Columns) == 0 || !t.HasColumns(ix.Columns...) {
			return fmt.Errorf("table %s: index %s on unknown columns %v", t.Name, ix.Name, ix.Columns)
		}
	}
	return nil
}

// Package models contains the declared data model types for schemaflow.
package models

import (
	"fmt"
	"strings"
)

// ColumnType is the semantic type of a column, independent of any backend.
type ColumnType string

const (
	// TypeInteger is a 32-bit integer.
	TypeInteger ColumnType = "integer"
	// TypeBigInteger is a 64-bit integer.
	TypeBigInteger ColumnType = "bigint"
	// TypeString is a bounded character string; Length carries the bound.
	TypeString ColumnType = "string"
	// TypeText is an unbounded character string.
	TypeText ColumnType = "text"
	// TypeBoolean is a true/false flag.
	TypeBoolean ColumnType = "boolean"
	// TypeDateTime is a timestamp without time zone.
	TypeDateTime ColumnType = "datetime"
	// TypeFloat is a double precision floating point number.
	TypeFloat ColumnType = "float"
	// TypeBinary is an opaque byte string.
	TypeBinary ColumnType = "binary"
	// TypeJSON is a structured JSON document. Not every backend has one.
	TypeJSON ColumnType = "json"
)

// AllColumnTypes is the list of all semantic column types.
var AllColumnTypes = []ColumnType{
	TypeInteger,
	TypeBigInteger,
	TypeString,
	TypeText,
	TypeBoolean,
	TypeDateTime,
	TypeFloat,
	TypeBinary,
	TypeJSON,
}

// IsValid reports whether t is a known semantic type.
func (t ColumnType) IsValid() bool {
	for _, v := range AllColumnTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ReferentialAction is the ON DELETE behaviour of a foreign key.
type ReferentialAction string

const (
	ActionNoAction ReferentialAction = ""
	ActionCascade  ReferentialAction = "CASCADE"
	ActionSetNull  ReferentialAction = "SET NULL"
	ActionRestrict ReferentialAction = "RESTRICT"
)

// ForeignKey points a column at a column of another (or the same) table.
type ForeignKey struct {
	Table    string
	Column   string
	OnDelete ReferentialAction
}

// String returns the "table.column" form of the reference.
func (fk ForeignKey) String() string {
	return fk.Table + "." + fk.Column
}

// ColumnSpec is the complete definition of a column.
// Operations always carry the full target shape, not a delta, because
// backends that rebuild tables need the whole column.
type ColumnSpec struct {
	ForeignKey    *ForeignKey
	Name          string
	Type          ColumnType
	Default       string // raw SQL expression, empty means no default
	RawType       string // physical type as reflected; wins over Type when set
	Length        int
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
}

// Validate checks the column for obvious declaration mistakes.
func (c ColumnSpec) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("column has no name")
	}
	if c.RawType == "" && !c.Type.IsValid() {
		return fmt.Errorf("column %s: unknown type %q", c.Name, c.Type)
	}
	if c.Length < 0 {
		return fmt.Errorf("column %s: negative length %d", c.Name, c.Length)
	}
	if c.PrimaryKey && c.Nullable {
		return fmt.Errorf("column %s: primary key cannot be nullable", c.Name)
	}
	if c.ForeignKey != nil && (c.ForeignKey.Table == "" || c.ForeignKey.Column == "") {
		return fmt.Errorf("column %s: incomplete foreign key", c.Name)
	}
	return nil
}

// Renamed returns a copy of the column under a new name.
func (c ColumnSpec) Renamed(name string) ColumnSpec {
	c.Name = name
	return c
}

// NotNull returns a copy of the column marked NOT NULL.
func (c ColumnSpec) NotNull() ColumnSpec {
	c.Nullable = false
	return c
}

// WithDefault returns a copy of the column with the given raw SQL default.
func (c ColumnSpec) WithDefault(expr string) ColumnSpec {
	c.Default = expr
	return c
}

// WithUnique returns a copy of the column with a single-column unique constraint.
func (c ColumnSpec) WithUnique() ColumnSpec {
	c.Unique = true
	return c
}

// References returns a copy of the column with a foreign key to table.column.
func (c ColumnSpec) References(table, column string, onDelete ReferentialAction) ColumnSpec {
	c.ForeignKey = &ForeignKey{Table: table, Column: column, OnDelete: onDelete}
	return c
}

// PrimaryKeyColumn returns an auto-incrementing integer primary key column.
func PrimaryKeyColumn(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeInteger, PrimaryKey: true, AutoIncrement: true}
}

// Integer returns a nullable integer column.
func Integer(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeInteger, Nullable: true}
}

// BigInteger returns a nullable 64-bit integer column.
func BigInteger(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeBigInteger, Nullable: true}
}

// String returns a nullable bounded string column.
func String(name string, length int) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeString, Length: length, Nullable: true}
}

// Text returns a nullable unbounded text column.
func Text(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeText, Nullable: true}
}

// Boolean returns a nullable boolean column.
func Boolean(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeBoolean, Nullable: true}
}

// DateTime returns a nullable timestamp column.
func DateTime(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeDateTime, Nullable: true}
}

// Float returns a nullable double precision column.
func Float(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeFloat, Nullable: true}
}

// Binary returns a nullable binary column.
func Binary(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeBinary, Nullable: true}
}

// JSON returns a nullable JSON document column.
func JSON(name string) ColumnSpec {
	return ColumnSpec{Name: name, Type: TypeJSON, Nullable: true}
}

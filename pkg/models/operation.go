package models

import "fmt"

// OperationKind identifies a column operation variant.
type OperationKind string

const (
	OpAddColumn       OperationKind = "add_column"
	OpDropColumn      OperationKind = "drop_column"
	OpRenameColumn    OperationKind = "rename_column"
	OpAlterColumnType OperationKind = "alter_column_type"
)

// ColumnOperation is one abstract change to a table's columns.
// The concrete variants are AddColumn, DropColumn, RenameColumn and
// AlterColumnType.
type ColumnOperation interface {
	Kind() OperationKind
	Describe() string
}

// AddColumn adds Column to the table.
type AddColumn struct {
	Column ColumnSpec
}

func (AddColumn) Kind() OperationKind { return OpAddColumn }

func (o AddColumn) Describe() string {
	return fmt.Sprintf("add column %s", o.Column.Name)
}

// DropColumn removes the named column and its data.
type DropColumn struct {
	Name string
}

func (DropColumn) Kind() OperationKind { return OpDropColumn }

func (o DropColumn) Describe() string {
	return fmt.Sprintf("drop column %s", o.Name)
}

// RenameColumn renames OldName to Column.Name. Column is the full target
// definition of the renamed column.
type RenameColumn struct {
	OldName string
	Column  ColumnSpec
}

func (RenameColumn) Kind() OperationKind { return OpRenameColumn }

func (o RenameColumn) Describe() string {
	return fmt.Sprintf("rename column %s to %s", o.OldName, o.Column.Name)
}

// AlterColumnType changes a column to Column, optionally renaming it from
// OldName. LengthOnly marks a change that only widens or narrows a length
// bound, which backends that do not enforce lengths can skip.
type AlterColumnType struct {
	OldName    string
	Column     ColumnSpec
	LengthOnly bool
}

func (AlterColumnType) Kind() OperationKind { return OpAlterColumnType }

func (o AlterColumnType) Describe() string {
	if o.OldName != "" && o.OldName != o.Column.Name {
		return fmt.Sprintf("alter column %s to %s", o.OldName, o.Column.Name)
	}
	return fmt.Sprintf("alter column %s", o.Column.Name)
}

// SourceName is the name the column has before the change.
func (o AlterColumnType) SourceName() string {
	if o.OldName != "" {
		return o.OldName
	}
	return o.Column.Name
}

// ColumnRenameMap maps existing column names to their new definition.
// A nil value drops the column. Columns that are not mentioned are carried
// over unchanged under the same name.
type ColumnRenameMap map[string]*ColumnSpec

// Drop marks a column as dropped.
func (m ColumnRenameMap) Drop(name string) ColumnRenameMap {
	m[name] = nil
	return m
}

// Replace maps an existing column onto a new definition.
func (m ColumnRenameMap) Replace(name string, col ColumnSpec) ColumnRenameMap {
	m[name] = &col
	return m
}

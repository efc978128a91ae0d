// Package dialect translates abstract column and table definitions into
// backend-specific DDL and describes which column operations each backend
// can perform natively.
package dialect

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/schemaflow/pkg/models"
)

// Backend names, matching gorm's Dialector.Name() for the same drivers.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

var (
	// ErrUnsupportedColumnType is returned when a column cannot be rendered
	// for the active backend.
	ErrUnsupportedColumnType = errors.New("unsupported column type")
	// ErrNotSupported is returned when a native operation is requested from a
	// backend that cannot perform it. Callers should consult Plan first.
	ErrNotSupported = errors.New("operation not supported natively")
	// ErrUnknownDialect is returned by ForName for unrecognised backends.
	ErrUnknownDialect = errors.New("unknown dialect")
	// ErrTableNotFound is returned when reflecting a table that does not exist.
	ErrTableNotFound = errors.New("table not found")
)

// UnsupportedTypeError describes a column that has no rendering on a backend.
type UnsupportedTypeError struct {
	Dialect string
	Column  string
	Type    models.ColumnType
	Reason  string
}

func (e *UnsupportedTypeError) Error() string {
	msg := fmt.Sprintf("%s: column %s: type %q", e.Dialect, e.Column, e.Type)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedColumnType }

// Capabilities lists the column operations a backend performs in place.
type Capabilities struct {
	AddColumn       bool
	DropColumn      bool
	RenameColumn    bool
	AlterColumnType bool
	// EnforcesLength is false for backends that store any length in a
	// bounded string column. Length-only changes are no-ops there.
	EnforcesLength bool
	// TransactionalDDL is true when DDL statements take part in the
	// surrounding transaction and roll back with it.
	TransactionalDDL bool
}

// Dialect renders DDL for one backend and reflects live table structure.
type Dialect interface {
	Name() string
	Capabilities() Capabilities
	Quote(ident string) string

	// ColumnType renders only the physical type of col.
	ColumnType(col models.ColumnSpec) (string, error)
	// ColumnDefinition renders a full column definition without any
	// foreign key clause.
	ColumnDefinition(col models.ColumnSpec) (string, error)
	// CreateTable renders CREATE TABLE followed by any CREATE INDEX statements.
	CreateTable(def models.TableDefinition) ([]string, error)

	AddColumn(table string, col models.ColumnSpec) ([]string, error)
	DropColumn(table, name string) ([]string, error)
	RenameColumn(table, oldName string, col models.ColumnSpec) ([]string, error)
	AlterColumn(table, oldName string, col models.ColumnSpec) ([]string, error)

	RenameTable(from, to string) string
	DropTable(name string) string
	DropIndex(table, name string) string

	// ReflectTable reads the live structure of a table from the database.
	ReflectTable(tx *gorm.DB, name string) (models.TableDefinition, error)
	// IsMissingTable reports whether err means the queried table does not exist.
	IsMissingTable(err error) bool
}

// RebuildGuard is implemented by dialects whose table rebuilds need
// connection state adjusted around the step transaction.
type RebuildGuard interface {
	// GuardStep runs fn on a single pinned connection prepared before any
	// transaction is opened on it, and restores the connection afterwards.
	GuardStep(db *gorm.DB, fn func(conn *gorm.DB) error) error
	// BeginRebuild adjusts session state inside the step transaction while
	// a table is renamed out of the way. The returned function restores it.
	BeginRebuild(tx *gorm.DB) (func() error, error)
	// VerifyStep checks referential integrity before the step commits. It
	// runs at the end of every guarded step, since enforcement is off there.
	VerifyStep(tx *gorm.DB) error
}

// ForName returns the dialect registered under name.
func ForName(name string) (Dialect, error) {
	switch name {
	case Postgres:
		return NewPostgres(), nil
	case MySQL:
		return NewMySQL(), nil
	case SQLite, "sqlite3":
		return NewSQLite(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// Action is how a column operation is carried out on a backend.
type Action int

const (
	// ActionNative runs the operation as ALTER TABLE DDL.
	ActionNative Action = iota
	// ActionRebuild recreates the table with the new layout and copies rows.
	ActionRebuild
	// ActionNoop needs no physical change.
	ActionNoop
)

func (a Action) String() string {
	switch a {
	case ActionNative:
		return "native"
	case ActionRebuild:
		return "rebuild"
	case ActionNoop:
		return "noop"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Plan classifies op against the given capabilities.
func Plan(caps Capabilities, op models.ColumnOperation) Action {
	switch o := op.(type) {
	case models.AddColumn:
		if caps.AddColumn {
			return ActionNative
		}
	case models.DropColumn:
		if caps.DropColumn {
			return ActionNative
		}
	case models.RenameColumn:
		if caps.RenameColumn {
			return ActionNative
		}
	case models.AlterColumnType:
		if o.LengthOnly && !caps.EnforcesLength {
			return ActionNoop
		}
		if caps.AlterColumnType {
			return ActionNative
		}
	}
	return ActionRebuild
}

// NativeAdder is implemented by dialects whose ADD COLUMN accepts only some
// column shapes.
type NativeAdder interface {
	CanAddColumn(col models.ColumnSpec) bool
}

// PlanFor is Plan for a concrete dialect. Columns the dialect cannot add in
// place are added through a rebuild.
func PlanFor(d Dialect, op models.ColumnOperation) Action {
	action := Plan(d.Capabilities(), op)
	if add, ok := op.(models.AddColumn); ok && action == ActionNative {
		if adder, ok := d.(NativeAdder); ok && !adder.CanAddColumn(add.Column) {
			return ActionRebuild
		}
	}
	return action
}

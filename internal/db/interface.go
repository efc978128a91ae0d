// Package db defines the database interfaces consumed by the migration engine.
package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/thebtf/schemaflow/internal/db/dialect"
	"github.com/thebtf/schemaflow/pkg/models"
)

// ErrStoreUnavailable is returned when the version-store table cannot be
// queried, typically because it has not been created yet. Callers treat it
// as "no table is up to date".
var ErrStoreUnavailable = errors.New("schema version store unavailable")

// SessionFactory opens sessions against one backend. The engine uses it to
// start one transaction per table creation or version step; it does not
// manage connection pooling itself.
type SessionFactory interface {
	// Session returns a new session bound to ctx.
	Session(ctx context.Context) *gorm.DB
	// Dialect returns the DDL dialect of the backend.
	Dialect() dialect.Dialect
	// HasTable reports whether name exists physically.
	HasTable(ctx context.Context, name string) bool
}

// VersionStore persists the committed schema version of every managed table.
// All methods run on the session they are given so that bookkeeping shares
// the transaction of the DDL it accounts for.
type VersionStore interface {
	// Table returns the name of the metadata table.
	Table() string
	// Definition returns the declared structure of the metadata table.
	Definition() models.TableDefinition

	// GetVersion returns the committed version of table and whether a record
	// exists. It fails with ErrStoreUnavailable when the metadata table
	// cannot be queried.
	GetVersion(tx *gorm.DB, table string) (int, bool, error)
	// SetVersion upserts the record for table.
	SetVersion(tx *gorm.DB, table string, version int) error
	// IsUpToDate reports whether table exists physically and its record
	// equals declared.
	IsUpToDate(tx *gorm.DB, table string, declared int) (bool, error)
	// Versions returns every record keyed by table name.
	Versions(tx *gorm.DB) (map[string]int, error)
}

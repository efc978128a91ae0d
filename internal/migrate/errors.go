package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thebtf/schemaflow/internal/db"
	"github.com/thebtf/schemaflow/internal/db/dialect"
)

var (
	// ErrMissingUpgradeStep is returned when a table's step chain has a gap.
	ErrMissingUpgradeStep = errors.New("missing upgrade step")
	// ErrDependencyCycle is returned when the foreign key graph is cyclic.
	ErrDependencyCycle = errors.New("foreign key dependency cycle")
	// ErrUntrackedTable is returned when a managed table exists physically
	// but has no schema record.
	ErrUntrackedTable = errors.New("table exists without a schema record")
	// ErrRebuildArtifact is returned when a rebuild finds the temporary
	// table of an earlier, abandoned rebuild.
	ErrRebuildArtifact = errors.New("rebuild artifact present")
	// ErrRebuildUnsupported is returned when a rebuild is needed on a
	// backend whose DDL does not roll back with the transaction.
	ErrRebuildUnsupported = errors.New("table rebuild needs transactional DDL")
	// ErrColumnNotFound is returned when an operation names a column the
	// live table does not have.
	ErrColumnNotFound = errors.New("column not found")
	// ErrUnknownTable is returned for names not registered in the catalog.
	ErrUnknownTable = errors.New("unknown table")
	// ErrDuplicateTable is returned when a table is registered twice.
	ErrDuplicateTable = errors.New("table already registered")
	// ErrInvalidVersion is returned for declared versions below 1.
	ErrInvalidVersion = errors.New("invalid table version")

	// ErrStoreUnavailable and ErrUnsupportedColumnType are re-exported so
	// callers only need this package to classify migration failures.
	ErrStoreUnavailable      = db.ErrStoreUnavailable
	ErrUnsupportedColumnType = dialect.ErrUnsupportedColumnType
)

// CycleError reports a foreign key cycle. Path starts and ends with the
// same table.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDependencyCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrDependencyCycle }

// StepError wraps a failure while moving Table from version From to To.
// Create marks a failed table creation, where From is 0.
type StepError struct {
	Err    error
	Table  string
	From   int
	To     int
	Create bool
}

func (e *StepError) Error() string {
	if e.Create {
		return fmt.Sprintf("create table %s at version %d: %v", e.Table, e.To, e.Err)
	}
	return fmt.Sprintf("upgrade table %s from version %d to %d: %v", e.Table, e.From, e.To, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// OutOfDateError lists the tables whose stored version does not match the
// declared one.
type OutOfDateError struct {
	Tables []string
}

func (e *OutOfDateError) Error() string {
	return fmt.Sprintf("schema out of date: %s", strings.Join(e.Tables, ", "))
}

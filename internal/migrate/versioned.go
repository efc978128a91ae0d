// Package migrate brings the physical schema of a database in line with a
// declared, versioned data model.
//
// Every managed table carries a target version and a registry of upgrade
// steps keyed by source version. Creating a table materializes its declared
// definition directly and records the target version, so steps only exist
// for versions 1 through target-1. A step keyed 0 runs once, right after
// creation, in the same transaction.
package migrate

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"github.com/thebtf/schemaflow/pkg/models"
)

// UpgradeFunc moves a table from one version to the next. It runs inside
// the step transaction; returning an error rolls the step back.
type UpgradeFunc func(u *Upgrader) error

// VersionedTable pairs a table definition with its target version and the
// steps that reach it.
type VersionedTable struct {
	steps      map[int]UpgradeFunc
	Definition models.TableDefinition
	Version    int
}

// NewVersionedTable declares def at version.
func NewVersionedTable(def models.TableDefinition, version int) *VersionedTable {
	return &VersionedTable{
		Definition: def,
		Version:    version,
		steps:      make(map[int]UpgradeFunc),
	}
}

// Name returns the table name.
func (t *VersionedTable) Name() string { return t.Definition.Name }

// Step registers fn as the upgrade from version from to from+1.
// Registering the same source version twice replaces the earlier step.
func (t *VersionedTable) Step(from int, fn UpgradeFunc) *VersionedTable {
	t.steps[from] = fn
	return t
}

// Ops registers a step made only of column operations.
func (t *VersionedTable) Ops(from int, ops ...models.ColumnOperation) *VersionedTable {
	return t.Step(from, func(u *Upgrader) error {
		return u.Apply(ops...)
	})
}

// OnCreate registers a hook that runs right after the table is created.
func (t *VersionedTable) OnCreate(fn UpgradeFunc) *VersionedTable {
	return t.Step(0, fn)
}

func (t *VersionedTable) step(from int) (UpgradeFunc, bool) {
	fn, ok := t.steps[from]
	return fn, ok && fn != nil
}

// StepVersions returns the registered source versions in ascending order.
func (t *VersionedTable) StepVersions() []int {
	versions := make([]int, 0, len(t.steps))
	for v := range t.steps {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions
}

// Validate checks the definition and that the step chain from 1 to Version
// has no gaps or strays.
func (t *VersionedTable) Validate() error {
	var errs error
	if err := t.Definition.Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if t.Version < 1 {
		errs = multierr.Append(errs, fmt.Errorf("%w: table %s declares version %d", ErrInvalidVersion, t.Name(), t.Version))
	}
	for v := 1; v < t.Version; v++ {
		if _, ok := t.step(v); !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: table %s has no step %d -> %d", ErrMissingUpgradeStep, t.Name(), v, v+1))
		}
	}
	for _, v := range t.StepVersions() {
		if v < 0 || (v >= t.Version && v != 0) {
			errs = multierr.Append(errs, fmt.Errorf("table %s: step %d -> %d is outside declared version %d", t.Name(), v, v+1, t.Version))
		}
	}
	return errs
}

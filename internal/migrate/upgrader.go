package migrate

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/thebtf/schemaflow/internal/db/dialect"
	"github.com/thebtf/schemaflow/pkg/models"
)

// Upgrader is the context handed to an UpgradeFunc. Every operation runs
// on the step transaction.
type Upgrader struct {
	tx        *gorm.DB
	dialect   dialect.Dialect
	rebuilder *TableRebuilder
	log       zerolog.Logger
	table     models.TableDefinition
}

func newUpgrader(tx *gorm.DB, d dialect.Dialect, rebuilder *TableRebuilder, table models.TableDefinition, log zerolog.Logger) *Upgrader {
	return &Upgrader{
		tx:        tx,
		dialect:   d,
		rebuilder: rebuilder,
		table:     table,
		log:       log,
	}
}

// Tx returns the step transaction for data migrations.
func (u *Upgrader) Tx() *gorm.DB { return u.tx }

// Dialect returns the backend dialect.
func (u *Upgrader) Dialect() dialect.Dialect { return u.dialect }

// Table returns the name of the table being upgraded.
func (u *Upgrader) Table() string { return u.table.Name }

// Exec runs a raw statement in the step transaction.
func (u *Upgrader) Exec(sql string, args ...any) error {
	if err := u.tx.Exec(sql, args...).Error; err != nil {
		return fmt.Errorf("exec on %s: %w", u.table.Name, err)
	}
	return nil
}

// AddColumn adds col to the table.
func (u *Upgrader) AddColumn(col models.ColumnSpec) error {
	return u.Apply(models.AddColumn{Column: col})
}

// DropColumn removes the named column.
func (u *Upgrader) DropColumn(name string) error {
	return u.Apply(models.DropColumn{Name: name})
}

// RenameColumn renames oldName to col.Name, which is its full new definition.
func (u *Upgrader) RenameColumn(oldName string, col models.ColumnSpec) error {
	return u.Apply(models.RenameColumn{OldName: oldName, Column: col})
}

// AlterColumn changes a column's definition to col. oldName may be empty
// when the name does not change.
func (u *Upgrader) AlterColumn(col models.ColumnSpec, oldName string, lengthOnly bool) error {
	return u.Apply(models.AlterColumnType{Column: col, OldName: oldName, LengthOnly: lengthOnly})
}

// Apply runs ops in order, natively where the backend supports them and
// through a table rebuild otherwise.
func (u *Upgrader) Apply(ops ...models.ColumnOperation) error {
	for _, op := range ops {
		action := dialect.PlanFor(u.dialect, op)
		u.log.Debug().
			Str("table", u.table.Name).
			Str("op", op.Describe()).
			Stringer("action", action).
			Msg("Applying column operation")

		var err error
		switch action {
		case dialect.ActionNoop:
			continue
		case dialect.ActionNative:
			err = u.native(op)
		case dialect.ActionRebuild:
			err = u.rebuild(op)
		}
		if err != nil {
			return fmt.Errorf("%s on %s: %w", op.Describe(), u.table.Name, err)
		}
	}
	return nil
}

func (u *Upgrader) native(op models.ColumnOperation) error {
	var (
		stmts []string
		err   error
	)
	switch o := op.(type) {
	case models.AddColumn:
		stmts, err = u.dialect.AddColumn(u.table.Name, o.Column)
	case models.DropColumn:
		stmts, err = u.dialect.DropColumn(u.table.Name, o.Name)
	case models.RenameColumn:
		stmts, err = u.dialect.RenameColumn(u.table.Name, o.OldName, o.Column)
	case models.AlterColumnType:
		stmts, err = u.dialect.AlterColumn(u.table.Name, o.SourceName(), o.Column)
	default:
		return fmt.Errorf("unknown column operation %T", op)
	}
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := u.tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (u *Upgrader) rebuild(op models.ColumnOperation) error {
	changes := models.ColumnRenameMap{}
	var added []models.ColumnSpec
	switch o := op.(type) {
	case models.AddColumn:
		added = append(added, o.Column)
	case models.DropColumn:
		changes.Drop(o.Name)
	case models.RenameColumn:
		changes.Replace(o.OldName, o.Column)
	case models.AlterColumnType:
		changes.Replace(o.SourceName(), o.Column)
	default:
		return fmt.Errorf("unknown column operation %T", op)
	}
	return u.rebuilder.Rebuild(u.tx, u.table, changes, added...)
}

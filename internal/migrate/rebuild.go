package migrate

import (
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/thebtf/schemaflow/internal/db/dialect"
	"github.com/thebtf/schemaflow/pkg/models"
)

// rebuildSuffix names the shadow table a rebuild moves the live table to.
const rebuildSuffix = "_old"

// TableRebuilder performs column changes a backend cannot do in place by
// recreating the table with the new layout and copying every row across.
type TableRebuilder struct {
	dialect dialect.Dialect
	log     zerolog.Logger
}

// NewTableRebuilder creates a rebuilder for d.
func NewTableRebuilder(d dialect.Dialect, log zerolog.Logger) *TableRebuilder {
	return &TableRebuilder{
		dialect: d,
		log:     log.With().Str("component", "rebuilder").Logger(),
	}
}

// Rebuild applies changes and added columns to the live table named by
// declared. The live structure is reflected from tx; declared contributes
// table options and any indexes or unique constraints whose columns exist
// after the change. tx must be a transaction; backends without
// transactional DDL are refused with ErrRebuildUnsupported.
func (r *TableRebuilder) Rebuild(tx *gorm.DB, declared models.TableDefinition, changes models.ColumnRenameMap, added ...models.ColumnSpec) (err error) {
	name := declared.Name
	temp := name + rebuildSuffix

	if !r.dialect.Capabilities().TransactionalDDL {
		return fmt.Errorf("%w: %s cannot roll back a failed rebuild of %s", ErrRebuildUnsupported, r.dialect.Name(), name)
	}

	live, err := r.dialect.ReflectTable(tx, name)
	if err != nil {
		return err
	}
	if tx.Migrator().HasTable(temp) {
		return fmt.Errorf("%w: table %s must be inspected and dropped before %s can be rebuilt", ErrRebuildArtifact, temp, name)
	}
	for old := range changes {
		if _, ok := live.Column(old); !ok {
			return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, name, old)
		}
	}

	target, dst, src := rebuildLayout(live, changes, added)
	target.Options = declared.Options
	mergeConstraints(&target, declared)

	r.log.Debug().
		Str("table", name).
		Strs("columns", target.ColumnNames()).
		Int("copied", len(dst)).
		Msg("Rebuilding table")

	guard, guarded := r.dialect.(dialect.RebuildGuard)
	if guarded {
		restore, err := guard.BeginRebuild(tx)
		if err != nil {
			return err
		}
		defer func() {
			if rerr := restore(); rerr != nil && err == nil {
				err = rerr
			}
		}()
	}

	stmts := []string{r.dialect.RenameTable(name, temp)}
	// Index names are global on some backends and stay with the shadow table.
	for _, ix := range live.Indexes {
		stmts = append(stmts, r.dialect.DropIndex(temp, ix.Name))
	}
	create, err := r.dialect.CreateTable(target)
	if err != nil {
		return err
	}
	stmts = append(stmts, create...)
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("rebuild %s: %w", name, err)
		}
	}

	if len(dst) > 0 {
		if err := r.copyRows(tx, name, temp, dst, src); err != nil {
			return err
		}
	}

	if err := tx.Exec(r.dialect.DropTable(temp)).Error; err != nil {
		return fmt.Errorf("rebuild %s: drop %s: %w", name, temp, err)
	}
	if guarded {
		if err := guard.VerifyStep(tx); err != nil {
			return fmt.Errorf("rebuild %s: %w", name, err)
		}
	}
	return nil
}

func (r *TableRebuilder) copyRows(tx *gorm.DB, name, temp string, dst, src []string) error {
	quote := func(idents []string) []string {
		out := make([]string, len(idents))
		for i, id := range idents {
			out[i] = r.dialect.Quote(id)
		}
		return out
	}

	query, args, err := sq.Insert(r.dialect.Quote(name)).
		Columns(quote(dst)...).
		Select(sq.Select(quote(src)...).From(r.dialect.Quote(temp))).
		ToSql()
	if err != nil {
		return fmt.Errorf("rebuild %s: build copy: %w", name, err)
	}

	result := tx.Exec(query, args...)
	if result.Error != nil {
		return fmt.Errorf("rebuild %s: copy rows: %w", name, result.Error)
	}

	var before int64
	if err := tx.Table(temp).Count(&before).Error; err != nil {
		return fmt.Errorf("rebuild %s: count rows: %w", name, err)
	}
	if result.RowsAffected != before {
		return fmt.Errorf("rebuild %s: copied %d of %d rows", name, result.RowsAffected, before)
	}
	return nil
}

// rebuildLayout computes the post-change table and the column pairs the
// copy projects: dst[i] in the new table is filled from src[i] in the old.
func rebuildLayout(live models.TableDefinition, changes models.ColumnRenameMap, added []models.ColumnSpec) (models.TableDefinition, []string, []string) {
	target := models.TableDefinition{Name: live.Name}
	renamed := make(map[string]string, len(live.Columns))
	var dst, src []string

	for _, col := range live.Columns {
		next := col
		if spec, ok := changes[col.Name]; ok {
			if spec == nil {
				continue
			}
			next = *spec
		}
		target.Columns = append(target.Columns, next)
		renamed[col.Name] = next.Name
		dst = append(dst, next.Name)
		src = append(src, col.Name)
	}
	target.Columns = append(target.Columns, added...)

	for _, u := range live.Uniques {
		if cols, ok := renameAll(u.Columns, renamed); ok {
			target.Uniques = append(target.Uniques, models.UniqueConstraint{Name: u.Name, Columns: cols})
		}
	}
	for _, ix := range live.Indexes {
		if cols, ok := renameAll(ix.Columns, renamed); ok {
			target.Indexes = append(target.Indexes, models.Index{Name: ix.Name, Columns: cols, Unique: ix.Unique})
		}
	}
	return target, dst, src
}

// mergeConstraints adds the declared indexes and unique constraints that
// fit target's columns and are not already present.
func mergeConstraints(target *models.TableDefinition, declared models.TableDefinition) {
	for _, u := range declared.Uniques {
		if !target.HasColumns(u.Columns...) {
			continue
		}
		exists := slices.ContainsFunc(target.Uniques, func(have models.UniqueConstraint) bool {
			return slices.Equal(have.Columns, u.Columns)
		})
		if !exists {
			target.Uniques = append(target.Uniques, u)
		}
	}
	for _, ix := range declared.Indexes {
		if !target.HasColumns(ix.Columns...) {
			continue
		}
		exists := slices.ContainsFunc(target.Indexes, func(have models.Index) bool {
			return have.Name == ix.Name
		})
		if !exists {
			target.Indexes = append(target.Indexes, ix)
		}
	}
}

func renameAll(cols []string, renamed map[string]string) ([]string, bool) {
	out := make([]string, len(cols))
	for i, c := range cols {
		next, ok := renamed[c]
		if !ok {
			return nil, false
		}
		out[i] = next
	}
	return out, true
}

package gorm

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/schemaflow/internal/db"
	"github.com/thebtf/schemaflow/internal/db/dialect"
	"github.com/thebtf/schemaflow/pkg/models"
)

// SchemaStore records per-table schema versions in a metadata table.
type SchemaStore struct {
	dialect dialect.Dialect
	table   string
}

var _ db.VersionStore = (*SchemaStore)(nil)

// NewSchemaStore creates a SchemaStore over table. An empty name selects
// DefaultSchemaTable.
func NewSchemaStore(d dialect.Dialect, table string) *SchemaStore {
	if table == "" {
		table = DefaultSchemaTable
	}
	return &SchemaStore{dialect: d, table: table}
}

// Table returns the metadata table name.
func (s *SchemaStore) Table() string { return s.table }

// Definition returns the metadata table layout.
func (s *SchemaStore) Definition() models.TableDefinition {
	return models.NewTable(s.table,
		models.PrimaryKeyColumn("id"),
		models.String("table_name", 64).NotNull().WithUnique(),
		models.Integer("version").NotNull(),
	)
}

// GetVersion returns the committed version for table. The metadata table is
// checked first so that a missing store never aborts an open transaction.
func (s *SchemaStore) GetVersion(tx *gorm.DB, table string) (int, bool, error) {
	if !tx.Migrator().HasTable(s.table) {
		return 0, false, fmt.Errorf("%w: table %s does not exist", db.ErrStoreUnavailable, s.table)
	}

	var rec SchemaRecord
	result := tx.Table(s.table).Where("table_name = ?", table).Limit(1).Find(&rec)
	if result.Error != nil {
		if s.dialect.IsMissingTable(result.Error) {
			return 0, false, fmt.Errorf("%w: %w", db.ErrStoreUnavailable, result.Error)
		}
		return 0, false, fmt.Errorf("get version of %s: %w", table, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, false, nil
	}
	return rec.Version, true, nil
}

// SetVersion inserts or updates the record for table.
func (s *SchemaStore) SetVersion(tx *gorm.DB, table string, version int) error {
	rec := SchemaRecord{Name: table, Version: version}
	err := tx.Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "table_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"version"}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("set version of %s to %d: %w", table, version, err)
	}
	return nil
}

// IsUpToDate reports whether table exists and is recorded at declared.
// An unavailable store means nothing is up to date.
func (s *SchemaStore) IsUpToDate(tx *gorm.DB, table string, declared int) (bool, error) {
	if !tx.Migrator().HasTable(table) {
		return false, nil
	}
	version, ok, err := s.GetVersion(tx, table)
	if err != nil {
		if errors.Is(err, db.ErrStoreUnavailable) {
			return false, nil
		}
		return false, err
	}
	return ok && version == declared, nil
}

// Versions returns all records keyed by table name.
func (s *SchemaStore) Versions(tx *gorm.DB) (map[string]int, error) {
	if !tx.Migrator().HasTable(s.table) {
		return nil, fmt.Errorf("%w: table %s does not exist", db.ErrStoreUnavailable, s.table)
	}

	var recs []SchemaRecord
	if err := tx.Table(s.table).Order("table_name").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	versions := make(map[string]int, len(recs))
	for _, r := range recs {
		versions[r.Name] = r.Version
	}
	return versions, nil
}

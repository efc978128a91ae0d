package dialect

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/thebtf/schemaflow/pkg/models"
)

// reflectWithMigrator reflects columns through gorm's migrator, which knows
// each driver's information_schema queries. Constraints other than primary
// key and single-column uniqueness are not recovered.
func reflectWithMigrator(tx *gorm.DB, name string) (models.TableDefinition, error) {
	def := models.TableDefinition{Name: name}

	m := tx.Migrator()
	if !m.HasTable(name) {
		return def, fmt.Errorf("reflect %s: %w", name, ErrTableNotFound)
	}

	types, err := m.ColumnTypes(name)
	if err != nil {
		return def, fmt.Errorf("reflect %s columns: %w", name, err)
	}

	for _, ct := range types {
		col := models.ColumnSpec{Name: ct.Name(), Nullable: true}
		if full, ok := ct.ColumnType(); ok && full != "" {
			col.RawType = full
		} else {
			col.RawType = ct.DatabaseTypeName()
		}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		if pk, ok := ct.PrimaryKey(); ok && pk {
			col.PrimaryKey = true
			col.Nullable = false
		}
		if unique, ok := ct.Unique(); ok {
			col.Unique = unique && !col.PrimaryKey
		}
		if ai, ok := ct.AutoIncrement(); ok {
			col.AutoIncrement = ai
		}
		if dflt, ok := ct.DefaultValue(); ok && !col.AutoIncrement {
			col.Default = dflt
		}
		// Sequence defaults belong to the SERIAL type, not the column.
		if strings.HasPrefix(col.Default, "nextval(") {
			col.Default = ""
			col.AutoIncrement = true
		}
		col.Type, col.Length = InferType(col.RawType)
		def.Columns = append(def.Columns, col)
	}
	return def, nil
}

package dialect

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/thebtf/schemaflow/pkg/models"
)

// pgUndefinedTable is SQLSTATE 42P01.
const pgUndefinedTable = "42P01"

// PostgresDialect renders DDL for PostgreSQL, which alters columns in place.
type PostgresDialect struct {
	builder
}

// NewPostgres returns the PostgreSQL dialect.
func NewPostgres() *PostgresDialect {
	d := &PostgresDialect{}
	d.builder = builder{
		name:   Postgres,
		quote:  pq.QuoteIdentifier,
		typeOf: d.typeOf,
	}
	return d
}

func (d *PostgresDialect) Name() string { return Postgres }

func (d *PostgresDialect) Capabilities() Capabilities {
	return Capabilities{
		AddColumn:        true,
		DropColumn:       true,
		RenameColumn:     true,
		AlterColumnType:  true,
		EnforcesLength:   true,
		TransactionalDDL: true,
	}
}

func (d *PostgresDialect) typeOf(col models.ColumnSpec) (string, error) {
	switch col.Type {
	case models.TypeInteger:
		if col.AutoIncrement {
			return "SERIAL", nil
		}
		return "INTEGER", nil
	case models.TypeBigInteger:
		if col.AutoIncrement {
			return "BIGSERIAL", nil
		}
		return "BIGINT", nil
	case models.TypeString:
		return varchar(col), nil
	case models.TypeText:
		return "TEXT", nil
	case models.TypeBoolean:
		return "BOOLEAN", nil
	case models.TypeDateTime:
		return "TIMESTAMP", nil
	case models.TypeFloat:
		return "DOUBLE PRECISION", nil
	case models.TypeBinary:
		return "BYTEA", nil
	case models.TypeJSON:
		return "JSONB", nil
	default:
		return "", unsupported(Postgres, col, "")
	}
}

func (d *PostgresDialect) AddColumn(table string, col models.ColumnSpec) ([]string, error) {
	return d.addColumnInline(table, col)
}

func (d *PostgresDialect) DropColumn(table, name string) ([]string, error) {
	return d.dropColumn(table, name)
}

func (d *PostgresDialect) RenameColumn(table, oldName string, col models.ColumnSpec) ([]string, error) {
	return []string{"ALTER TABLE " + d.quote(table) + " RENAME COLUMN " + d.quote(oldName) + " TO " + d.quote(col.Name)}, nil
}

// AlterColumn renames first when oldName differs, then changes the type and
// nullability. SERIAL is not a real type, so auto-increment is ignored here.
func (d *PostgresDialect) AlterColumn(table, oldName string, col models.ColumnSpec) ([]string, error) {
	var stmts []string
	if oldName != "" && oldName != col.Name {
		rename, err := d.RenameColumn(table, oldName, col)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, rename...)
	}

	plain := col
	plain.AutoIncrement = false
	typ, err := d.ColumnType(plain)
	if err != nil {
		return nil, err
	}

	prefix := "ALTER TABLE " + d.quote(table) + " ALTER COLUMN " + d.quote(col.Name)
	stmts = append(stmts, prefix+" TYPE "+typ)
	if col.Nullable {
		stmts = append(stmts, prefix+" DROP NOT NULL")
	} else {
		stmts = append(stmts, prefix+" SET NOT NULL")
	}
	return stmts, nil
}

func (d *PostgresDialect) ReflectTable(tx *gorm.DB, name string) (models.TableDefinition, error) {
	return reflectWithMigrator(tx, name)
}

func (d *PostgresDialect) IsMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}

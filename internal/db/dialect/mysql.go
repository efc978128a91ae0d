package dialect

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/thebtf/schemaflow/pkg/models"
)

const (
	// mysqlNoSuchTable is ER_NO_SUCH_TABLE.
	mysqlNoSuchTable = 1146
	// DefaultMySQLEngine is used unless a table sets the "mysql_engine" option.
	DefaultMySQLEngine = "InnoDB"
)

// MySQLDialect renders DDL for MySQL/MariaDB. Renames and type changes both
// go through ALTER TABLE ... CHANGE, which restates the whole column.
type MySQLDialect struct {
	builder
}

// NewMySQL returns the MySQL dialect.
func NewMySQL() *MySQLDialect {
	d := &MySQLDialect{}
	d.builder = builder{
		name:        MySQL,
		quote:       quoteBacktick,
		typeOf:      d.typeOf,
		autoInc:     "AUTO_INCREMENT",
		tableSuffix: mysqlTableOptions,
	}
	return d
}

func quoteBacktick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func mysqlTableOptions(def models.TableDefinition) string {
	engine := def.Options["mysql_engine"]
	if engine == "" {
		engine = DefaultMySQLEngine
	}
	suffix := " ENGINE=" + engine
	if charset := def.Options["mysql_charset"]; charset != "" {
		suffix += " DEFAULT CHARSET=" + charset
	}
	return suffix
}

func (d *MySQLDialect) Name() string { return MySQL }

// Capabilities reports native support for everything. DDL is not
// transactional: MySQL commits implicitly around each statement.
func (d *MySQLDialect) Capabilities() Capabilities {
	return Capabilities{
		AddColumn:       true,
		DropColumn:      true,
		RenameColumn:    true,
		AlterColumnType: true,
		EnforcesLength:  true,
	}
}

func (d *MySQLDialect) typeOf(col models.ColumnSpec) (string, error) {
	switch col.Type {
	case models.TypeInteger:
		return "INT", nil
	case models.TypeBigInteger:
		return "BIGINT", nil
	case models.TypeString:
		if col.Length <= 0 {
			return "", unsupported(MySQL, col, "VARCHAR requires a length")
		}
		return varchar(col), nil
	case models.TypeText:
		return "TEXT", nil
	case models.TypeBoolean:
		return "BOOL", nil
	case models.TypeDateTime:
		return "DATETIME", nil
	case models.TypeFloat:
		return "DOUBLE", nil
	case models.TypeBinary:
		return "BLOB", nil
	case models.TypeJSON:
		return "JSON", nil
	default:
		return "", unsupported(MySQL, col, "")
	}
}

// AddColumn adds the foreign key as a separate clause; MySQL silently
// ignores inline REFERENCES.
func (d *MySQLDialect) AddColumn(table string, col models.ColumnSpec) ([]string, error) {
	def, err := d.ColumnDefinition(col)
	if err != nil {
		return nil, err
	}
	stmt := "ALTER TABLE " + d.quote(table) + " ADD COLUMN " + def
	if col.ForeignKey != nil {
		stmt += ", ADD FOREIGN KEY (" + d.quote(col.Name) + ") " + d.references(*col.ForeignKey)
	}
	return []string{stmt}, nil
}

func (d *MySQLDialect) DropColumn(table, name string) ([]string, error) {
	return d.dropColumn(table, name)
}

func (d *MySQLDialect) RenameColumn(table, oldName string, col models.ColumnSpec) ([]string, error) {
	return d.AlterColumn(table, oldName, col)
}

// AlterColumn restates the column with CHANGE. The primary key is left out of
// the definition because repeating it would declare a second primary key.
func (d *MySQLDialect) AlterColumn(table, oldName string, col models.ColumnSpec) ([]string, error) {
	src := oldName
	if src == "" {
		src = col.Name
	}
	def, err := d.columnDefinition(col, false)
	if err != nil {
		return nil, err
	}
	return []string{"ALTER TABLE " + d.quote(table) + " CHANGE " + d.quote(src) + " " + def}, nil
}

func (d *MySQLDialect) RenameTable(from, to string) string {
	return "RENAME TABLE " + d.quote(from) + " TO " + d.quote(to)
}

func (d *MySQLDialect) DropIndex(table, name string) string {
	return "DROP INDEX " + d.quote(name) + " ON " + d.quote(table)
}

func (d *MySQLDialect) ReflectTable(tx *gorm.DB, name string) (models.TableDefinition, error) {
	return reflectWithMigrator(tx, name)
}

func (d *MySQLDialect) IsMissingTable(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlNoSuchTable
}

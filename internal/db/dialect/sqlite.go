package dialect

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"modernc.org/sqlite"

	"github.com/thebtf/schemaflow/pkg/models"
)

var (
	sqliteAutoIncrement = regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`)
	sqliteTimeDefault   = regexp.MustCompile(`(?i)^CURRENT_(TIME|DATE|TIMESTAMP)$`)
	sqliteLiteral       = regexp.MustCompile(`(?i)^(NULL|TRUE|FALSE|CURRENT_TIME|CURRENT_DATE|CURRENT_TIMESTAMP|[+-]?[0-9]+(\.[0-9]+)?|'(?:[^']|'')*'|X'[0-9A-F]*')$`)
)

// SQLiteDialect renders DDL for SQLite. Only ADD COLUMN is performed in
// place; every other column change goes through a table rebuild.
type SQLiteDialect struct {
	builder
}

// NewSQLite returns the SQLite dialect.
func NewSQLite() *SQLiteDialect {
	d := &SQLiteDialect{}
	d.builder = builder{
		name:        SQLite,
		quote:       quoteDouble,
		typeOf:      d.typeOf,
		pkAutoInc:   "AUTOINCREMENT",
		defaultExpr: sqliteDefault,
	}
	return d
}

func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// sqliteDefault wraps anything that is not a plain literal in parentheses,
// which SQLite requires for expression defaults.
func sqliteDefault(expr string) string {
	expr = strings.TrimSpace(expr)
	if sqliteLiteral.MatchString(expr) || strings.HasPrefix(expr, "(") {
		return expr
	}
	return "(" + expr + ")"
}

func (d *SQLiteDialect) Name() string { return SQLite }

func (d *SQLiteDialect) Capabilities() Capabilities {
	return Capabilities{
		AddColumn:        true,
		TransactionalDDL: true,
	}
}

func (d *SQLiteDialect) typeOf(col models.ColumnSpec) (string, error) {
	switch col.Type {
	case models.TypeInteger:
		return "INTEGER", nil
	case models.TypeBigInteger:
		// Only INTEGER PRIMARY KEY aliases the rowid.
		if col.PrimaryKey && col.AutoIncrement {
			return "INTEGER", nil
		}
		return "BIGINT", nil
	case models.TypeString:
		return varchar(col), nil
	case models.TypeText:
		return "TEXT", nil
	case models.TypeBoolean:
		return "BOOLEAN", nil
	case models.TypeDateTime:
		return "DATETIME", nil
	case models.TypeFloat:
		return "REAL", nil
	case models.TypeBinary:
		return "BLOB", nil
	case models.TypeJSON:
		return "", unsupported(SQLite, col, "no native JSON type; declare the column as text")
	default:
		return "", unsupported(SQLite, col, "")
	}
}

// CanAddColumn reports whether ALTER TABLE ADD COLUMN accepts col. SQLite
// rejects key and unique columns, defaults that are not constants, NOT NULL
// without a default and references with a non-NULL default.
func (d *SQLiteDialect) CanAddColumn(col models.ColumnSpec) bool {
	if col.PrimaryKey || col.Unique {
		return false
	}
	dflt := strings.TrimSpace(col.Default)
	noDefault := dflt == "" || strings.EqualFold(dflt, "NULL")
	if !noDefault && (!sqliteLiteral.MatchString(dflt) || sqliteTimeDefault.MatchString(dflt)) {
		return false
	}
	if !col.Nullable && noDefault {
		return false
	}
	return col.ForeignKey == nil || noDefault
}

func (d *SQLiteDialect) AddColumn(table string, col models.ColumnSpec) ([]string, error) {
	return d.addColumnInline(table, col)
}

func (d *SQLiteDialect) DropColumn(table, name string) ([]string, error) {
	return nil, fmt.Errorf("sqlite: drop column %s.%s: %w", table, name, ErrNotSupported)
}

func (d *SQLiteDialect) RenameColumn(table, oldName string, col models.ColumnSpec) ([]string, error) {
	return nil, fmt.Errorf("sqlite: rename column %s.%s: %w", table, oldName, ErrNotSupported)
}

func (d *SQLiteDialect) AlterColumn(table, oldName string, col models.ColumnSpec) ([]string, error) {
	return nil, fmt.Errorf("sqlite: alter column %s.%s: %w", table, col.Name, ErrNotSupported)
}

// GuardStep pins one connection and disables foreign key enforcement on it
// for the duration of fn. SQLite ignores the pragma inside a transaction, and
// with enforcement on a table rename rewrites the references held by other
// tables. Enforcement is restored even if fn fails.
func (d *SQLiteDialect) GuardStep(db *gorm.DB, fn func(conn *gorm.DB) error) error {
	return db.Connection(func(pinned *gorm.DB) (err error) {
		conn := pinned.Session(&gorm.Session{})

		var enabled int
		if err := conn.Raw("PRAGMA foreign_keys").Scan(&enabled).Error; err != nil {
			return fmt.Errorf("read foreign_keys: %w", err)
		}
		if enabled == 0 {
			return fn(conn)
		}

		if err := conn.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
			return fmt.Errorf("disable foreign_keys: %w", err)
		}
		defer func() {
			if rerr := conn.Exec("PRAGMA foreign_keys = ON").Error; rerr != nil && err == nil {
				err = fmt.Errorf("restore foreign_keys: %w", rerr)
			}
		}()
		return fn(conn)
	})
}

// BeginRebuild turns on legacy_alter_table so that, together with foreign
// keys being off, renaming a table out of the way leaves references to it in
// other tables untouched.
func (d *SQLiteDialect) BeginRebuild(tx *gorm.DB) (func() error, error) {
	if err := tx.Exec("PRAGMA legacy_alter_table = ON").Error; err != nil {
		return nil, fmt.Errorf("enable legacy_alter_table: %w", err)
	}
	return func() error {
		return tx.Exec("PRAGMA legacy_alter_table = OFF").Error
	}, nil
}

type sqliteFKViolation struct {
	Table  string        `gorm:"column:table"`
	Parent string        `gorm:"column:parent"`
	RowID  sql.NullInt64 `gorm:"column:rowid"`
}

// VerifyStep runs foreign_key_check over the whole database, since the step
// wrote rows while enforcement was off.
func (d *SQLiteDialect) VerifyStep(tx *gorm.DB) error {
	var violations []sqliteFKViolation
	if err := tx.Raw("PRAGMA foreign_key_check").Scan(&violations).Error; err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	if len(violations) == 0 {
		return nil
	}
	v := violations[0]
	return fmt.Errorf("foreign key violation: %s row %d references missing %s row (%d violations)",
		v.Table, v.RowID.Int64, v.Parent, len(violations))
}

func (d *SQLiteDialect) IsMissingTable(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), "no such table")
	}
	return strings.Contains(err.Error(), "no such table")
}

type sqliteColumnInfo struct {
	Name      string         `gorm:"column:name"`
	Type      string         `gorm:"column:type"`
	DfltValue sql.NullString `gorm:"column:dflt_value"`
	NotNull   int            `gorm:"column:notnull"`
	PK        int            `gorm:"column:pk"`
}

type sqliteIndexInfo struct {
	Name   string `gorm:"column:name"`
	Origin string `gorm:"column:origin"`
	Unique int    `gorm:"column:unique"`
}

type sqliteForeignKeyInfo struct {
	Table    string         `gorm:"column:table"`
	From     string         `gorm:"column:from"`
	To       sql.NullString `gorm:"column:to"`
	OnDelete string         `gorm:"column:on_delete"`
	ID       int            `gorm:"column:id"`
}

// ReflectTable reads columns, unique constraints, indexes and foreign keys
// through SQLite's pragma table functions.
func (d *SQLiteDialect) ReflectTable(tx *gorm.DB, name string) (models.TableDefinition, error) {
	def := models.TableDefinition{Name: name}

	var cols []sqliteColumnInfo
	if err := tx.Raw(`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, name).
		Scan(&cols).Error; err != nil {
		return def, fmt.Errorf("reflect %s columns: %w", name, err)
	}
	if len(cols) == 0 {
		return def, fmt.Errorf("reflect %s: %w", name, ErrTableNotFound)
	}

	var createSQL string
	if err := tx.Raw(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, name).
		Scan(&createSQL).Error; err != nil {
		return def, fmt.Errorf("reflect %s definition: %w", name, err)
	}

	pkCount := 0
	for _, c := range cols {
		if c.PK > 0 {
			pkCount++
		}
	}

	for _, c := range cols {
		raw := c.Type
		if raw == "" {
			raw = "BLOB"
		}
		col := models.ColumnSpec{
			Name:       c.Name,
			RawType:    raw,
			Nullable:   c.NotNull == 0 && c.PK == 0,
			PrimaryKey: c.PK > 0,
		}
		col.Type, col.Length = InferType(raw)
		if c.DfltValue.Valid {
			col.Default = c.DfltValue.String
		}
		if col.PrimaryKey && pkCount == 1 && strings.EqualFold(raw, "INTEGER") && sqliteAutoIncrement.MatchString(createSQL) {
			col.AutoIncrement = true
		}
		def.Columns = append(def.Columns, col)
	}

	var indexes []sqliteIndexInfo
	if err := tx.Raw(`SELECT name, "unique", origin FROM pragma_index_list(?)`, name).
		Scan(&indexes).Error; err != nil {
		return def, fmt.Errorf("reflect %s indexes: %w", name, err)
	}
	for _, ix := range indexes {
		if ix.Origin == "pk" {
			continue
		}
		var columns []string
		if err := tx.Raw(`SELECT name FROM pragma_index_info(?) ORDER BY seqno`, ix.Name).
			Scan(&columns).Error; err != nil {
			return def, fmt.Errorf("reflect index %s: %w", ix.Name, err)
		}
		switch {
		case ix.Origin == "u" && len(columns) == 1:
			for i := range def.Columns {
				if def.Columns[i].Name == columns[0] {
					def.Columns[i].Unique = true
				}
			}
		case ix.Origin == "u":
			def.Uniques = append(def.Uniques, models.UniqueConstraint{Columns: columns})
		default:
			def.Indexes = append(def.Indexes, models.Index{Name: ix.Name, Columns: columns, Unique: ix.Unique == 1})
		}
	}

	var fks []sqliteForeignKeyInfo
	if err := tx.Raw(`SELECT id, "table", "from", "to", on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`, name).
		Scan(&fks).Error; err != nil {
		return def, fmt.Errorf("reflect %s foreign keys: %w", name, err)
	}
	for _, fk := range fks {
		ref := &models.ForeignKey{Table: fk.Table, Column: fk.To.String}
		if action := strings.ToUpper(fk.OnDelete); action != "" && action != "NO ACTION" {
			ref.OnDelete = models.ReferentialAction(action)
		}
		for i := range def.Columns {
			if def.Columns[i].Name == fk.From {
				def.Columns[i].ForeignKey = ref
			}
		}
	}

	return def, nil
}

// InferType maps a physical type name back to a semantic type and length.
// Unknown names map to an empty type.
func InferType(raw string) (models.ColumnType, int) {
	base := strings.ToLower(strings.TrimSpace(raw))
	length := 0
	if open := strings.IndexByte(base, '('); open >= 0 {
		if end := strings.IndexByte(base[open:], ')'); end > 0 {
			args := strings.SplitN(base[open+1:open+end], ",", 2)
			if n, err := strconv.Atoi(strings.TrimSpace(args[0])); err == nil {
				length = n
			}
		}
		base = strings.TrimSpace(base[:open])
	}

	switch base {
	case "int", "integer", "int4", "mediumint", "smallint", "int2", "serial":
		return models.TypeInteger, 0
	case "tinyint":
		if length == 1 {
			return models.TypeBoolean, 0
		}
		return models.TypeInteger, 0
	case "bigint", "int8", "bigserial":
		return models.TypeBigInteger, 0
	case "varchar", "character varying", "char", "character", "nvarchar", "nchar":
		return models.TypeString, length
	case "text", "clob", "mediumtext", "longtext", "tinytext":
		return models.TypeText, 0
	case "bool", "boolean":
		return models.TypeBoolean, 0
	case "datetime", "timestamp", "timestamp without time zone", "timestamptz", "timestamp with time zone":
		return models.TypeDateTime, 0
	case "real", "double", "double precision", "float", "float8", "float4", "numeric", "decimal":
		return models.TypeFloat, 0
	case "blob", "bytea", "binary", "varbinary", "longblob":
		return models.TypeBinary, 0
	case "json", "jsonb":
		return models.TypeJSON, 0
	default:
		return "", 0
	}
}

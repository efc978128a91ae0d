package dialect

import (
	"fmt"
	"strings"

	"github.com/thebtf/schemaflow/pkg/models"
)

// builder holds the DDL rendering shared by all backends. Each dialect
// plugs in its quoting, type mapping and auto-increment syntax.
type builder struct {
	name  string
	quote func(string) string
	// typeOf maps a semantic type to the backend's physical type.
	typeOf func(models.ColumnSpec) (string, error)
	// autoInc is emitted after DEFAULT for auto-increment columns.
	autoInc string
	// pkAutoInc is emitted right after PRIMARY KEY for auto-increment columns.
	pkAutoInc string
	// defaultExpr normalises a raw default expression, may be nil.
	defaultExpr func(string) string
	// tableSuffix renders trailing CREATE TABLE options, may be nil.
	tableSuffix func(models.TableDefinition) string
}

func (b builder) Quote(ident string) string { return b.quote(ident) }

func (b builder) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = b.quote(n)
	}
	return strings.Join(quoted, ", ")
}

// ColumnType renders the physical type. A reflected RawType is used verbatim.
func (b builder) ColumnType(col models.ColumnSpec) (string, error) {
	if col.RawType != "" {
		return col.RawType, nil
	}
	if col.Type == "" {
		return "", &UnsupportedTypeError{Dialect: b.name, Column: col.Name, Type: col.Type, Reason: "no type given"}
	}
	return b.typeOf(col)
}

// ColumnDefinition renders a standalone column, primary key included.
func (b builder) ColumnDefinition(col models.ColumnSpec) (string, error) {
	return b.columnDefinition(col, true)
}

func (b builder) columnDefinition(col models.ColumnSpec, inlinePK bool) (string, error) {
	typ, err := b.ColumnType(col)
	if err != nil {
		return "", err
	}

	parts := []string{b.quote(col.Name), typ}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.Default != "" {
		expr := col.Default
		if b.defaultExpr != nil {
			expr = b.defaultExpr(expr)
		}
		parts = append(parts, "DEFAULT "+expr)
	}
	if col.AutoIncrement && b.autoInc != "" {
		parts = append(parts, b.autoInc)
	}
	pk := inlinePK && col.PrimaryKey
	if col.Unique && !pk {
		parts = append(parts, "UNIQUE")
	}
	if pk {
		parts = append(parts, "PRIMARY KEY")
		if col.AutoIncrement && b.pkAutoInc != "" {
			parts = append(parts, b.pkAutoInc)
		}
	}
	return strings.Join(parts, " "), nil
}

func (b builder) references(fk models.ForeignKey) string {
	clause := "REFERENCES " + b.quote(fk.Table)
	if fk.Column != "" {
		clause += " (" + b.quote(fk.Column) + ")"
	}
	if fk.OnDelete != models.ActionNoAction {
		clause += " ON DELETE " + string(fk.OnDelete)
	}
	return clause
}

// CreateTable renders the table with table-level primary key, unique and
// foreign key constraints, followed by its secondary indexes.
func (b builder) CreateTable(def models.TableDefinition) ([]string, error) {
	pk := def.PrimaryKey()
	inlinePK := len(pk) == 1

	lines := make([]string, 0, len(def.Columns)+len(def.Uniques)+2)
	for _, col := range def.Columns {
		line, err := b.columnDefinition(col, inlinePK)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", def.Name, err)
		}
		lines = append(lines, line)
	}
	if len(pk) > 1 {
		lines = append(lines, "PRIMARY KEY ("+b.quoteList(pk)+")")
	}
	for _, u := range def.Uniques {
		line := "UNIQUE (" + b.quoteList(u.Columns) + ")"
		if u.Name != "" {
			line = "CONSTRAINT " + b.quote(u.Name) + " " + line
		}
		lines = append(lines, line)
	}
	for _, col := range def.Columns {
		if col.ForeignKey == nil {
			continue
		}
		lines = append(lines, "FOREIGN KEY ("+b.quote(col.Name)+") "+b.references(*col.ForeignKey))
	}

	create := "CREATE TABLE " + b.quote(def.Name) + " (\n\t" + strings.Join(lines, ",\n\t") + "\n)"
	if b.tableSuffix != nil {
		create += b.tableSuffix(def)
	}

	stmts := []string{create}
	for _, ix := range def.Indexes {
		kw := "CREATE INDEX "
		if ix.Unique {
			kw = "CREATE UNIQUE INDEX "
		}
		stmts = append(stmts, kw+b.quote(ix.Name)+" ON "+b.quote(def.Name)+" ("+b.quoteList(ix.Columns)+")")
	}
	return stmts, nil
}

// addColumnInline renders ADD COLUMN with the foreign key as a column constraint.
func (b builder) addColumnInline(table string, col models.ColumnSpec) ([]string, error) {
	def, err := b.ColumnDefinition(col)
	if err != nil {
		return nil, err
	}
	stmt := "ALTER TABLE " + b.quote(table) + " ADD COLUMN " + def
	if col.ForeignKey != nil {
		stmt += " " + b.references(*col.ForeignKey)
	}
	return []string{stmt}, nil
}

func (b builder) dropColumn(table, name string) ([]string, error) {
	return []string{"ALTER TABLE " + b.quote(table) + " DROP COLUMN " + b.quote(name)}, nil
}

func (b builder) RenameTable(from, to string) string {
	return "ALTER TABLE " + b.quote(from) + " RENAME TO " + b.quote(to)
}

func (b builder) DropTable(name string) string {
	return "DROP TABLE " + b.quote(name)
}

func (b builder) DropIndex(_, name string) string {
	return "DROP INDEX " + b.quote(name)
}

func unsupported(dialect string, col models.ColumnSpec, reason string) error {
	return &UnsupportedTypeError{Dialect: dialect, Column: col.Name, Type: col.Type, Reason: reason}
}

func varchar(col models.ColumnSpec) string {
	if col.Length > 0 {
		return fmt.Sprintf("VARCHAR(%d)", col.Length)
	}
	return "VARCHAR"
}

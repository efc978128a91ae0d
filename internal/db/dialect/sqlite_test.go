package dialect

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thebtf/schemaflow/pkg/models"
)

// testSQLite opens a file-backed SQLite database with foreign keys enforced.
func testSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

func execAll(t *testing.T, db *gorm.DB, stmts []string) {
	t.Helper()
	for _, s := range stmts {
		require.NoError(t, db.Exec(s).Error, s)
	}
}

func TestSQLite_CanAddColumn(t *testing.T) {
	db := testSQLite(t)
	d := NewSQLite()
	execAll(t, db, []string{`CREATE TABLE parent (id INTEGER PRIMARY KEY)`})

	tests := []struct {
		col  models.ColumnSpec
		want bool
	}{
		{models.String("plain", 8), true},
		{models.Integer("counter").NotNull().WithDefault("0"), true},
		{models.String("label", 8).WithDefault("'x'"), true},
		{models.Integer("parent_id").References("parent", "id", models.ActionCascade), true},
		{models.String("code", 8).WithUnique(), false},
		{models.Integer("required").NotNull(), false},
		{models.DateTime("stamped").WithDefault("CURRENT_TIMESTAMP"), false},
		{models.Integer("computed").WithDefault("1 + 1"), false},
		{models.Integer("owner_id").WithDefault("1").References("parent", "id", models.ActionNoAction), false},
	}

	for i, tt := range tests {
		t.Run(tt.col.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.CanAddColumn(tt.col))

			want := ActionNative
			if !tt.want {
				want = ActionRebuild
			}
			assert.Equal(t, want, PlanFor(d, models.AddColumn{Column: tt.col}))

			// The classification matches what SQLite itself accepts.
			table := fmt.Sprintf("t%d", i)
			execAll(t, db, []string{`CREATE TABLE ` + table + ` (id INTEGER PRIMARY KEY)`})
			stmts, err := d.AddColumn(table, tt.col)
			require.NoError(t, err)
			err = db.Exec(stmts[0]).Error
			if tt.want {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	assert.Equal(t, ActionNative, PlanFor(NewPostgres(), models.AddColumn{Column: models.String("code", 8).WithUnique()}))
}

func TestSQLite_ReflectTable(t *testing.T) {
	db := testSQLite(t)
	d := NewSQLite()

	accounts, err := d.CreateTable(accountsTable())
	require.NoError(t, err)
	execAll(t, db, accounts)

	identities, err := d.CreateTable(identitiesTable())
	require.NoError(t, err)
	execAll(t, db, identities)

	got, err := d.ReflectTable(db, "identities")
	require.NoError(t, err)

	want := models.TableDefinition{
		Name: "identities",
		Columns: []models.ColumnSpec{
			{Name: "id", Type: models.TypeInteger, RawType: "INTEGER", PrimaryKey: true, AutoIncrement: true},
			{Name: "account_id", Type: models.TypeInteger, RawType: "INTEGER", Nullable: true,
				ForeignKey: &models.ForeignKey{Table: "accounts", Column: "id", OnDelete: models.ActionCascade}},
			{Name: "source", Type: models.TypeString, RawType: "VARCHAR(16)", Length: 16},
			{Name: "identity", Type: models.TypeString, RawType: "VARCHAR(64)", Length: 64},
			{Name: "created", Type: models.TypeDateTime, RawType: "DATETIME", Nullable: true, Default: "CURRENT_TIMESTAMP"},
		},
		Uniques: []models.UniqueConstraint{{Columns: []string{"source", "identity"}}},
		Indexes: []models.Index{{Name: "ix_identities_account", Columns: []string{"account_id"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reflected identities mismatch (-want +got):\n%s", diff)
	}

	got, err = d.ReflectTable(db, "accounts")
	require.NoError(t, err)
	username, ok := got.Column("username")
	require.True(t, ok)
	assert.True(t, username.Unique)
	assert.False(t, username.Nullable)
}

func TestSQLite_ReflectMissingTable(t *testing.T) {
	db := testSQLite(t)

	_, err := NewSQLite().ReflectTable(db, "nope")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestSQLite_ReflectedDefinitionRoundTrips(t *testing.T) {
	db := testSQLite(t)
	d := NewSQLite()

	stmts, err := d.CreateTable(accountsTable())
	require.NoError(t, err)
	execAll(t, db, stmts)

	reflected, err := d.ReflectTable(db, "accounts")
	require.NoError(t, err)

	copyDef := reflected.Clone()
	copyDef.Name = "accounts_copy"
	stmts, err = d.CreateTable(copyDef)
	require.NoError(t, err)
	execAll(t, db, stmts)

	again, err := d.ReflectTable(db, "accounts_copy")
	require.NoError(t, err)
	again.Name = "accounts"
	assert.Equal(t, reflected, again)
}

func TestSQLite_MissingTableError(t *testing.T) {
	db := testSQLite(t)

	var n int
	err := db.Raw("SELECT COUNT(*) FROM schema_versions").Scan(&n).Error
	require.Error(t, err)
	assert.True(t, NewSQLite().IsMissingTable(err))
}

func TestSQLite_GuardStep(t *testing.T) {
	db := testSQLite(t)
	d := NewSQLite()

	err := d.GuardStep(db, func(conn *gorm.DB) error {
		var fk int
		require.NoError(t, conn.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
		assert.Equal(t, 0, fk, "enforcement is off inside the guard")

		return conn.Transaction(func(tx *gorm.DB) error {
			restore, err := d.BeginRebuild(tx)
			require.NoError(t, err)
			return restore()
		})
	})
	require.NoError(t, err)

	var fk int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)
}

func TestSQLite_VerifyStep(t *testing.T) {
	db := testSQLite(t)
	d := NewSQLite()

	execAll(t, db, []string{
		`CREATE TABLE parent (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parent (id))`,
		`INSERT INTO parent (id) VALUES (1)`,
		`INSERT INTO child (id, parent_id) VALUES (1, 1)`,
	})
	require.NoError(t, d.VerifyStep(db))

	err := d.GuardStep(db, func(conn *gorm.DB) error {
		require.NoError(t, conn.Exec(`INSERT INTO child (id, parent_id) VALUES (2, 42)`).Error)
		return d.VerifyStep(conn)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foreign key violation")
}

package migrate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/thebtf/schemaflow/pkg/models"
)

func refTable(name string, refs ...string) *VersionedTable {
	cols := []models.ColumnSpec{models.PrimaryKeyColumn("id")}
	for _, ref := range refs {
		cols = append(cols, models.Integer(ref+"_id").References(ref, "id", models.ActionNoAction))
	}
	return NewVersionedTable(models.NewTable(name, cols...), 1)
}

func noop(*Upgrader) error { return nil }

func tableNames(c *Catalog) []string {
	var names []string
	for _, t := range c.Tables() {
		names = append(names, t.Name())
	}
	return names
}

func TestVersionedTable_Validate(t *testing.T) {
	def := models.NewTable("t", models.PrimaryKeyColumn("id"))

	tests := []struct {
		name    string
		table   *VersionedTable
		wantErr error
	}{
		{"version 1 without steps", NewVersionedTable(def, 1), nil},
		{"contiguous chain", NewVersionedTable(def, 3).Step(1, noop).Step(2, noop), nil},
		{"post-create hook", NewVersionedTable(def, 2).OnCreate(noop).Step(1, noop), nil},
		{"gap", NewVersionedTable(def, 4).Step(1, noop).Step(3, noop), ErrMissingUpgradeStep},
		{"no steps", NewVersionedTable(def, 2), ErrMissingUpgradeStep},
		{"nil step", NewVersionedTable(def, 2).Step(1, nil), ErrMissingUpgradeStep},
		{"zero version", NewVersionedTable(def, 0), ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVersionedTable_StrayStep(t *testing.T) {
	def := models.NewTable("t", models.PrimaryKeyColumn("id"))

	err := NewVersionedTable(def, 2).Step(1, noop).Step(2, noop).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2 -> 3 is outside declared version 2")
}

func TestVersionedTable_StepVersions(t *testing.T) {
	def := models.NewTable("t", models.PrimaryKeyColumn("id"))
	table := NewVersionedTable(def, 4).Step(3, noop).Step(1, noop).OnCreate(noop).Step(2, noop)

	assert.Equal(t, []int{0, 1, 2, 3}, table.StepVersions())
	assert.Equal(t, "t", table.Name())
}

func TestCatalog_Register(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(refTable("b", "a"), refTable("a")))

	assert.Equal(t, []string{"b", "a"}, tableNames(c))
	tbl, ok := c.Table("a")
	require.True(t, ok)
	assert.Equal(t, "a", tbl.Name())
	_, ok = c.Table("zzz")
	assert.False(t, ok)
	assert.Len(t, c.Tables(), 2)
}

func TestCatalog_RegisterAggregatesErrors(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(refTable("a")))

	broken := NewVersionedTable(models.NewTable("broken", models.PrimaryKeyColumn("id")), 3)
	err := c.Register(refTable("a"), broken, refTable("fresh"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateTable)
	assert.ErrorIs(t, err, ErrMissingUpgradeStep)
	assert.Len(t, multierr.Errors(err), 3, "duplicate plus two missing steps")

	// Nothing from the failed batch is registered.
	_, ok := c.Table("fresh")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, tableNames(c))
}

func TestCatalog_RegisterDuplicateInBatch(t *testing.T) {
	err := NewCatalog().Register(refTable("a"), refTable("a"))
	assert.ErrorIs(t, err, ErrDuplicateTable)
}

func TestCatalog_MustRegisterPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewCatalog().MustRegister(NewVersionedTable(models.NewTable("t", models.PrimaryKeyColumn("id")), 2))
	})
}

func TestCatalog_DependencyOrder(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(
		refTable("d", "b", "c"),
		refTable("c", "a"),
		refTable("b", "a"),
		refTable("a"),
		refTable("solo"),
	))

	order, err := c.DependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "solo"}, order)

	order, err = c.DependencyOrder("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, order)

	_, err = c.DependencyOrder("missing")
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestCatalog_SelfReferenceIsNotACycle(t *testing.T) {
	tree := NewVersionedTable(models.NewTable("tree",
		models.PrimaryKeyColumn("id"),
		models.Integer("parent_id").References("tree", "id", models.ActionCascade),
	), 1)

	c := NewCatalog()
	require.NoError(t, c.Register(tree))
	require.NoError(t, c.Validate())
}

func TestCatalog_Cycle(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(refTable("root", "a"), refTable("a", "b"), refTable("b", "c"), refTable("c", "a")))

	_, err := c.DependencyOrder()
	require.ErrorIs(t, err, ErrDependencyCycle)

	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycle.Path)
	assert.Equal(t, "foreign key dependency cycle: a -> b -> c -> a", cycle.Error())

	assert.ErrorIs(t, c.Validate(), ErrDependencyCycle)
}

func TestCatalog_ValidateUnknownReference(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(refTable("a", "ghost"), refTable("b", "phantom")))

	err := c.Validate()
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestErrors_Messages(t *testing.T) {
	create := &StepError{Table: "t", From: 0, To: 2, Create: true, Err: errors.New("boom")}
	assert.Equal(t, "create table t at version 2: boom", create.Error())

	fromZero := &StepError{Table: "t", From: 0, To: 1, Err: ErrMissingUpgradeStep}
	assert.Equal(t, "upgrade table t from version 0 to 1: missing upgrade step", fromZero.Error())

	step := &StepError{Table: "t", From: 2, To: 3, Err: ErrRebuildArtifact}
	assert.Equal(t, "upgrade table t from version 2 to 3: rebuild artifact present", step.Error())
	assert.ErrorIs(t, step, ErrRebuildArtifact)

	stale := &OutOfDateError{Tables: []string{"a", "b"}}
	assert.Equal(t, "schema out of date: a, b", stale.Error())
}

package migrate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/thebtf/schemaflow/pkg/models"
)

func TestRebuildLayout(t *testing.T) {
	live := models.NewTable("items",
		models.PrimaryKeyColumn("id"),
		models.String("name", 32).NotNull(),
		models.String("note", 64),
		models.Integer("qty"),
	)
	live.Uniques = []models.UniqueConstraint{{Name: "uq_name_qty", Columns: []string{"name", "qty"}}}
	live.Indexes = []models.Index{
		{Name: "ix_note", Columns: []string{"note"}},
		{Name: "ix_name", Columns: []string{"name"}, Unique: true},
	}

	title := models.String("title", 64).NotNull()
	changes := models.ColumnRenameMap{}.Replace("name", title).Drop("note")
	added := models.Boolean("active")

	target, dst, src := rebuildLayout(live, changes, []models.ColumnSpec{added})

	assert.Equal(t, []string{"id", "title", "qty", "active"}, target.ColumnNames())
	assert.Equal(t, []string{"id", "title", "qty"}, dst)
	assert.Equal(t, []string{"id", "name", "qty"}, src)

	wantUniques := []models.UniqueConstraint{{Name: "uq_name_qty", Columns: []string{"title", "qty"}}}
	if diff := cmp.Diff(wantUniques, target.Uniques); diff != "" {
		t.Errorf("uniques mismatch (-want +got):\n%s", diff)
	}
	wantIndexes := []models.Index{{Name: "ix_name", Columns: []string{"title"}, Unique: true}}
	if diff := cmp.Diff(wantIndexes, target.Indexes); diff != "" {
		t.Errorf("indexes mismatch (-want +got):\n%s", diff)
	}
}

func TestRebuildLayout_NoChanges(t *testing.T) {
	live := models.NewTable("t", models.PrimaryKeyColumn("id"), models.Text("body"))

	target, dst, src := rebuildLayout(live, models.ColumnRenameMap{}, nil)

	if diff := cmp.Diff(live.Columns, target.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, dst, src)
}

func TestMergeConstraints(t *testing.T) {
	target := models.NewTable("t",
		models.PrimaryKeyColumn("id"),
		models.String("a", 8),
		models.String("b", 8),
	)
	target.Uniques = []models.UniqueConstraint{{Name: "t_a_b", Columns: []string{"a", "b"}}}
	target.Indexes = []models.Index{{Name: "ix_a", Columns: []string{"a"}}}

	declared := models.NewTable("t").
		WithUnique("a", "b").
		WithUnique("b").
		WithUnique("gone").
		WithIndex("ix_a", "a").
		WithIndex("ix_b", "b").
		WithIndex("ix_gone", "gone")

	mergeConstraints(&target, declared)

	wantUniques := []models.UniqueConstraint{
		{Name: "t_a_b", Columns: []string{"a", "b"}},
		{Columns: []string{"b"}},
	}
	if diff := cmp.Diff(wantUniques, target.Uniques); diff != "" {
		t.Errorf("uniques mismatch (-want +got):\n%s", diff)
	}
	wantIndexes := []models.Index{
		{Name: "ix_a", Columns: []string{"a"}},
		{Name: "ix_b", Columns: []string{"b"}},
	}
	if diff := cmp.Diff(wantIndexes, target.Indexes); diff != "" {
		t.Errorf("indexes mismatch (-want +got):\n%s", diff)
	}
}

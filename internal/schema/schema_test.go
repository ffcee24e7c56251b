package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() *TableSpec {
	return &TableSpec{
		Name: "tasks",
		Columns: []ColumnSpec{
			{Name: "id", Type: TypeInteger, PrimaryKey: true},
			{Name: "title", Type: TypeVarchar, Length: 255},
			{Name: "done", Type: TypeBoolean, Default: "false"},
			{Name: "notes", Type: TypeText, Nullable: true},
		},
	}
}

func TestTableSpecValidate(t *testing.T) {
	t.Run("valid spec passes", func(t *testing.T) {
		spec := validSpec()
		spec.Normalize()
		require.NoError(t, spec.Validate())
	})

	t.Run("normalize lowercases identifiers and uppercases types", func(t *testing.T) {
		spec := &TableSpec{
			Name: "  Tasks ",
			Columns: []ColumnSpec{
				{Name: "Title", Type: "varchar", Length: 10},
			},
		}
		spec.Normalize()
		assert.Equal(t, "tasks", spec.Name)
		assert.Equal(t, "title", spec.Columns[0].Name)
		assert.Equal(t, TypeVarchar, spec.Columns[0].Type)
	})

	t.Run("missing primary key gets a synthetic id column", func(t *testing.T) {
		spec := &TableSpec{
			Name: "notes",
			Columns: []ColumnSpec{
				{Name: "body", Type: TypeText},
			},
		}
		spec.Normalize()
		require.NoError(t, spec.Validate())
		require.Len(t, spec.Columns, 2)
		assert.Equal(t, "id", spec.Columns[0].Name)
		assert.True(t, spec.Columns[0].PrimaryKey)
		assert.Equal(t, TypeInteger, spec.Columns[0].Type)
	})

	t.Run("missing primary key with id column taken is rejected", func(t *testing.T) {
		spec := &TableSpec{
			Name: "notes",
			Columns: []ColumnSpec{
				{Name: "id", Type: TypeText},
			},
		}
		spec.Normalize()
		assert.Error(t, spec.Validate())
	})

	rejects := []struct {
		name string
		spec TableSpec
	}{
		{"empty table name", TableSpec{Name: "", Columns: []ColumnSpec{{Name: "a", Type: TypeText}}}},
		{"invalid table name", TableSpec{Name: "my-table", Columns: []ColumnSpec{{Name: "a", Type: TypeText}}}},
		{"reserved word table", TableSpec{Name: "select", Columns: []ColumnSpec{{Name: "a", Type: TypeText}}}},
		{"reserved word table uppercase", TableSpec{Name: "SELECT", Columns: []ColumnSpec{{Name: "a", Type: TypeText}}}},
		{"baseline table uppercase", TableSpec{Name: "Items", Columns: []ColumnSpec{{Name: "a", Type: TypeText}}}},
		{"baseline table shadowed", TableSpec{Name: "items", Columns: []ColumnSpec{{Name: "a", Type: TypeText}}}},
		{"no columns", TableSpec{Name: "empty"}},
		{"invalid column name", TableSpec{Name: "t", Columns: []ColumnSpec{{Name: "1st", Type: TypeText}}}},
		{"reserved word column", TableSpec{Name: "t", Columns: []ColumnSpec{{Name: "where", Type: TypeText}}}},
		{"duplicate columns", TableSpec{Name: "t", Columns: []ColumnSpec{
			{Name: "a", Type: TypeText}, {Name: "a", Type: TypeText}}}},
		{"unknown type", TableSpec{Name: "t", Columns: []ColumnSpec{{Name: "a", Type: "BLOB"}}}},
		{"varchar without length", TableSpec{Name: "t", Columns: []ColumnSpec{{Name: "a", Type: TypeVarchar}}}},
		{"varchar length too large", TableSpec{Name: "t", Columns: []ColumnSpec{
			{Name: "a", Type: TypeVarchar, Length: maxCharLength + 1}}}},
		{"length on non-char type", TableSpec{Name: "t", Columns: []ColumnSpec{
			{Name: "a", Type: TypeInteger, Length: 10}}}},
		{"two primary keys", TableSpec{Name: "t", Columns: []ColumnSpec{
			{Name: "a", Type: TypeInteger, PrimaryKey: true},
			{Name: "b", Type: TypeInteger, PrimaryKey: true}}}},
		{"nullable primary key", TableSpec{Name: "t", Columns: []ColumnSpec{
			{Name: "a", Type: TypeInteger, PrimaryKey: true, Nullable: true}}}},
		{"unsafe default expression", TableSpec{Name: "t", Columns: []ColumnSpec{
			{Name: "a", Type: TypeText, Default: "(SELECT 1)"}}}},
	}

	for _, tt := range rejects {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			spec := tt.spec
			spec.Normalize()
			err := spec.Validate()
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestValidDefault(t *testing.T) {
	for _, expr := range []string{"0", "-1", "3.14", "true", "false", "NOW()", "CURRENT_TIMESTAMP", "gen_random_uuid()", "'draft'", "''"} {
		assert.True(t, validDefault(expr), "expected %q to be accepted", expr)
	}
	for _, expr := range []string{"(SELECT 1)", "'a'; DROP TABLE x; --", "random()", "'it''s'"} {
		assert.False(t, validDefault(expr), "expected %q to be rejected", expr)
	}
}

func TestIsReservedTable(t *testing.T) {
	// Baseline tables ship with every tenant database and never show up in
	// catalog listings.
	for _, name := range []string{"items", "project_metadata", "files"} {
		assert.True(t, isReservedTable(name), "expected %q to be reserved", name)
	}
	for _, name := range []string{"tasks", "itemsx", "my_files", ""} {
		assert.False(t, isReservedTable(name), "expected %q to be listable", name)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"tasks"`, QuoteIdentifier("tasks"))
	assert.Equal(t, `"we""ird"`, QuoteIdentifier(`we"ird`))
}

func TestBuildCreateTable(t *testing.T) {
	t.Run("integer primary key becomes serial", func(t *testing.T) {
		spec := validSpec()
		spec.Normalize()
		require.NoError(t, spec.Validate())

		ddl := BuildCreateTable(spec)
		assert.Contains(t, ddl, `CREATE TABLE "tasks"`)
		assert.Contains(t, ddl, `"id" SERIAL PRIMARY KEY`)
		assert.Contains(t, ddl, `"title" VARCHAR(255) NOT NULL`)
		assert.Contains(t, ddl, `"done" BOOLEAN NOT NULL DEFAULT false`)
		assert.Contains(t, ddl, `"notes" TEXT`)
		assert.NotContains(t, ddl, `"notes" TEXT NOT NULL`)
	})

	t.Run("bigint primary key becomes bigserial", func(t *testing.T) {
		spec := &TableSpec{
			Name: "events",
			Columns: []ColumnSpec{
				{Name: "id", Type: TypeBigInt, PrimaryKey: true},
				{Name: "payload", Type: TypeJSONB},
			},
		}
		spec.Normalize()
		require.NoError(t, spec.Validate())

		ddl := BuildCreateTable(spec)
		assert.Contains(t, ddl, `"id" BIGSERIAL PRIMARY KEY`)
		assert.Contains(t, ddl, `"payload" JSONB NOT NULL`)
	})

	t.Run("unique column carries the constraint", func(t *testing.T) {
		spec := &TableSpec{
			Name: "accounts",
			Columns: []ColumnSpec{
				{Name: "email", Type: TypeVarchar, Length: 255, Unique: true},
			},
		}
		spec.Normalize()
		require.NoError(t, spec.Validate())

		assert.Contains(t, BuildCreateTable(spec), `"email" VARCHAR(255) NOT NULL UNIQUE`)
	})
}

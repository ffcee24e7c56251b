package rows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceValue(t *testing.T) {
	t.Run("nil passes through for every type", func(t *testing.T) {
		for _, dt := range []string{"integer", "boolean", "jsonb", "text", "timestamp with time zone"} {
			v, err := coerceValue("c", dt, nil)
			require.NoError(t, err)
			assert.Nil(t, v)
		}
	})

	t.Run("integers", func(t *testing.T) {
		v, err := coerceValue("n", "integer", float64(42))
		require.NoError(t, err)
		assert.Equal(t, int64(42), v)

		v, err = coerceValue("n", "bigint", " 17 ")
		require.NoError(t, err)
		assert.Equal(t, int64(17), v)

		_, err = coerceValue("n", "integer", 3.5)
		assert.Error(t, err)

		_, err = coerceValue("n", "integer", "abc")
		assert.Error(t, err)

		_, err = coerceValue("n", "smallint", true)
		assert.Error(t, err)
	})

	t.Run("floats", func(t *testing.T) {
		v, err := coerceValue("f", "double precision", 3.25)
		require.NoError(t, err)
		assert.Equal(t, 3.25, v)

		v, err = coerceValue("f", "numeric", "2.5")
		require.NoError(t, err)
		assert.Equal(t, 2.5, v)

		_, err = coerceValue("f", "real", "nope")
		assert.Error(t, err)
	})

	t.Run("booleans accept the usual tokens", func(t *testing.T) {
		for _, in := range []any{true, "true", "1", "YES", "on", float64(1)} {
			v, err := coerceValue("b", "boolean", in)
			require.NoError(t, err, "input %v", in)
			assert.Equal(t, true, v, "input %v", in)
		}
		for _, in := range []any{false, "false", "0", "No", "off", float64(0)} {
			v, err := coerceValue("b", "boolean", in)
			require.NoError(t, err, "input %v", in)
			assert.Equal(t, false, v, "input %v", in)
		}
		_, err := coerceValue("b", "boolean", "maybe")
		assert.Error(t, err)
	})

	t.Run("json documents marshal, json strings pass through", func(t *testing.T) {
		v, err := coerceValue("j", "jsonb", map[string]any{"a": float64(1)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, v.(string))

		v, err = coerceValue("j", "json", []any{"x", "y"})
		require.NoError(t, err)
		assert.JSONEq(t, `["x","y"]`, v.(string))

		v, err = coerceValue("j", "jsonb", `{"raw":true}`)
		require.NoError(t, err)
		assert.Equal(t, `{"raw":true}`, v)
	})

	t.Run("strings and temporals pass through", func(t *testing.T) {
		v, err := coerceValue("s", "character varying", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", v)

		v, err = coerceValue("ts", "timestamp with time zone", "2024-01-02T03:04:05Z")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-02T03:04:05Z", v)

		v, err = coerceValue("u", "uuid", "8e9f0a1b-2c3d-4e5f-8091-a2b3c4d5e6f7")
		require.NoError(t, err)
		assert.Equal(t, "8e9f0a1b-2c3d-4e5f-8091-a2b3c4d5e6f7", v)
	})

	t.Run("scalar to text stringifies", func(t *testing.T) {
		v, err := coerceValue("s", "text", float64(5))
		require.NoError(t, err)
		assert.Equal(t, "5", v)
	})
}

func TestRowErrors(t *testing.T) {
	assert.EqualError(t,
		&UnknownColumnError{Table: "tasks", Columns: []string{"bogus", "extra"}},
		`table "tasks" has no columns: bogus, extra`)
	assert.EqualError(t,
		&MissingColumnsError{Table: "tasks", Columns: []string{"title"}},
		`missing required columns for table "tasks": title`)
	assert.EqualError(t,
		&RowNotFoundError{Table: "tasks", Key: 7},
		`no row in table "tasks" with key 7`)
	assert.EqualError(t,
		&NoPrimaryKeyError{Table: "log"},
		`table "log" has no primary key`)
}

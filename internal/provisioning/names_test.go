package provisioning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "My Project", "my-project"},
		{"punctuation collapses", "Hello, World!", "hello-world"},
		{"already a slug", "my-project", "my-project"},
		{"surrounding whitespace", "  padded  ", "padded"},
		{"dash runs collapse", "a --- b", "a-b"},
		{"unicode stripped", "café ☕", "caf"},
		{"all invalid", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestGenerateNames(t *testing.T) {
	t.Run("shape", func(t *testing.T) {
		names := GenerateNames("My Project")

		assert.True(t, strings.HasPrefix(names.DBName, "project_my_project_"))
		assert.True(t, strings.HasSuffix(names.DBName, "_db"))
		assert.True(t, strings.HasPrefix(names.BucketName, "project-my-project-"))
		assert.True(t, strings.HasSuffix(names.BucketName, "-bucket"))
		assert.NotContains(t, names.DBName, "-")
	})

	t.Run("identical project names yield distinct resources", func(t *testing.T) {
		a := GenerateNames("My Project")
		b := GenerateNames("My Project")

		assert.NotEqual(t, a.DBName, b.DBName)
		assert.NotEqual(t, a.BucketName, b.BucketName)
	})

	t.Run("names stay within the identifier limit", func(t *testing.T) {
		long := strings.Repeat("very-long-name-", 10)
		names := GenerateNames(long)

		assert.LessOrEqual(t, len(names.DBName), 63)
		assert.LessOrEqual(t, len(names.BucketName), 63)
	})

	t.Run("truncation never leaves a trailing separator", func(t *testing.T) {
		// Sweep lengths so some cut lands exactly on a separator.
		for i := 40; i < 70; i++ {
			names := GenerateNames(strings.Repeat("ab-", i)[:i])

			assert.NotEqual(t, byte('-'), names.BucketName[len(names.BucketName)-1],
				"bucket %q ends in a hyphen", names.BucketName)
			assert.NotEqual(t, byte('_'), names.DBName[len(names.DBName)-1],
				"database %q ends in an underscore", names.DBName)
		}
	})

	t.Run("names are lowercase", func(t *testing.T) {
		names := GenerateNames("UPPER Case")

		assert.Equal(t, strings.ToLower(names.DBName), names.DBName)
		assert.Equal(t, strings.ToLower(names.BucketName), names.BucketName)
	})

	t.Run("empty name falls back to a generic slug", func(t *testing.T) {
		names := GenerateNames("!!!")

		assert.True(t, strings.HasPrefix(names.DBName, "project_project_"))
	})
}

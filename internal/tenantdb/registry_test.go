package tenantdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexiath/sovera/pkg/database"
	"github.com/nexiath/sovera/pkg/logger"
)

func TestRegistryLifecycle(t *testing.T) {
	log := logger.New("tenantdb-test", "dev")
	log.DisableConsoleOutput()
	reg := NewRegistry(database.PostgreSQLConfig{}, log)

	assert.Equal(t, 0, reg.Size())

	t.Run("invalidating an unknown database is a no-op", func(t *testing.T) {
		reg.Invalidate("project_missing_db")
		assert.Equal(t, 0, reg.Size())
	})

	t.Run("an empty registry is healthy", func(t *testing.T) {
		assert.NoError(t, reg.Ping(context.Background()))
	})

	t.Run("close leaves no cached pools", func(t *testing.T) {
		reg.Close()
		assert.Equal(t, 0, reg.Size())
	})
}

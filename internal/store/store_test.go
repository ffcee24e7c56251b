package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixColumns(t *testing.T) {
	assert.Equal(t, "p.id, p.name", prefixColumns("p", "id, name"))
	assert.Equal(t, "m.id, m.role, m.status",
		prefixColumns("m", "id,\n\trole, status"))
}

// The status tokens are client-visible via the provisioning poll and the
// websocket gate, so their wire values are part of the API contract.
func TestProvisioningStatusTokens(t *testing.T) {
	assert.Equal(t, ProvisioningStatus("pending"), ProvisioningPending)
	assert.Equal(t, ProvisioningStatus("completed"), ProvisioningCompleted)
	assert.Equal(t, ProvisioningStatus("failed"), ProvisioningFailed)
	assert.Equal(t, ProvisioningStatus("deleting"), ProvisioningDeleting)
}

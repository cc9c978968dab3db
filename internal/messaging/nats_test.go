package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClient(t *testing.T) {
	nc, err := NewNATSClient(Config{ClusterID: "tessera", ClientID: "test"})
	require.NoError(t, err)

	assert.False(t, nc.Enabled())
	assert.NoError(t, nc.Publish("card.issued", map[string]string{"card_id": "c1"}))
	assert.NoError(t, nc.Close())

	_, err = nc.SubscribeQueue("card.issued", "indexers", nil)
	assert.Error(t, err)
}

func TestNilClientIsDisabled(t *testing.T) {
	var nc *NATSClient
	assert.False(t, nc.Enabled())
	assert.NoError(t, nc.Publish("card.revoked", nil))
}

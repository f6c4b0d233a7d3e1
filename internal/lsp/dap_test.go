package lsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDapRelayDeliversToRegisteredSink(t *testing.T) {
	d := newDapRelay()

	var got DapNotification
	d.Register("sess-1", func(n DapNotification) { got = n })

	result, err := d.handle(&DapCommand{SessionID: "sess-1", Message: map[string]any{"type": "event"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"delivered": true}, result)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, map[string]any{"type": "event"}, got.Message)
}

func TestDapRelayUndeliveredWithoutSink(t *testing.T) {
	d := newDapRelay()

	result, err := d.handle(&DapCommand{SessionID: "sess-missing", Message: map[string]any{"type": "event"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"delivered": false}, result)
}

func TestDapRelayUnregisterStopsDelivery(t *testing.T) {
	d := newDapRelay()

	calls := 0
	d.Register("sess-1", func(DapNotification) { calls++ })
	d.Unregister("sess-1")

	result, err := d.handle(&DapCommand{SessionID: "sess-1", Message: map[string]any{"type": "event"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"delivered": false}, result)
	assert.Equal(t, 0, calls)
}

package transport_test

import (
	"testing"

	"github.com/effective-security/reagent/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	t.Parallel()

	tcases := []struct {
		name    string
		body    string
		expType transport.BaseMessageType
		expID   transport.RequestId
	}{
		{
			name:    "request",
			body:    `{"jsonrpc":"2.0","id":7,"method":"tools/list","params":{}}`,
			expType: transport.BaseMessageTypeJSONRPCRequestType,
			expID:   7,
		},
		{
			name:    "notification",
			body:    `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			expType: transport.BaseMessageTypeJSONRPCNotificationType,
			expID:   0,
		},
		{
			name:    "response",
			body:    `{"jsonrpc":"2.0","id":7,"result":{"tools":[]}}`,
			expType: transport.BaseMessageTypeJSONRPCResponseType,
			expID:   7,
		},
		{
			name:    "error",
			body:    `{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"method not found"}}`,
			expType: transport.BaseMessageTypeJSONRPCErrorType,
			expID:   7,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := transport.ParseMessage([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.expType, msg.Type)
			assert.Equal(t, tc.expID, msg.MessageID())

			// round trip
			encoded, err := msg.MarshalJSON()
			require.NoError(t, err)
			again, err := transport.ParseMessage(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.expType, again.Type)
		})
	}

	_, err := transport.ParseMessage([]byte(`"not an object"`))
	require.Error(t, err)
}

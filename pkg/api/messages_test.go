package api

import (
	"encoding/json"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEnvelope(t *testing.T) {
	snap := ResourceSnapshot{
		RscDfn:    types.RscDfnData{UUID: uuid.New(), Name: "r1", Port: 7000},
		VolDfns:   []types.VolDfnData{{UUID: uuid.New(), RscName: "r1", VolNr: 0, Minor: 1000, SizeKiB: 1048576}},
		LocalNode: types.NodeData{UUID: uuid.New(), Name: "alpha", Type: types.NodeTypeSatellite},
	}

	msg, err := NewMessage(42, MsgApplyResource, snap)
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(42), decoded.ID)
	assert.Equal(t, MsgApplyResource, decoded.Type)

	var got ResourceSnapshot
	require.NoError(t, decoded.Decode(&got))
	assert.Equal(t, snap.RscDfn.UUID, got.RscDfn.UUID)
	require.Len(t, got.VolDfns, 1)
	assert.Equal(t, 1000, got.VolDfns[0].Minor)
}

func TestDecodeError(t *testing.T) {
	msg := &Message{Type: MsgRequestResource, Payload: json.RawMessage(`[1,2]`)}
	var req ResourceRequest
	assert.Error(t, msg.Decode(&req))
}

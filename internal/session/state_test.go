package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(StateAwaitingCorners)
	require.NoError(t, err)
	assert.JSONEq(t, `"awaiting_corners"`, string(data))

	var st State
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, StateAwaitingCorners, st)

	assert.Error(t, json.Unmarshal([]byte(`"sleeping"`), &st))
}

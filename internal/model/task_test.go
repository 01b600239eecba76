package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskState_Terminal(t *testing.T) {
	for _, s := range []TaskState{TaskSuccess, TaskFailed, TaskRevoked} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []TaskState{TaskPending, TaskRunning, TaskProgress, TaskRetry} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestTaskPayload_BindKwargs(t *testing.T) {
	p := TaskPayload{Kwargs: map[string]interface{}{
		"crop_type": "maize",
		"latitude":  -17.83,
		"longitude": 31.05,
	}}

	var req PredictionRequest
	require.NoError(t, p.BindKwargs(&req))
	assert.Equal(t, "maize", req.CropType)
	assert.InDelta(t, -17.83, req.Latitude, 1e-9)

	bad := TaskPayload{Kwargs: map[string]interface{}{"latitude": "north"}}
	assert.Error(t, bad.BindKwargs(&req))
}

package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFlushTask(t *testing.T) {
	task, err := NewFlushTask("4915111@s.whatsapp.net")
	require.NoError(t, err)
	require.Equal(t, TypeFlushBatch, task.Type())

	var p FlushPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, "4915111@s.whatsapp.net", p.ChatID)
}

package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/qcode/internal/llmtypes"
)

func TestSession_SaveLoadRoundTrip(t *testing.T) {
	s := New()
	s.AddMessage(llmtypes.Message{Role: llmtypes.RoleUser, Content: "hello"})
	s.AddMessage(llmtypes.Message{Role: llmtypes.RoleAssistant, Content: "hi there"})
	s.Metadata.BackendType = "ollama"
	s.Metadata.Model = "qwen2.5-coder:latest"

	path := filepath.Join(t.TempDir(), s.FileName())
	require.NoError(t, s.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, s.SessionID, loaded.SessionID)
	assert.Equal(t, s.Metadata, loaded.Metadata)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "hello", loaded.Messages[0].Content)
	assert.Equal(t, llmtypes.RoleAssistant, loaded.Messages[1].Role)
}

func TestSession_AddMessageStampsTimestamp(t *testing.T) {
	s := New()
	s.AddMessage(llmtypes.Message{Role: llmtypes.RoleUser, Content: "no timestamp set"})
	assert.False(t, s.Messages[0].Timestamp.IsZero())
	assert.Equal(t, 1, s.Metadata.TotalMessages)
}

func TestManager_AddMessageAutoSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation_test.json")
	m := NewManager(path)

	require.NoError(t, m.AddMessage(llmtypes.Message{Role: llmtypes.RoleUser, Content: "first"}))
	require.NoError(t, m.AddMessage(llmtypes.Message{Role: llmtypes.RoleAssistant, Content: "second"}))

	assert.Equal(t, 2, m.MessageCount())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 2)
	assert.Equal(t, 2, loaded.Metadata.TotalMessages)
}

func TestManager_GetSessionIsIndependentCopy(t *testing.T) {
	m := NewManager("")
	require.NoError(t, m.AddMessage(llmtypes.Message{Role: llmtypes.RoleUser, Content: "a"}))

	snap := m.GetSession()
	snap.Messages[0].Content = "mutated"

	assert.Equal(t, "a", m.Messages()[0].Content)
}

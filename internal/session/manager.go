package session

import (
	"fmt"
	"sync"

	"github.com/agentcore/qcode/internal/llmtypes"
)

// Manager guards a Session behind a mutex and auto-saves to filePath after
// every mutation, mirroring the source's Session save-on-write behavior
// (spec.md §6's append-on-write persisted state).
type Manager struct {
	mu       sync.RWMutex
	session  *Session
	filePath string
}

// NewManager creates a Manager around a fresh Session. If filePath is
// empty, mutations are not persisted to disk.
func NewManager(filePath string) *Manager {
	return &Manager{session: New(), filePath: filePath}
}

// NewManagerWithSession wraps an existing Session (e.g. loaded from disk)
// for continued, auto-saved use.
func NewManagerWithSession(s *Session, filePath string) *Manager {
	return &Manager{session: s, filePath: filePath}
}

// AddMessage appends msg and, if configured, saves the session to disk.
func (m *Manager) AddMessage(msg llmtypes.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.AddMessage(msg)
	return m.saveLocked()
}

// AddMessages appends several messages in order, saving once at the end.
func (m *Manager) AddMessages(msgs []llmtypes.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.session.AddMessage(msg)
	}
	return m.saveLocked()
}

// SetMetadata replaces the session's ambient metadata (backend/model in
// use) and saves.
func (m *Manager) SetMetadata(meta Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta.TotalMessages = len(m.session.Messages)
	m.session.Metadata = meta
	return m.saveLocked()
}

// Messages returns a copy of the current message log.
func (m *Manager) Messages() []llmtypes.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]llmtypes.Message, len(m.session.Messages))
	copy(out, m.session.Messages)
	return out
}

// GetSession returns a deep copy of the managed session, safe to inspect
// without racing concurrent writers.
func (m *Manager) GetSession() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.session
	cp.Messages = make([]llmtypes.Message, len(m.session.Messages))
	copy(cp.Messages, m.session.Messages)
	return &cp
}

// Save forces a write to filePath even absent a new mutation.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.filePath == "" {
		return fmt.Errorf("session: no file path configured")
	}
	return m.session.SaveToFile(m.filePath)
}

// FilePath returns the configured auto-save path, or "" if none.
func (m *Manager) FilePath() string {
	return m.filePath
}

// MessageCount reports the number of messages currently logged.
func (m *Manager) MessageCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.session.Messages)
}

func (m *Manager) saveLocked() error {
	if m.filePath == "" {
		return nil
	}
	return m.session.SaveToFile(m.filePath)
}

// Package session implements the append-only conversation log (spec.md §3,
// §6): one JSON file per session, written incrementally as messages accrue.
// Grounded on original_source/src/qwen_tui/core/session.py's Session
// dataclass and conversation_<timestamp>.json persisted-state shape, with
// the message type itself reused directly from internal/llmtypes rather
// than re-declared here, since spec.md §3 defines Conversation Message
// once for the whole system.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agentcore/qcode/internal/llmtypes"
)

// Metadata records the ambient context a saved session was created under,
// per spec.md §6's persisted-state shape.
type Metadata struct {
	BackendType   string `json:"backend_type"`
	Model         string `json:"model"`
	TotalMessages int    `json:"total_messages"`
}

// Session is one append-only conversation log (spec.md §3's Session
// ownership of the Message log).
type Session struct {
	SessionID string            `json:"session_id"`
	StartedAt time.Time         `json:"started_at"`
	Messages  []llmtypes.Message `json:"messages"`
	Metadata  Metadata          `json:"metadata"`
}

// New creates a fresh, empty session with a generated ID.
func New() *Session {
	return &Session{
		SessionID: generateSessionID(),
		StartedAt: time.Now(),
		Messages:  []llmtypes.Message{},
	}
}

// AddMessage appends msg to the log. If msg has no timestamp, the current
// time is stamped in. Insertion order is semantically significant (spec.md
// §3): this never reorders or removes prior entries.
func (s *Session) AddMessage(msg llmtypes.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.Metadata.TotalMessages = len(s.Messages)
}

// FileName returns the conventional conversation_<timestamp>.json name for
// this session, per spec.md §6.
func (s *Session) FileName() string {
	return fmt.Sprintf("conversation_%d.json", s.StartedAt.Unix())
}

// SaveToFile serializes the session as indented JSON, append-on-write
// (spec.md §6): each call rewrites the whole file with the current
// in-memory state, which is the append contract observed from outside the
// process.
func (s *Session) SaveToFile(filePath string) error {
	s.Metadata.TotalMessages = len(s.Messages)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return os.WriteFile(filePath, data, 0644)
}

// LoadFromFile reads a previously saved session back from disk.
func LoadFromFile(filePath string) (*Session, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func generateSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess_%d", time.Now().UnixNano())
	}
	return "sess_" + hex.EncodeToString(b)
}

package permission

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/agentcore/qcode/internal/logx"
)

var storeLog = logx.For("permission.store")

// Store persists per-tool always-allow/always-deny decisions to a JSON
// file and reloads them when the file changes on disk, so a preference
// set by a concurrent qcode process (or edited by hand) takes effect
// without restarting. Grounded on PermissionPreferences in
// permission_dialog.py, whose save_preferences/load_preferences were left
// as TODO placeholders in the source; the on-disk format and the
// fsnotify-driven reload are this repo's completion of that stub.
type Store struct {
	mu    sync.RWMutex
	path  string
	prefs map[string]llmtypes.PermissionPreference

	watcher *fsnotify.Watcher
	done    chan struct{}
}

type storeFile struct {
	Preferences map[string]llmtypes.PermissionPreference `json:"preferences"`
}

// NewStore loads path if it exists (a missing file is not an error — it
// means no preferences have been saved yet) and starts watching it for
// external changes.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, prefs: make(map[string]llmtypes.PermissionPreference)}
	if err := s.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		storeLog.Warn("could not start preference file watcher", "error", err)
		return s, nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err == nil {
		_ = watcher.Add(dir)
	}
	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watchLoop()
	return s, nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := s.load(); err != nil {
					storeLog.Warn("failed to reload permission preferences", "error", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			storeLog.Warn("permission preference watcher error", "error", err)
		case <-s.done:
			return
		}
	}
}

// Close stops the file watcher.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var sf storeFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sf.Preferences != nil {
		s.prefs = sf.Preferences
	}
	return nil
}

func (s *Store) save() error {
	s.mu.RLock()
	sf := storeFile{Preferences: s.prefs}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Get returns the saved preference for toolName, if any.
func (s *Store) Get(toolName string) (llmtypes.PermissionPreference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[toolName]
	return p, ok
}

// Set saves pref for toolName and persists it immediately.
func (s *Store) Set(toolName string, pref llmtypes.PermissionPreference) error {
	s.mu.Lock()
	s.prefs[toolName] = pref
	s.mu.Unlock()
	return s.save()
}

// Clear removes any saved preference for toolName.
func (s *Store) Clear(toolName string) error {
	s.mu.Lock()
	delete(s.prefs, toolName)
	s.mu.Unlock()
	return s.save()
}

// ClearAll removes every saved preference.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	s.prefs = make(map[string]llmtypes.PermissionPreference)
	s.mu.Unlock()
	return s.save()
}

// Summary returns a snapshot of all saved preferences.
func (s *Store) Summary() map[string]llmtypes.PermissionPreference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]llmtypes.PermissionPreference, len(s.prefs))
	for k, v := range s.prefs {
		out[k] = v
	}
	return out
}

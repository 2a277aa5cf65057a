package permission

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetClearRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.Get("Bash")
	require.False(t, ok)

	require.NoError(t, s.Set("Bash", llmtypes.PreferenceAlwaysAllow))
	pref, ok := s.Get("Bash")
	require.True(t, ok)
	require.Equal(t, llmtypes.PreferenceAlwaysAllow, pref)

	require.NoError(t, s.Clear("Bash"))
	_, ok = s.Get("Bash")
	require.False(t, ok)
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s1, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set("Write", llmtypes.PreferenceAlwaysDeny))
	require.NoError(t, s1.Close())

	s2, err := NewStore(path)
	require.NoError(t, err)
	defer s2.Close()
	pref, ok := s2.Get("Write")
	require.True(t, ok)
	require.Equal(t, llmtypes.PreferenceAlwaysDeny, pref)
}

func TestStore_ReloadsOnExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s1, err := NewStore(path)
	require.NoError(t, err)
	defer s1.Close()

	s2, err := NewStore(path)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s1.Set("Edit", llmtypes.PreferenceAlwaysAllow))

	require.Eventually(t, func() bool {
		pref, ok := s2.Get("Edit")
		return ok && pref == llmtypes.PreferenceAlwaysAllow
	}, 2*time.Second, 20*time.Millisecond)
}

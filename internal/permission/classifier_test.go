package permission

import (
	"testing"

	"github.com/agentcore/qcode/internal/llmtypes"
	"github.com/stretchr/testify/require"
)

func TestCommandClassifier_CriticalBlocksImmediately(t *testing.T) {
	c := NewCommandClassifier()
	a := c.ClassifyCommand("rm -rf /")
	require.Equal(t, llmtypes.RiskCritical, a.RiskLevel)
	require.Equal(t, llmtypes.ActionBlock, a.Action)
}

func TestCommandClassifier_HighRiskPrompts(t *testing.T) {
	c := NewCommandClassifier()
	a := c.ClassifyCommand("sudo reboot")
	require.Equal(t, llmtypes.RiskHigh, a.RiskLevel)
	require.Equal(t, llmtypes.ActionPrompt, a.Action)
}

func TestCommandClassifier_SafeReadOnlyAllowed(t *testing.T) {
	c := NewCommandClassifier()
	a := c.ClassifyCommand("git status")
	require.Equal(t, llmtypes.RiskSafe, a.RiskLevel)
	require.Equal(t, llmtypes.ActionAllow, a.Action)
}

func TestCommandClassifier_FileWriteFallsBackToLowRiskPrompt(t *testing.T) {
	c := NewCommandClassifier()
	a := c.ClassifyCommand("touch newfile.txt")
	require.Equal(t, llmtypes.RiskLow, a.RiskLevel)
	require.Equal(t, llmtypes.ActionPrompt, a.Action)
}

func TestCommandClassifier_NetworkOperationPrompts(t *testing.T) {
	c := NewCommandClassifier()
	a := c.ClassifyCommand("curl https://example.com")
	require.Equal(t, llmtypes.RiskMedium, a.RiskLevel)
	require.Equal(t, llmtypes.ActionPrompt, a.Action)
}

func TestCommandClassifier_UnknownCommandDefaultsLowAllow(t *testing.T) {
	c := NewCommandClassifier()
	a := c.ClassifyCommand("some-custom-tool --flag")
	require.Equal(t, llmtypes.RiskLow, a.RiskLevel)
	require.Equal(t, llmtypes.ActionAllow, a.Action)
}

func TestFileAccessController_CriticalFileBlocked(t *testing.T) {
	fc := NewFileAccessController(t.TempDir())
	a := fc.AssessFileAccess("/etc/passwd", "read")
	require.Equal(t, llmtypes.RiskCritical, a.RiskLevel)
	require.Equal(t, llmtypes.ActionBlock, a.Action)
}

func TestFileAccessController_ProtectedDirWriteBlocked(t *testing.T) {
	fc := NewFileAccessController(t.TempDir())
	a := fc.AssessFileAccess("/etc/some-config.conf", "write")
	require.Equal(t, llmtypes.RiskHigh, a.RiskLevel)
	require.Equal(t, llmtypes.ActionBlock, a.Action)
}

func TestFileAccessController_ProtectedDirReadPrompts(t *testing.T) {
	fc := NewFileAccessController(t.TempDir())
	a := fc.AssessFileAccess("/etc/some-config.conf", "read")
	require.Equal(t, llmtypes.RiskMedium, a.RiskLevel)
	require.Equal(t, llmtypes.ActionPrompt, a.Action)
}

func TestFileAccessController_OutsideWorkingDirectoryPrompts(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileAccessController(dir)
	a := fc.AssessFileAccess("/tmp/somewhere-else-entirely/file.txt", "read")
	require.Equal(t, llmtypes.RiskMedium, a.RiskLevel)
	require.Equal(t, llmtypes.ActionPrompt, a.Action)
}

func TestFileAccessController_InsideWorkingDirectoryAllowed(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileAccessController(dir)
	a := fc.AssessFileAccess(dir+"/nested/file.txt", "write")
	require.Equal(t, llmtypes.RiskSafe, a.RiskLevel)
	require.Equal(t, llmtypes.ActionAllow, a.Action)
}

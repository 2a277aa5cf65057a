// Package permission implements the risk-assessment and approval pipeline
// gating tool execution (spec.md §4.4), grounded on
// original_source/src/qwen_tui/agents/permissions.py.
package permission

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentcore/qcode/internal/llmtypes"
)

// CommandClassifier assigns a RiskAssessment to a shell command by regex,
// grounded line-for-line on permissions.py's CommandClassifier.
type CommandClassifier struct {
	critical  []*regexp.Regexp
	highRisk  []*regexp.Regexp
	medium    []*regexp.Regexp
	safe      []*regexp.Regexp
	fileWrite []*regexp.Regexp
	network   []*regexp.Regexp
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// NewCommandClassifier builds a classifier with the patterns ported from
// the source's five risk tiers.
func NewCommandClassifier() *CommandClassifier {
	return &CommandClassifier{
		critical: compileAll([]string{
			`\brm\s+-rf\s+/`,
			`\bdd\s+if=/dev/zero`,
			`\bformat\s+`,
			`\bmkfs\.`,
			`\bfdisk\s+`,
			`\bsudo\s+rm\s+-rf`,
			`:\(\)\{\s*:|&\s*\}`,
		}),
		highRisk: compileAll([]string{
			`\brm\s+-rf\s+`,
			`\bsudo\s+`,
			`\bsu\s+`,
			`\bchmod\s+777`,
			`\bchown\s+`,
			`\bmv\s+.*\s+/`,
			`\bcp\s+.*\s+/`,
			`>\s*/dev/sd[a-z]`,
			`\bcrontab\s+`,
			`\bkill\s+-9`,
			`\bpkill\s+`,
			`\bkillall\s+`,
		}),
		medium: compileAll([]string{
			`\brm\s+.*\*`,
			`\bmv\s+.*\*`,
			`\bcp\s+-r\s+`,
			`\bfind\s+.*-delete`,
			`\bxargs\s+rm`,
			`>\s*/etc/`,
			`\bchmod\s+.*[0-7]{3}`,
			`\btar\s+.*--overwrite`,
			`\bgit\s+reset\s+--hard`,
			`\bgit\s+clean\s+-f`,
		}),
		safe: compileAll([]string{
			`^ls\s+`,
			`^cat\s+`,
			`^head\s+`,
			`^tail\s+`,
			`^grep\s+`,
			`^find\s+.*-type\s+f`,
			`^git\s+status`,
			`^git\s+log`,
			`^git\s+diff`,
			`^pwd$`,
			`^whoami$`,
			`^date$`,
			`^echo\s+`,
			`^which\s+`,
			`^type\s+`,
		}),
		fileWrite: compileAll([]string{
			`>\s*[^>]`,
			`>>\s*`,
			`\bcp\s+`,
			`\bmv\s+`,
			`\btouch\s+`,
			`\bmkdir\s+`,
		}),
		network: compileAll([]string{
			`\bcurl\s+`,
			`\bwget\s+`,
			`\bssh\s+`,
			`\bscp\s+`,
			`\bftp\s+`,
			`\btelnet\s+`,
			`\bnc\s+`,
		}),
	}
}

func anyMatch(patterns []*regexp.Regexp, s string) (*regexp.Regexp, bool) {
	for _, p := range patterns {
		if p.MatchString(s) {
			return p, true
		}
	}
	return nil, false
}

// ClassifyCommand assesses a shell command's risk, mirroring
// classify_command's tier ordering: critical, high, medium, safe, then
// file-write/network fallbacks, defaulting to low risk.
func (c *CommandClassifier) ClassifyCommand(command string) llmtypes.RiskAssessment {
	command = strings.TrimSpace(command)
	if command == "" {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskSafe, Action: llmtypes.ActionAllow,
			Reasons: []string{"Empty command"},
		}
	}

	if p, ok := anyMatch(c.critical, command); ok {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskCritical, Action: llmtypes.ActionBlock,
			Reasons:     []string{fmt.Sprintf("Critical operation detected: %s", p.String())},
			Warnings:    []string{"This command could cause severe system damage"},
			Suggestions: []string{"Consider if this operation is really necessary"},
		}
	}
	if p, ok := anyMatch(c.highRisk, command); ok {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskHigh, Action: llmtypes.ActionPrompt,
			Reasons:     []string{fmt.Sprintf("High-risk operation: %s", p.String())},
			Warnings:    []string{"This command requires elevated privileges or could cause data loss"},
			Suggestions: []string{"Verify the command parameters carefully"},
		}
	}
	if p, ok := anyMatch(c.medium, command); ok {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskMedium, Action: llmtypes.ActionPrompt,
			Reasons:     []string{fmt.Sprintf("Medium-risk operation: %s", p.String())},
			Warnings:    []string{"This command could modify or delete files"},
			Suggestions: []string{"Double-check file paths and parameters"},
		}
	}
	if p, ok := anyMatch(c.safe, command); ok {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskSafe, Action: llmtypes.ActionAllow,
			Reasons: []string{fmt.Sprintf("Safe read-only operation: %s", p.String())},
		}
	}

	_, isFileWrite := anyMatch(c.fileWrite, command)
	_, isNetwork := anyMatch(c.network, command)

	if isNetwork {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskMedium, Action: llmtypes.ActionPrompt,
			Reasons:     []string{"Network operation detected"},
			Warnings:    []string{"This command will make network connections"},
			Suggestions: []string{"Verify network destinations are trusted"},
		}
	}
	if isFileWrite {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskLow, Action: llmtypes.ActionPrompt,
			Reasons:     []string{"File modification operation"},
			Warnings:    []string{"This command will modify the filesystem"},
			Suggestions: []string{"Ensure you have backups of important files"},
		}
	}

	return llmtypes.RiskAssessment{
		RiskLevel: llmtypes.RiskLow, Action: llmtypes.ActionAllow,
		Reasons:     []string{"Unknown command pattern"},
		Warnings:    []string{"Command pattern not recognized"},
		Suggestions: []string{"Verify command syntax and intent"},
	}
}

// FileAccessController assesses filesystem-path risk, grounded on
// FileAccessController in permissions.py.
type FileAccessController struct {
	workingDirectory string
	protectedDirs    []string
	criticalFiles    map[string]bool
}

// NewFileAccessController builds a controller rooted at workingDirectory
// (the current directory if empty).
func NewFileAccessController(workingDirectory string) *FileAccessController {
	abs, err := filepath.Abs(workingDirectory)
	if err != nil || workingDirectory == "" {
		abs, _ = filepath.Abs(".")
	}
	return &FileAccessController{
		workingDirectory: abs,
		protectedDirs: []string{
			"/etc", "/usr", "/var", "/boot", "/sys", "/proc", "/dev",
			"/bin", "/sbin", "/lib", "/lib64", "/opt",
		},
		criticalFiles: map[string]bool{
			"/etc/passwd": true, "/etc/shadow": true, "/etc/sudoers": true,
			"/boot/grub/grub.cfg": true, "/etc/fstab": true, "/etc/hosts": true,
			"/etc/ssh/sshd_config": true,
		},
	}
}

// AssessFileAccess assesses the risk of an operation ("read", "write",
// "delete") against filePath, mirroring assess_file_access.
func (c *FileAccessController) AssessFileAccess(filePath, operation string) llmtypes.RiskAssessment {
	path, err := filepath.Abs(filePath)
	if err != nil {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskMedium, Action: llmtypes.ActionBlock,
			Reasons: []string{"Invalid file path"}, Warnings: []string{"Cannot resolve file path"},
			Suggestions: []string{"Check path syntax"},
		}
	}

	if c.criticalFiles[path] {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskCritical, Action: llmtypes.ActionBlock,
			Reasons:     []string{fmt.Sprintf("Access to critical system file: %s", path)},
			Warnings:    []string{"This file is critical for system operation"},
			Suggestions: []string{"System files should only be modified by administrators"},
		}
	}

	for _, dir := range c.protectedDirs {
		if strings.HasPrefix(path, dir) {
			action := llmtypes.ActionPrompt
			risk := llmtypes.RiskMedium
			if operation == "write" || operation == "delete" {
				action = llmtypes.ActionBlock
				risk = llmtypes.RiskHigh
			}
			return llmtypes.RiskAssessment{
				RiskLevel: risk, Action: action,
				Reasons:     []string{fmt.Sprintf("Access to protected directory: %s", dir)},
				Warnings:    []string{"This directory contains system files"},
				Suggestions: []string{"Ensure you have proper permissions"},
			}
		}
	}

	rel, err := filepath.Rel(c.workingDirectory, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return llmtypes.RiskAssessment{
			RiskLevel: llmtypes.RiskMedium, Action: llmtypes.ActionPrompt,
			Reasons:     []string{"File outside working directory"},
			Warnings:    []string{fmt.Sprintf("File is outside the current working directory: %s", c.workingDirectory)},
			Suggestions: []string{"Consider if access to external files is necessary"},
		}
	}

	return llmtypes.RiskAssessment{
		RiskLevel: llmtypes.RiskSafe, Action: llmtypes.ActionAllow,
		Reasons: []string{"File access within working directory"},
	}
}

// Package config loads and validates agentcore's configuration: backend
// connection settings, MCP server definitions, and permission coarse-grain
// knobs (spec.md §6). Configuration loads from an optional JSON or YAML
// file and is then overridden field-by-field by QWEN_TUI_-prefixed
// environment variables, matching the source's load_config precedence of
// defaults < file < environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentcore/qcode/internal/logx"
)

var log = logx.For("config")

// OllamaConfig configures the local JSON-lines driver.
type OllamaConfig struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Model     string `json:"model" yaml:"model"`
	Timeout   int    `json:"timeout" yaml:"timeout"`
	KeepAlive string `json:"keep_alive" yaml:"keep_alive"`
}

// LMStudioConfig configures the hot-swappable local OpenAI-compatible driver.
type LMStudioConfig struct {
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	Timeout int    `json:"timeout" yaml:"timeout"`
}

// VLLMConfig configures the local vLLM OpenAI-compatible driver.
type VLLMConfig struct {
	Host        string  `json:"host" yaml:"host"`
	Port        int     `json:"port" yaml:"port"`
	Model       string  `json:"model" yaml:"model"`
	Timeout     int     `json:"timeout" yaml:"timeout"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// OpenRouterConfig configures the remote bearer-authenticated driver.
type OpenRouterConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Timeout int    `json:"timeout" yaml:"timeout"`
}

// MCPServerConfig describes one remote tool server.
type MCPServerConfig struct {
	Name                string   `json:"name" yaml:"name"`
	URL                 string   `json:"url" yaml:"url"`
	Enabled             bool     `json:"enabled" yaml:"enabled"`
	Tools               []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Timeout             int      `json:"timeout" yaml:"timeout"`
	Auth                string   `json:"auth,omitempty" yaml:"auth,omitempty"`
	RetryAttempts       int      `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelaySeconds   int      `json:"retry_delay" yaml:"retry_delay"`
	HealthCheckInterval int      `json:"health_check_interval" yaml:"health_check_interval"`
}

// MCPConfig is the top-level MCP plane configuration.
type MCPConfig struct {
	Enabled bool              `json:"enabled" yaml:"enabled"`
	Servers []MCPServerConfig `json:"servers" yaml:"servers"`
}

// SecurityConfig carries the coarse-grain permission knobs. Fine-grain
// behavior is as specified in spec.md §4.4 regardless of profile.
type SecurityConfig struct {
	Profile           string   `json:"profile" yaml:"profile"`
	AllowFileWrite    bool     `json:"allow_file_write" yaml:"allow_file_write"`
	AllowFileDelete   bool     `json:"allow_file_delete" yaml:"allow_file_delete"`
	AllowNetwork      bool     `json:"allow_network" yaml:"allow_network"`
	RequireApprovalFor []string `json:"require_approval_for" yaml:"require_approval_for"`
}

// LoggingConfig configures the logging sink (out of core scope per spec.md
// §1, carried here only so the CLI entry point can wire it).
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Config is the root configuration object.
type Config struct {
	PreferredBackends []string         `json:"preferred_backends" yaml:"preferred_backends"`
	Ollama            OllamaConfig     `json:"ollama" yaml:"ollama"`
	LMStudio          LMStudioConfig   `json:"lm_studio" yaml:"lm_studio"`
	VLLM              VLLMConfig       `json:"vllm" yaml:"vllm"`
	OpenRouter        OpenRouterConfig `json:"openrouter" yaml:"openrouter"`
	MCP               MCPConfig        `json:"mcp" yaml:"mcp"`
	Security          SecurityConfig   `json:"security" yaml:"security"`
	Logging           LoggingConfig    `json:"logging" yaml:"logging"`

	MaxContextTokens int  `json:"max_context_tokens" yaml:"max_context_tokens"`
	ParallelTools    int  `json:"parallel_tools" yaml:"parallel_tools"`
	CacheResponses   bool `json:"cache_responses" yaml:"cache_responses"`
}

// Default returns a Config populated with the same defaults as the source
// (qwen_tui/config.py).
func Default() *Config {
	return &Config{
		PreferredBackends: []string{"ollama", "lm_studio"},
		Ollama: OllamaConfig{
			Host: "localhost", Port: 11434, Model: "qwen2.5-coder:latest",
			Timeout: 300, KeepAlive: "5m",
		},
		LMStudio: LMStudioConfig{Host: "localhost", Port: 1234, Timeout: 300},
		VLLM: VLLMConfig{
			Host: "localhost", Port: 8000, Model: "Qwen/Qwen2.5-Coder-7B-Instruct",
			Timeout: 300, MaxTokens: 4096, Temperature: 0.1,
		},
		OpenRouter: OpenRouterConfig{
			Model: "qwen/qwen-2.5-coder-32b-instruct", BaseURL: "https://openrouter.ai/api/v1",
			Timeout: 300,
		},
		MCP:     MCPConfig{Enabled: true},
		Security: SecurityConfig{
			Profile: "balanced", AllowNetwork: true, AllowFileWrite: true,
			RequireApprovalFor: []string{"file_delete", "shell_exec", "network_request"},
		},
		Logging:          LoggingConfig{Level: "INFO"},
		MaxContextTokens: 32000,
		ParallelTools:    3,
		CacheResponses:   true,
	}
}

// Load reads configuration from path (if non-empty and present), falling
// back to defaults, then applies QWEN_TUI_-prefixed environment overrides.
// Unknown top-level keys only warn; unknown keys inside mcp.servers[] are
// hard errors (spec.md §9).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	if err := validateMCPServers(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("config file not found, using defaults", "path", path)
			return nil
		}
		return fmt.Errorf("ConfigError: reading %s: %w", path, err)
	}

	isYAML := strings.EqualFold(filepath.Ext(path), ".yaml") || strings.EqualFold(filepath.Ext(path), ".yml")

	var raw map[string]json.RawMessage
	if isYAML {
		var generic map[string]any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("ConfigError: invalid YAML in %s: %w", path, err)
		}
		reencoded, _ := json.Marshal(generic)
		if err := json.Unmarshal(reencoded, &raw); err != nil {
			return fmt.Errorf("ConfigError: %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ConfigError: invalid JSON in %s: %w", path, err)
	}

	known := knownTopLevelKeys()
	for key := range raw {
		if !known[key] {
			log.Warn("unknown configuration key ignored", "key", key)
		}
	}

	if isYAML {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("ConfigError: %s: %w", path, err)
		}
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("ConfigError: %s: %w", path, err)
	}
	return nil
}

func knownTopLevelKeys() map[string]bool {
	return map[string]bool{
		"preferred_backends": true, "ollama": true, "lm_studio": true,
		"vllm": true, "openrouter": true, "mcp": true, "security": true,
		"logging": true, "max_context_tokens": true, "parallel_tools": true,
		"cache_responses": true,
	}
}

// validateMCPServers treats unrecognized keys inside mcp.servers[] as
// errors, per the §9 design note ("unknown keys are warnings, not errors,
// except inside mcp.servers[] where they are errors").
func validateMCPServers(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var raw map[string]json.RawMessage
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		var generic map[string]any
		if yaml.Unmarshal(data, &generic) != nil {
			return nil
		}
		reencoded, _ := json.Marshal(generic)
		if json.Unmarshal(reencoded, &raw) != nil {
			return nil
		}
	} else if json.Unmarshal(data, &raw) != nil {
		return nil
	}

	mcpRaw, ok := raw["mcp"]
	if !ok {
		return nil
	}
	var mcpMap struct {
		Servers []map[string]json.RawMessage `json:"servers"`
	}
	if err := json.Unmarshal(mcpRaw, &mcpMap); err != nil {
		return nil
	}

	known := map[string]bool{
		"name": true, "url": true, "enabled": true, "tools": true,
		"timeout": true, "auth": true, "retry_attempts": true,
		"retry_delay": true, "health_check_interval": true,
	}
	for i, server := range mcpMap.Servers {
		for key := range server {
			if !known[key] {
				return fmt.Errorf("ConfigError: mcp.servers[%d] has unknown key %q", i, key)
			}
		}
	}
	return nil
}

// applyEnvOverrides mirrors the source's explicit per-field overrides. It
// recognizes QWEN_TUI_BACKENDS, QWEN_TUI_OLLAMA_{HOST,PORT,MODEL},
// QWEN_TUI_LM_STUDIO_{HOST,PORT}, QWEN_TUI_VLLM_{HOST,PORT,MODEL},
// QWEN_TUI_OPENROUTER_MODEL, QWEN_TUI_LOG_LEVEL, QWEN_TUI_LOG_FILE,
// QWEN_TUI_SECURITY_PROFILE, and OPENROUTER_API_KEY for the OpenRouter key.
// Config fields not in this list have no environment override.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QWEN_TUI_BACKENDS"); v != "" {
		cfg.PreferredBackends = strings.Split(v, ",")
	}

	if v := os.Getenv("QWEN_TUI_OLLAMA_HOST"); v != "" {
		cfg.Ollama.Host = v
	}
	if v := os.Getenv("QWEN_TUI_OLLAMA_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ollama.Port = n
		} else {
			log.Warn("invalid QWEN_TUI_OLLAMA_PORT, keeping default", "value", v)
		}
	}
	if v := os.Getenv("QWEN_TUI_OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}

	if v := os.Getenv("QWEN_TUI_LM_STUDIO_HOST"); v != "" {
		cfg.LMStudio.Host = v
	}
	if v := os.Getenv("QWEN_TUI_LM_STUDIO_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LMStudio.Port = n
		} else {
			log.Warn("invalid QWEN_TUI_LM_STUDIO_PORT, keeping default", "value", v)
		}
	}

	if v := os.Getenv("QWEN_TUI_VLLM_HOST"); v != "" {
		cfg.VLLM.Host = v
	}
	if v := os.Getenv("QWEN_TUI_VLLM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.VLLM.Port = n
		} else {
			log.Warn("invalid QWEN_TUI_VLLM_PORT, keeping default", "value", v)
		}
	}
	if v := os.Getenv("QWEN_TUI_VLLM_MODEL"); v != "" {
		cfg.VLLM.Model = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.OpenRouter.APIKey = v
	}
	if v := os.Getenv("QWEN_TUI_OPENROUTER_MODEL"); v != "" {
		cfg.OpenRouter.Model = v
	}

	if v := os.Getenv("QWEN_TUI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToUpper(v)
	}
	if v := os.Getenv("QWEN_TUI_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	if v := os.Getenv("QWEN_TUI_SECURITY_PROFILE"); v != "" {
		cfg.Security.Profile = v
	}
}

// DefaultPath returns the conventional config file location,
// ~/.agentcore/config.json, matching this module's own name rather than
// the source's qwen-tui naming; callers pass --config explicitly for
// anything nonstandard.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".agentcore", "config.json")
}

// Package config loads the itaccess configuration.
//
// Sources, highest priority first:
//  1. environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL,
//     ANTHROPIC_API_KEY, ITACCESS_*)
//  2. the file named by --config
//  3. ~/.config/itaccess/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	ModeInteractive = "interactive"
	ModeAutoApprove = "auto-approve"
	ModeReadOnly    = "read-only"
)

// ProviderConfig holds the credentials and defaults of one LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// PermissionConfig controls which tool calls run without asking.
type PermissionConfig struct {
	// Mode: "interactive" (default) | "auto-approve" | "read-only"
	Mode string `yaml:"mode"`

	// ProtectedUsers can never be the target of a write, whatever the mode.
	ProtectedUsers []string `yaml:"protected_users"`
}

// StoreConfig selects the resource store backend and its initial data.
type StoreConfig struct {
	// Backend: "memory" (default) | "sqlite"
	Backend string `yaml:"backend"`

	// Snapshot is a JSON or YAML file with users, resources and
	// permissions. Empty means the built-in sample data.
	Snapshot string `yaml:"snapshot"`

	// PermissionIDs is the pool new permission ids are drawn from.
	PermissionIDs []string `yaml:"permission_ids"`
}

type ClockConfig struct {
	// GrantDate is stamped on every permission created in this session.
	GrantDate string `yaml:"grant_date"`
}

type GateConfig struct {
	Enabled    bool   `yaml:"enabled"`
	VerifyTool string `yaml:"verify_tool"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
	File     string `yaml:"file"`
}

type MetricsConfig struct {
	// Addr, when set, serves /metrics on this address.
	Addr string `yaml:"addr"`
}

// Config is the complete itaccess configuration.
type Config struct {
	// Provider is the active provider name ("anthropic", "openai", "deepseek", ...).
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	Providers map[string]*ProviderConfig `yaml:"providers"`

	Permissions PermissionConfig `yaml:"permissions"`

	// SystemPrompt replaces the built-in access policy prompt when set.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxIterations caps model turns per user message (default 25).
	MaxIterations int `yaml:"max_iterations"`

	Store   StoreConfig   `yaml:"store"`
	Clock   ClockConfig   `yaml:"clock"`
	Gate    GateConfig    `yaml:"gate"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Provider:      "anthropic",
		MaxIterations: 25,
		Providers:     make(map[string]*ProviderConfig),
		Permissions: PermissionConfig{
			Mode: ModeInteractive,
		},
		Store: StoreConfig{
			Backend:       "memory",
			PermissionIDs: []string{"perm_new_001", "perm_new_002", "perm_new_003"},
		},
		Clock: ClockConfig{GrantDate: "2024-05-15"},
		Gate: GateConfig{
			Enabled:    true,
			VerifyTool: "get_user_permissions",
		},
		Log: LogConfig{Level: "warn", Encoding: "console"},
	}
}

// DefaultPath returns ~/.config/itaccess/config.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "itaccess", "config.yaml")
}

// Load reads the config file, merges environment overrides and validates
// the result. A missing default file is not an error; a missing explicit
// one is.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot act on.
func (c *Config) Validate() error {
	var errs []error
	switch c.Permissions.Mode {
	case ModeInteractive, ModeAutoApprove, ModeReadOnly:
	default:
		errs = append(errs, fmt.Errorf("permissions.mode: unknown mode %q", c.Permissions.Mode))
	}
	switch c.Store.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if len(c.Store.PermissionIDs) == 0 {
		errs = append(errs, errors.New("store.permission_ids: pool is empty"))
	}
	if c.Clock.GrantDate == "" {
		errs = append(errs, errors.New("clock.grant_date: must not be empty"))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations: must be positive, got %d", c.MaxIterations))
	}
	if c.Gate.Enabled && c.Gate.VerifyTool == "" {
		errs = append(errs, errors.New("gate.verify_tool: required when the gate is enabled"))
	}
	return errors.Join(errs...)
}

// GetProviderConfig returns the named provider's config, or an empty one.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

func (c *Config) providerEntry(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

func applyEnvOverrides(cfg *Config) {
	// Provider selection first so the generic keys land on the right entry.
	if v := os.Getenv("ITACCESS_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("ITACCESS_MODEL"); v != "" {
		cfg.Model = v
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.providerEntry(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.providerEntry(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.providerEntry("anthropic").APIKey = v
	}

	if v := os.Getenv("ITACCESS_SNAPSHOT"); v != "" {
		cfg.Store.Snapshot = v
	}
	if v := os.Getenv("ITACCESS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

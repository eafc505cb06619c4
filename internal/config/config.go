// Package config handles configuration loading and management for veda.
// It supports XDG config paths, project-level overrides, environment
// variables and live reload of the loaded files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// ProjectFileName is the project-level override file.
const ProjectFileName = ".veda.yaml"

// Config holds all configuration for veda.
type Config struct {
	Analyzer     AnalyzerConfig     `mapstructure:"analyzer"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Stall        StallConfig        `mapstructure:"stall"`
	Instances    InstancesConfig    `mapstructure:"instances"`
	UI           UIConfig           `mapstructure:"ui"`
	Journal      JournalConfig      `mapstructure:"journal"`
	Log          LogConfig          `mapstructure:"log"`
}

// AnalyzerConfig selects the secondary model used for coordination and
// stall analysis.
type AnalyzerConfig struct {
	// Backend is "anthropic" or "ollama".
	Backend  string `mapstructure:"backend"`
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	// Bedrock routes Anthropic calls through AWS Bedrock.
	Bedrock    bool   `mapstructure:"bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	MaxTokens  int    `mapstructure:"max_tokens"`
}

// CoordinationConfig bounds multi-instance coordination.
type CoordinationConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StallConfig holds stall detection settings.
type StallConfig struct {
	Threshold           time.Duration `mapstructure:"threshold"`
	InterventionTimeout time.Duration `mapstructure:"intervention_timeout"`
	RequireUserMessage  bool          `mapstructure:"require_user_message"`
}

// InstancesConfig holds subprocess settings.
type InstancesConfig struct {
	Max          int           `mapstructure:"max"`
	ClaudeBinary string        `mapstructure:"claude_binary"`
	MCPConfig    string        `mapstructure:"mcp_config"`
	Model        string        `mapstructure:"model"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// UIConfig holds TUI display settings.
type UIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
	AutoMode    bool          `mapstructure:"auto_mode"`
}

// JournalConfig holds audit journal settings.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Path defaults to .veda/journal.db under the working directory.
	Path string `mapstructure:"path"`
}

// LogConfig holds log file settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Path defaults to .veda/logs/veda.log under the working directory.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, VEDA_<SECTION>_<KEY>)
// 2. Project config (.veda.yaml in current directory or parent)
// 3. User config (~/.config/veda/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path on top of the
// defaults.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("VEDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("analyzer.api_key", "VEDA_ANALYZER_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("analyzer.aws_region", "VEDA_ANALYZER_AWS_REGION", "AWS_REGION")
	v.BindEnv("analyzer.aws_profile", "VEDA_ANALYZER_AWS_PROFILE", "AWS_PROFILE")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Analyzer.APIKey = expandEnv(cfg.Analyzer.APIKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the orchestrator cannot run with.
func (c *Config) Validate() error {
	switch c.Analyzer.Backend {
	case "anthropic", "ollama", "none":
	default:
		return fmt.Errorf("analyzer.backend: unknown backend %q", c.Analyzer.Backend)
	}
	if c.Instances.Max < 0 {
		return fmt.Errorf("instances.max must not be negative, got %d", c.Instances.Max)
	}
	if c.Instances.PollInterval <= 0 {
		return fmt.Errorf("instances.poll_interval must be positive, got %s", c.Instances.PollInterval)
	}
	if c.Stall.Threshold <= 0 {
		return fmt.Errorf("stall.threshold must be positive, got %s", c.Stall.Threshold)
	}
	return nil
}

// Watch re-runs Load whenever the user or project config file changes and
// passes the result to onChange. Load errors are passed through with a nil
// Config. It returns the files being watched.
func Watch(onChange func(*Config, error)) ([]string, error) {
	var watched []string
	for _, path := range []string{GetUserConfigPath(), findProjectConfig()} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return watched, fmt.Errorf("reading %s: %w", path, err)
		}
		v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			onChange(Load())
		})
		v.WatchConfig()
		watched = append(watched, path)
	}
	return watched, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("analyzer.backend", d.Analyzer.Backend)
	v.SetDefault("analyzer.model", d.Analyzer.Model)
	v.SetDefault("analyzer.endpoint", d.Analyzer.Endpoint)
	v.SetDefault("analyzer.api_key", "")
	v.SetDefault("analyzer.bedrock", false)
	v.SetDefault("analyzer.aws_region", "")
	v.SetDefault("analyzer.aws_profile", "")
	v.SetDefault("analyzer.max_tokens", d.Analyzer.MaxTokens)

	v.SetDefault("coordination.enabled", d.Coordination.Enabled)
	v.SetDefault("coordination.timeout", d.Coordination.Timeout.String())

	v.SetDefault("stall.threshold", d.Stall.Threshold.String())
	v.SetDefault("stall.intervention_timeout", d.Stall.InterventionTimeout.String())
	v.SetDefault("stall.require_user_message", d.Stall.RequireUserMessage)

	v.SetDefault("instances.max", d.Instances.Max)
	v.SetDefault("instances.claude_binary", d.Instances.ClaudeBinary)
	v.SetDefault("instances.mcp_config", "")
	v.SetDefault("instances.model", "")
	v.SetDefault("instances.poll_interval", d.Instances.PollInterval.String())

	v.SetDefault("ui.refresh_rate", d.UI.RefreshRate.String())
	v.SetDefault("ui.auto_mode", d.UI.AutoMode)

	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", "")

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.path", "")
}

// getUserConfigDir returns the XDG config directory for veda.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "veda")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "veda")
	}
	return filepath.Join(home, ".config", "veda")
}

// findProjectConfig searches for .veda.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			Backend:   "anthropic",
			MaxTokens: 1024,
		},
		Coordination: CoordinationConfig{
			Enabled: true,
			Timeout: 180 * time.Second,
		},
		Stall: StallConfig{
			Threshold:           5 * time.Minute,
			InterventionTimeout: 60 * time.Second,
			RequireUserMessage:  true,
		},
		Instances: InstancesConfig{
			Max:          6,
			ClaudeBinary: "claude",
			PollInterval: 50 * time.Millisecond,
		},
		UI: UIConfig{
			RefreshRate: 100 * time.Millisecond,
			AutoMode:    true,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// YAML renders c for display. Durations are written in Go notation and the
// API key is masked.
func (c *Config) YAML() ([]byte, error) {
	doc := map[string]any{
		"analyzer": map[string]any{
			"backend":     c.Analyzer.Backend,
			"model":       c.Analyzer.Model,
			"endpoint":    c.Analyzer.Endpoint,
			"api_key":     MaskAPIKey(c.Analyzer.APIKey),
			"bedrock":     c.Analyzer.Bedrock,
			"aws_region":  c.Analyzer.AWSRegion,
			"aws_profile": c.Analyzer.AWSProfile,
			"max_tokens":  c.Analyzer.MaxTokens,
		},
		"coordination": map[string]any{
			"enabled": c.Coordination.Enabled,
			"timeout": c.Coordination.Timeout.String(),
		},
		"stall": map[string]any{
			"threshold":            c.Stall.Threshold.String(),
			"intervention_timeout": c.Stall.InterventionTimeout.String(),
			"require_user_message": c.Stall.RequireUserMessage,
		},
		"instances": map[string]any{
			"max":           c.Instances.Max,
			"claude_binary": c.Instances.ClaudeBinary,
			"mcp_config":    c.Instances.MCPConfig,
			"model":         c.Instances.Model,
			"poll_interval": c.Instances.PollInterval.String(),
		},
		"ui": map[string]any{
			"refresh_rate": c.UI.RefreshRate.String(),
			"auto_mode":    c.UI.AutoMode,
		},
		"journal": map[string]any{
			"enabled": c.Journal.Enabled,
			"path":    c.Journal.Path,
		},
		"log": map[string]any{
			"level": c.Log.Level,
			"path":  c.Log.Path,
		},
	}
	return yaml.Marshal(doc)
}

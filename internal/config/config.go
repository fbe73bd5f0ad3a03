// Package config loads verifix configuration from XDG paths, a project-level
// .verifix.yaml, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/verifix-dev/verifix/pkg/models"
)

// roundTimeoutDisabled is the configuration value that turns the per-round
// deadline off.
const roundTimeoutDisabled = "disabled"

// Config holds all configuration for verifix.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Verify     VerifyConfig     `mapstructure:"verify"`
	Repair     RepairConfig     `mapstructure:"repair"`
	Safety     SafetyConfig     `mapstructure:"safety"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	TUI        TUIConfig        `mapstructure:"tui"`
}

// AnthropicConfig holds inference backend settings.
type AnthropicConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	UseBedrock     bool   `mapstructure:"use_bedrock"`
	BedrockRegion  string `mapstructure:"bedrock_region"`
	BedrockProfile string `mapstructure:"bedrock_profile"`
}

// VerifyConfig holds external verifier settings. Command is a shell command
// with a {file} placeholder for the artifact path.
type VerifyConfig struct {
	Command string        `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
	FileExt string        `mapstructure:"file_ext"`
}

// RepairConfig holds round loop settings. RoundTimeout is a duration string
// or "disabled".
type RepairConfig struct {
	MaxRounds    int            `mapstructure:"max_rounds"`
	RoundTimeout string         `mapstructure:"round_timeout"`
	Priority     map[string]int `mapstructure:"priority"`
}

// SafetyConfig holds safety checker settings.
type SafetyConfig struct {
	ImmutableRegions []string `mapstructure:"immutable_regions"`
	Markers          []string `mapstructure:"markers"`
}

// CheckpointConfig holds best-artifact persistence settings, relative to the
// project root unless absolute.
type CheckpointConfig struct {
	Path      string `mapstructure:"path"`
	TrialsDir string `mapstructure:"trials_dir"`
}

// TUIConfig holds progress display settings.
type TUIConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// RoundTimeoutDuration parses the configured round timeout. "disabled" and
// the empty string yield zero, which the driver treats as no deadline.
func (rc RepairConfig) RoundTimeoutDuration() (time.Duration, error) {
	if rc.RoundTimeout == "" || rc.RoundTimeout == roundTimeoutDisabled {
		return 0, nil
	}
	d, err := time.ParseDuration(rc.RoundTimeout)
	if err != nil {
		return 0, fmt.Errorf("parse round_timeout %q: %w", rc.RoundTimeout, err)
	}
	return d, nil
}

// PriorityOverrides converts the configured priority map to error kinds.
// Unknown kind names are rejected rather than silently dropped.
func (rc RepairConfig) PriorityOverrides() (map[models.ErrorKind]int, error) {
	if len(rc.Priority) == 0 {
		return nil, nil
	}
	overrides := make(map[models.ErrorKind]int, len(rc.Priority))
	for name, prio := range rc.Priority {
		kind := models.ParseKind(name)
		if kind == models.KindOther && name != string(models.KindOther) {
			return nil, fmt.Errorf("unknown error kind in priority override: %q", name)
		}
		overrides[kind] = prio
	}
	return overrides, nil
}

// Load loads configuration with the following precedence, highest first:
// environment variables (ANTHROPIC_API_KEY), the project .verifix.yaml found
// in the current directory or a parent, the user config at
// ~/.config/verifix/config.yaml, and built-in defaults.
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

	if projectConfig := FindProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from one specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.bedrock_region", cfg.Anthropic.BedrockRegion)
	v.Set("anthropic.bedrock_profile", cfg.Anthropic.BedrockProfile)
	v.Set("verify.command", cfg.Verify.Command)
	v.Set("verify.timeout", cfg.Verify.Timeout.String())
	v.Set("verify.file_ext", cfg.Verify.FileExt)
	v.Set("repair.max_rounds", cfg.Repair.MaxRounds)
	v.Set("repair.round_timeout", cfg.Repair.RoundTimeout)
	v.Set("checkpoint.path", cfg.Checkpoint.Path)
	v.Set("checkpoint.trials_dir", cfg.Checkpoint.TrialsDir)
	v.Set("tui.enabled", cfg.TUI.Enabled)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path of the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// FindProjectConfig searches for .verifix.yaml in the current directory and
// its parents, returning the empty string if none exists.
func FindProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".verifix.yaml")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("verify.command", "verus {file}")
	v.SetDefault("verify.timeout", "2m")
	v.SetDefault("verify.file_ext", ".rs")

	v.SetDefault("repair.max_rounds", 10)
	v.SetDefault("repair.round_timeout", "5m")

	v.SetDefault("checkpoint.path", ".verifix/checkpoint.json")
	v.SetDefault("checkpoint.trials_dir", ".verifix/trials")

	v.SetDefault("tui.enabled", true)
	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for verifix.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "verifix")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "verifix")
	}
	return filepath.Join(home, ".config", "verifix")
}

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 8192,
		},
		Verify: VerifyConfig{
			Command: "verus {file}",
			Timeout: 2 * time.Minute,
			FileExt: ".rs",
		},
		Repair: RepairConfig{
			MaxRounds:    10,
			RoundTimeout: "5m",
		},
		Checkpoint: CheckpointConfig{
			Path:      ".verifix/checkpoint.json",
			TrialsDir: ".verifix/trials",
		},
		TUI: TUIConfig{
			Enabled:     true,
			RefreshRate: 100 * time.Millisecond,
		},
	}
}

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/verifix-dev/verifix/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify verifix configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value in the user config file.

Configuration is stored at ~/.config/verifix/config.yaml.
Project-specific overrides can be placed in .verifix.yaml.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func displayAllConfig(cfg *config.Config) {
	fmt.Printf("# %s\n", config.GetUserConfigPath())
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.max_tokens: %d\n", cfg.Anthropic.MaxTokens)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("verify.command: %s\n", cfg.Verify.Command)
	fmt.Printf("verify.timeout: %s\n", cfg.Verify.Timeout)
	fmt.Printf("verify.file_ext: %s\n", cfg.Verify.FileExt)
	fmt.Printf("repair.max_rounds: %d\n", cfg.Repair.MaxRounds)
	fmt.Printf("repair.round_timeout: %s\n", cfg.Repair.RoundTimeout)
	fmt.Printf("checkpoint.path: %s\n", cfg.Checkpoint.Path)
	fmt.Printf("checkpoint.trials_dir: %s\n", cfg.Checkpoint.TrialsDir)
	fmt.Printf("tui.enabled: %t\n", cfg.TUI.Enabled)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Set %s = %s in %s\n", key, value, config.GetUserConfigPath())
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.max_tokens":
		return strconv.Itoa(cfg.Anthropic.MaxTokens), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "verify.command":
		return cfg.Verify.Command, nil
	case "verify.timeout":
		return cfg.Verify.Timeout.String(), nil
	case "verify.file_ext":
		return cfg.Verify.FileExt, nil
	case "repair.max_rounds":
		return strconv.Itoa(cfg.Repair.MaxRounds), nil
	case "repair.round_timeout":
		return cfg.Repair.RoundTimeout, nil
	case "checkpoint.path":
		return cfg.Checkpoint.Path, nil
	case "checkpoint.trials_dir":
		return cfg.Checkpoint.TrialsDir, nil
	case "tui.enabled":
		return strconv.FormatBool(cfg.TUI.Enabled), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("max_tokens must be a positive integer")
		}
		cfg.Anthropic.MaxTokens = n
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("use_bedrock must be true or false")
		}
		cfg.Anthropic.UseBedrock = b
	case "verify.command":
		cfg.Verify.Command = value
	case "verify.file_ext":
		cfg.Verify.FileExt = value
	case "repair.max_rounds":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("max_rounds must be a positive integer")
		}
		cfg.Repair.MaxRounds = n
	case "repair.round_timeout":
		probe := config.RepairConfig{RoundTimeout: value}
		if _, err := probe.RoundTimeoutDuration(); err != nil {
			return err
		}
		cfg.Repair.RoundTimeout = value
	case "checkpoint.path":
		cfg.Checkpoint.Path = value
	case "checkpoint.trials_dir":
		cfg.Checkpoint.TrialsDir = value
	default:
		return fmt.Errorf("unknown or read-only configuration key: %s", key)
	}
	return nil
}

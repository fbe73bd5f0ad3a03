package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "verifix",
	Short: "Verification-guided repair for annotated code",
	Long: `Verifix repairs annotated source artifacts that fail formal verification.

Given an artifact and an external verifier command, verifix classifies the
reported errors, dispatches each to a specialized repair strategy backed by
generative inference, and iterates in bounded rounds until the artifact
verifies, no round makes progress, or the round budget runs out. Every
candidate rewrite is safety-checked against the original, and the
best-scoring artifact seen is checkpointed and restored on failure.

Configuration lives at ~/.config/verifix/config.yaml with per-project
overrides in .verifix.yaml.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(versionCmd)
}

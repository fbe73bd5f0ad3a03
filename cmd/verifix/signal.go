package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verifix-dev/verifix/internal/signal"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running repair to stop",
	Long: `Signal the repair running in this project to stop at the next round
boundary. The run finishes its in-flight call, restores the best checkpoint,
and terminates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSignal(signal.RequestStop, "stop requested")
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Ask a running repair to pause",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSignal(signal.RequestPause, "pause requested")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Clear a pause signal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSignal(signal.ClearPause, "resumed")
	},
}

func sendSignal(send func(string) error, confirmation string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	if err := send(cwd); err != nil {
		return err
	}
	fmt.Println(confirmation)
	return nil
}

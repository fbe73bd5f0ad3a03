// Package exec provides an interface for running the external verifier
// command. The abstraction exists so verifier invocations can be faked in
// tests without shelling out.
package exec

import (
	"context"
)

// CommandRunner defines the interface for running external commands.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output and
	// the process exit code. The working directory is set to workDir if
	// non-empty. A non-zero exit code is not an error; err is reserved for
	// failures to start or complete the process.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, exitCode int, err error)

	// RunShell executes a shell command through "sh -c".
	RunShell(ctx context.Context, workDir string, command string) (output []byte, exitCode int, err error)
}

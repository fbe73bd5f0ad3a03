package verify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/verifix-dev/verifix/internal/exec"
	"github.com/verifix-dev/verifix/pkg/models"
)

// CommandVerifier runs an external verifier command against artifact text.
// The artifact is written to a scratch file and the command's "{file}"
// placeholder is replaced with its path.
type CommandVerifier struct {
	command string
	workDir string
	fileExt string
	timeout time.Duration
	runner  exec.CommandRunner
}

// CommandVerifierConfig configures a CommandVerifier.
type CommandVerifierConfig struct {
	// Command is the shell command to run, with a "{file}" placeholder for
	// the artifact path (e.g. "verus {file}").
	Command string
	// WorkDir is the directory the command runs in.
	WorkDir string
	// FileExt is the extension for scratch artifact files (default ".rs").
	FileExt string
	// Timeout bounds a single verifier invocation (default 5m).
	Timeout time.Duration
	// Runner overrides the command runner, for tests.
	Runner exec.CommandRunner
}

// NewCommandVerifier creates a verifier that shells out to an external tool.
func NewCommandVerifier(cfg CommandVerifierConfig) *CommandVerifier {
	ext := cfg.FileExt
	if ext == "" {
		ext = ".rs"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	runner := cfg.Runner
	if runner == nil {
		runner = exec.NewRunner()
	}
	return &CommandVerifier{
		command: cfg.Command,
		workDir: cfg.WorkDir,
		fileExt: ext,
		timeout: timeout,
		runner:  runner,
	}
}

// Verify writes the artifact to a scratch file, runs the verifier command,
// and parses its output. A crashing or unparseable verifier run is reported
// as a compilation-failure Score, not an error; err is reserved for
// infrastructure problems such as an unwritable scratch directory.
func (v *CommandVerifier) Verify(ctx context.Context, code string) (*Result, error) {
	tmp, err := os.CreateTemp("", "verifix-artifact-*"+v.fileExt)
	if err != nil {
		return nil, fmt.Errorf("create scratch artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write scratch artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close scratch artifact: %w", err)
	}

	command := strings.ReplaceAll(v.command, "{file}", tmpPath)

	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	output, exitCode, err := v.runner.RunShell(runCtx, v.workDir, command)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The tool itself crashed or could not start. Treat as a
		// compilation failure so the repair engine attempts the generic
		// syntax path rather than aborting the run.
		return &Result{
			Score:     models.CompilationFailure(),
			RawOutput: string(output),
		}, nil
	}

	score, failures := ParseOutput(string(output), exitCode)
	return &Result{
		Score:     score,
		Errors:    failures,
		RawOutput: string(output),
	}, nil
}

// Verify CommandVerifier implements Verifier at compile time.
var _ Verifier = (*CommandVerifier)(nil)

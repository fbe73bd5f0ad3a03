package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/verifix-dev/verifix/internal/checkpoint"
	"github.com/verifix-dev/verifix/internal/config"
	"github.com/verifix-dev/verifix/internal/driver"
	"github.com/verifix-dev/verifix/internal/infer"
	"github.com/verifix-dev/verifix/internal/repair"
	"github.com/verifix-dev/verifix/internal/safety"
	"github.com/verifix-dev/verifix/internal/session"
	"github.com/verifix-dev/verifix/internal/signal"
	"github.com/verifix-dev/verifix/internal/state"
	"github.com/verifix-dev/verifix/internal/tui"
	"github.com/verifix-dev/verifix/internal/verify"
	"github.com/verifix-dev/verifix/pkg/models"
)

var (
	repairRounds       int
	repairRoundTimeout string
	repairModel        string
	repairOutput       string
	repairNoTUI        bool
	repairDryRun       bool
)

var repairCmd = &cobra.Command{
	Use:   "repair <artifact>",
	Short: "Repair an artifact until it verifies",
	Long: `Run the repair loop against one artifact file.

The artifact is verified with the configured verifier command, failures are
classified and repaired in priority order, and the loop continues until the
artifact verifies or a budget runs out. The final artifact replaces the
input file unless --output is given.

A run can be controlled from another terminal with 'verifix stop' and
'verifix pause'.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().IntVar(&repairRounds, "rounds", 0, "Override the round budget")
	repairCmd.Flags().StringVar(&repairRoundTimeout, "round-timeout", "", "Override the per-round deadline (duration or 'disabled')")
	repairCmd.Flags().StringVar(&repairModel, "model", "", "Override the inference model")
	repairCmd.Flags().StringVarP(&repairOutput, "output", "o", "", "Write the final artifact here instead of in place")
	repairCmd.Flags().BoolVar(&repairNoTUI, "no-tui", false, "Plain line output instead of the live display")
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "Verify and report, but do not repair")
}

func runRepair(cmd *cobra.Command, args []string) error {
	artifactPath := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("rounds") {
		cfg.Repair.MaxRounds = repairRounds
	}
	if cmd.Flags().Changed("round-timeout") {
		cfg.Repair.RoundTimeout = repairRoundTimeout
	}
	if cmd.Flags().Changed("model") {
		cfg.Anthropic.Model = repairModel
	}

	code, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	verifier := verify.NewCommandVerifier(verify.CommandVerifierConfig{
		Command: cfg.Verify.Command,
		WorkDir: projectRoot,
		FileExt: cfg.Verify.FileExt,
		Timeout: cfg.Verify.Timeout,
	})

	if repairDryRun {
		return runDryVerify(cmd.Context(), verifier, artifactPath, string(code))
	}

	roundTimeout, err := cfg.Repair.RoundTimeoutDuration()
	if err != nil {
		return err
	}
	overrides, err := cfg.Repair.PriorityOverrides()
	if err != nil {
		return err
	}

	checker := safety.New(cfg.Safety.ImmutableRegions)
	if len(cfg.Safety.Markers) > 0 {
		checker.SetMarkers(cfg.Safety.Markers)
	}

	backend, tracker, err := newBackend(cfg)
	if err != nil {
		return err
	}

	ckpt := checkpoint.New(resolvePath(projectRoot, cfg.Checkpoint.Path))
	sess := session.New(session.Config{
		Checkpoint: ckpt,
		TrialsDir:  resolvePath(projectRoot, cfg.Checkpoint.TrialsDir),
		FileExt:    cfg.Verify.FileExt,
	})
	knowledgePath := filepath.Join(projectRoot, ".verifix", "knowledge.yaml")
	if _, err := os.Stat(knowledgePath); err == nil {
		if err := sess.LoadKnowledgeFile(knowledgePath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	logger := driver.NewDebugLoggerForDir(projectRoot)
	defer logger.Close()

	reg, err := repair.NewRegistry(repair.Config{
		Verifier: verifier,
		Checker:  checker,
		Order:    models.NewPriorityOrder(overrides),
		Generic:  repair.NewGenericModule(backend),
		Syntax:   repair.NewSyntaxModule(backend),
		Logf:     logger.Log,
	})
	if err != nil {
		return err
	}
	for _, m := range repair.DefaultModules(backend) {
		if err := reg.Register(m); err != nil {
			return fmt.Errorf("register module: %w", err)
		}
	}

	var onEvent func(driver.Event)
	var program *tea.Program
	var app *tui.App
	useTUI := cfg.TUI.Enabled && !repairNoTUI
	if useTUI {
		app = tui.New(artifactPath, cfg.Repair.MaxRounds)
		program = tea.NewProgram(app)
		onEvent = func(e driver.Event) { program.Send(tui.EventMsg{Event: e}) }
	} else {
		onEvent = printEvent
	}

	watcher, err := signal.NewWatcher(projectRoot, nil)
	if err != nil {
		return fmt.Errorf("start signal watcher: %w", err)
	}
	defer watcher.Close()

	d, err := driver.New(driver.Config{
		Registry:     reg,
		Verifier:     verifier,
		Session:      sess,
		MaxRounds:    cfg.Repair.MaxRounds,
		RoundTimeout: roundTimeout,
		Paused:       watcher.PauseRequested,
		Logger:       logger,
		OnEvent:      onEvent,
	})
	if err != nil {
		return err
	}
	watcher.SetOnStop(d.Stop)

	var report *driver.RunReport
	var runErr error
	if useTUI {
		go func() {
			r, err := d.Run(context.Background(), string(code))
			if err != nil {
				runErr = err
				program.Send(tui.DoneMsg{Report: &driver.RunReport{State: driver.StateStopped}})
				return
			}
			program.Send(tui.DoneMsg{Report: r})
		}()
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("display: %w", err)
		}
		if app.Quit() {
			d.Stop()
		}
		report = app.Report()
		if runErr != nil {
			return runErr
		}
		if report == nil {
			return fmt.Errorf("run aborted before completion")
		}
	} else {
		report, runErr = d.Run(cmd.Context(), string(code))
		if runErr != nil {
			return runErr
		}
	}

	outPath := repairOutput
	if outPath == "" {
		outPath = artifactPath
	}
	if err := os.WriteFile(outPath, []byte(report.FinalCode), 0644); err != nil {
		return fmt.Errorf("write final artifact: %w", err)
	}

	recordHistory(projectRoot, sess, report, artifactPath)
	printReport(report, outPath, tracker)

	if report.State != driver.StateVerified {
		os.Exit(1)
	}
	return nil
}

// newBackend builds the inference backend from config.
func newBackend(cfg *config.Config) (infer.Backend, *infer.TokenTracker, error) {
	clientCfg := infer.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.BedrockRegion,
		AWSProfile:    cfg.Anthropic.BedrockProfile,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("%w (set ANTHROPIC_API_KEY or run 'verifix config anthropic.api_key <key>')", err)
		}
		clientCfg.APIKey = key
	}

	client, err := infer.NewClient(clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create inference client: %w", err)
	}
	backend := infer.NewAnthropicBackend(client)
	backend.SetMaxTokens(int64(cfg.Anthropic.MaxTokens))
	return backend, client.Tracker(), nil
}

// runDryVerify verifies once and prints the classified failures.
func runDryVerify(ctx context.Context, verifier verify.Verifier, artifactPath, code string) error {
	res, err := verifier.Verify(ctx, code)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	fmt.Printf("%s: %s\n", artifactPath, res.Score)
	for _, failure := range res.Errors {
		loc := failure.Location
		if loc == "" {
			loc = "?"
		}
		fmt.Printf("  [%s] %s: %s\n", failure.Kind, loc, failure.Message)
	}
	if !res.Score.IsVerified() {
		os.Exit(1)
	}
	return nil
}

// printEvent renders one driver event as a plain log line.
func printEvent(e driver.Event) {
	switch {
	case e.State == driver.StateVerified:
		color.Green("%s", e.Message)
	case e.State.Terminal():
		color.Yellow("%s", e.Message)
	default:
		fmt.Println(e.Message)
	}
}

// recordHistory stores the run in the project history database. History is
// best-effort; a failure never fails the run.
func recordHistory(projectRoot string, sess *session.Session, report *driver.RunReport, artifact string) {
	db, err := state.OpenProject(projectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: open history db: %v\n", err)
		return
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: migrate history db: %v\n", err)
		return
	}

	now := time.Now()
	run := state.RunRecord{
		ID:         sess.ID,
		Artifact:   artifact,
		State:      string(report.State),
		Score:      report.FinalScore,
		Restored:   report.Restored,
		Rounds:     len(report.Rounds),
		TrialCount: report.TrialCount,
		Elapsed:    report.Elapsed,
		StartedAt:  now.Add(-report.Elapsed),
		FinishedAt: now,
	}
	if err := db.RecordRun(run, sess.Trials()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: record run: %v\n", err)
	}
}

// printReport renders the terminal account of the run.
func printReport(report *driver.RunReport, outPath string, tracker *infer.TokenTracker) {
	bold := color.New(color.Bold)

	fmt.Println()
	switch report.State {
	case driver.StateVerified:
		bold.Println(color.GreenString("✓ verified"))
	default:
		bold.Println(color.YellowString("✗ %s", string(report.State)))
	}

	fmt.Printf("  final score:  %s\n", report.FinalScore)
	fmt.Printf("  artifact:     %s", outPath)
	if report.Restored {
		fmt.Printf(" %s", color.CyanString("(restored from checkpoint)"))
	}
	fmt.Println()
	fmt.Printf("  rounds:       %d\n", len(report.Rounds))
	fmt.Printf("  trials:       %d\n", report.TrialCount)
	fmt.Printf("  elapsed:      %s\n", report.Elapsed.Round(time.Second))
	if tracker != nil {
		in, out := tracker.Total()
		fmt.Printf("  tokens:       %d in / %d out over %d calls\n", in, out, tracker.Calls())
	}

	for _, round := range report.Rounds {
		line := fmt.Sprintf("  round %d: %d attempted, %d applied, %s (%s)",
			round.Number, round.Attempted, round.Applied, round.Score, round.Duration.Round(time.Second))
		if round.TimedOut {
			line += " " + color.YellowString("[timed out]")
		}
		fmt.Println(line)
	}
}

// resolvePath anchors relative config paths at the project root.
func resolvePath(projectRoot, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectRoot, path)
}

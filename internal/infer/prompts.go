package infer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/verifix-dev/verifix/pkg/models"
)

// repairSystemPrompt frames every repair request. The response contract is
// a single fenced code block holding the full rewritten artifact.
const repairSystemPrompt = `You repair formally verified code that fails verification.
You will be given the full artifact, the verifier's diagnostics, and one
specific failure to address. Rewrite the artifact to fix that failure while
keeping every other function, specification, and proof intact.

Rules:
- Never delete or rename existing functions or proof blocks.
- Never remove TODO or assume(false) obligations unless asked to discharge them.
- Respond with exactly one fenced code block containing the complete artifact.`

// kindGuidance gives the model targeted instructions per failure kind.
var kindGuidance = map[models.ErrorKind]string{
	models.KindTypeMismatch:           "Fix the type mismatch by adjusting casts or operand types. Do not change function signatures unless the diagnostic demands it.",
	models.KindPreconditionLengthFail: "Strengthen the caller's context or add the missing length precondition so the call site can discharge it.",
	models.KindArithmeticOverflow:     "Add the bounds assertions or preconditions needed to rule out overflow and underflow on the flagged operation.",
	models.KindInvariantFailEntry:     "Make the loop invariant hold on entry: weaken the invariant or fix the initialization before the loop.",
	models.KindInvariantFailExit:      "Make the loop invariant hold at the end of the body: strengthen the body or adjust the invariant.",
	models.KindConstructorInvariant:   "Establish the type invariant inside the constructor before returning the value.",
	models.KindTypeAnnotationMissing:  "Add the missing type annotation exactly where inference gives up.",
	models.KindDecreasesFail:          "Fix the decreases clause so the measure strictly decreases on every recursive call.",
	models.KindMissingImportOrImpl:    "Add the missing import or trait implementation. Do not restructure existing code.",
	models.KindModeError:              "Move the flagged expression to the correct mode: ghost code must not flow into exec code.",
	models.KindAssertionFail:          "Insert the intermediate assertions or lemma calls needed to prove the failing assertion.",
	models.KindPreconditionFail:       "Discharge the precondition at the call site with an assertion, a strengthened invariant, or a guard.",
	models.KindStaleReferenceError:    "Restructure the borrows so no reference outlives the data it points at.",
	models.KindPostconditionFail:      "Prove the postcondition: add the assertions or strengthen the invariants the ensures clause depends on.",
	models.KindPrivateFieldAccess:     "Route the access through the type's public interface instead of the private field.",
}

// PromptContext carries everything needed to build one repair prompt.
type PromptContext struct {
	// Code is the current artifact text.
	Code string
	// Failure is the specific failure to address; nil for syntax repair.
	Failure *models.VerificationError
	// RawOutput is the verifier's raw diagnostics for this artifact.
	RawOutput string
	// PriorFailures summarizes earlier failed trials.
	PriorFailures []string
	// Knowledge holds snippet id -> text pairs for enrichment.
	Knowledge map[string]string
}

// SystemPrompt returns the system prompt for repair requests.
func SystemPrompt() string {
	return repairSystemPrompt
}

// BuildRepairPrompt builds the user prompt for a classified failure.
func BuildRepairPrompt(pc PromptContext) string {
	var b strings.Builder

	if pc.Failure != nil {
		fmt.Fprintf(&b, "## Failure to fix (%s)\n%s\n", pc.Failure.Kind, pc.Failure.Message)
		if pc.Failure.Location != "" {
			fmt.Fprintf(&b, "Location: %s\n", pc.Failure.Location)
		}
		if guidance, ok := kindGuidance[pc.Failure.Kind]; ok {
			fmt.Fprintf(&b, "\nGuidance: %s\n", guidance)
		}
	}

	writeSharedSections(&b, pc)
	return b.String()
}

// BuildSyntaxRepairPrompt builds the user prompt for the generic syntax
// path, used when the artifact does not compile and no classified failures
// exist.
func BuildSyntaxRepairPrompt(pc PromptContext) string {
	var b strings.Builder

	b.WriteString("## Failure to fix\n")
	b.WriteString("The artifact does not compile. Fix the syntax and name resolution errors so the verifier can run. Change as little as possible.\n")

	writeSharedSections(&b, pc)
	return b.String()
}

// writeSharedSections appends diagnostics, history, knowledge, and the
// artifact itself.
func writeSharedSections(b *strings.Builder, pc PromptContext) {
	if pc.RawOutput != "" {
		fmt.Fprintf(b, "\n## Verifier output\n```\n%s\n```\n", strings.TrimSpace(pc.RawOutput))
	}

	if len(pc.PriorFailures) > 0 {
		b.WriteString("\n## Previous attempts\n")
		for _, prior := range pc.PriorFailures {
			fmt.Fprintf(b, "- %s\n", prior)
		}
	}

	if len(pc.Knowledge) > 0 {
		b.WriteString("\n## Relevant knowledge\n")
		ids := make([]string, 0, len(pc.Knowledge))
		for id := range pc.Knowledge {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(b, "### %s\n%s\n", id, pc.Knowledge[id])
		}
	}

	fmt.Fprintf(b, "\n## Artifact\n```\n%s\n```\n", pc.Code)
}

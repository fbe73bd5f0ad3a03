package infer

import (
	"strings"
	"testing"

	"github.com/verifix-dev/verifix/pkg/models"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "fenced block with language tag",
			response: "Here is the fix:\n```rust\nfn main() {}\n```\nDone.",
			want:     "fn main() {}",
		},
		{
			name:     "fenced block without language tag",
			response: "```\nfn main() {}\n```",
			want:     "fn main() {}",
		},
		{
			name:     "bare code",
			response: "fn main() {}\n",
			want:     "fn main() {}",
		},
		{
			name:     "unterminated fence",
			response: "```rust\nfn main() {}",
			want:     "fn main() {}",
		},
		{
			name:     "empty response",
			response: "   \n",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCode(tt.response); got != tt.want {
				t.Errorf("ExtractCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildRepairPrompt(t *testing.T) {
	failure := &models.VerificationError{
		Kind:     models.KindPostconditionFail,
		Location: "artifact.rs:30:1",
		Message:  "postcondition not satisfied",
	}

	prompt := BuildRepairPrompt(PromptContext{
		Code:          "fn main() {}",
		Failure:       failure,
		RawOutput:     "error: postcondition not satisfied",
		PriorFailures: []string{"trial 1: compilation failed"},
		Knowledge:     map[string]string{"lemma": "push preserves length"},
	})

	for _, want := range []string{
		"postcondition-fail",
		"artifact.rs:30:1",
		"trial 1: compilation failed",
		"push preserves length",
		"fn main() {}",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSyntaxRepairPrompt(t *testing.T) {
	prompt := BuildSyntaxRepairPrompt(PromptContext{
		Code:      "fn main( {}",
		RawOutput: "error: expected parameter list",
	})

	if !strings.Contains(prompt, "does not compile") {
		t.Error("syntax prompt missing compile framing")
	}
	if !strings.Contains(prompt, "fn main( {}") {
		t.Error("syntax prompt missing artifact")
	}
}

func TestKindGuidance_CoversAllKinds(t *testing.T) {
	for _, kind := range models.AllKinds() {
		if _, ok := kindGuidance[kind]; !ok {
			t.Errorf("no guidance for kind %s", kind)
		}
	}
}

package infer

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Request carries everything a repair prompt needs.
type Request struct {
	// System is the system prompt describing the repair task.
	System string
	// Prompt is the user prompt: failing artifact, diagnostics, guidance.
	Prompt string
	// MaxTokens bounds the response size (default 8192).
	MaxTokens int64
}

// Backend produces a candidate artifact for a repair prompt. Calls are
// blocking and long-latency (seconds to minutes); the repair engine checks
// its deadlines immediately before every call. Returned text is never
// trusted: it is always validated by the safety checker before use.
type Backend interface {
	Infer(ctx context.Context, req Request) (string, error)
}

// AnthropicBackend implements Backend over the Anthropic Messages API.
type AnthropicBackend struct {
	client    *Client
	maxTokens int64
}

// NewAnthropicBackend creates a backend using the given client.
func NewAnthropicBackend(client *Client) *AnthropicBackend {
	return &AnthropicBackend{client: client}
}

// SetMaxTokens sets the default response budget for requests that do not
// carry their own.
func (b *AnthropicBackend) SetMaxTokens(n int64) {
	if n > 0 {
		b.maxTokens = n
	}
}

// Infer sends the repair prompt and returns the raw response text. Callers
// extract the candidate artifact with ExtractCode.
func (b *AnthropicBackend) Infer(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = b.maxTokens
	}
	if maxTokens == 0 {
		maxTokens = 8192
	}

	resp, err := b.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     b.client.Model(),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("inference call failed: %w", err)
	}

	b.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	return text.String(), nil
}

// ExtractCode pulls the artifact text out of a model response. It prefers
// the first fenced code block; a response that is bare code comes back
// unchanged. Returns "" when the response holds no plausible artifact.
func ExtractCode(response string) string {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return ""
	}

	start := strings.Index(trimmed, "```")
	if start < 0 {
		// No fences: treat the whole response as the artifact.
		return trimmed
	}

	rest := trimmed[start+3:]
	// Drop the language tag on the fence line, if any.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

// Verify AnthropicBackend implements Backend at compile time.
var _ Backend = (*AnthropicBackend)(nil)

package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// claudeCLIProvider implements Provider by shelling out to the Claude Code
// CLI in non-interactive mode. Useful when the only model access available is
// a locally authenticated CLI rather than an API endpoint. Completion only:
// the CLI does not expose embeddings.
type claudeCLIProvider struct {
	cfg Config
	bin string
}

// NewClaudeCLI creates a CLI-backed provider. BaseURL, when set, is reused as
// the path to the CLI binary; it defaults to "claude" on PATH.
func NewClaudeCLI(cfg Config) Provider {
	bin := cfg.BaseURL
	if bin == "" {
		bin = "claude"
	}
	return &claudeCLIProvider{cfg: cfg, bin: bin}
}

func (p *claudeCLIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	args := []string{"--print"}
	if model != "" {
		args = append(args, "--model", model)
	}

	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("claude cli failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := stdout.String()
	// The CLI has no stop-sequence support, so truncation happens here.
	finish := "stop"
	for _, stop := range req.Stop {
		if idx := strings.Index(text, stop); idx >= 0 {
			text = text[:idx]
			finish = "stop_sequence"
		}
	}

	return &CompletionResponse{
		Text:         text,
		Model:        model,
		FinishReason: finish,
	}, nil
}

func (p *claudeCLIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("claudecli provider does not support embeddings")
}

// Package completion provides the Completion capability the workflow
// engine's AI_COMPLETION node executor calls out to. It is never backed by
// a real third-party LLM in this codebase — only by a deterministic mock,
// selected when no API key is configured — so the engine's node executor
// only ever depends on the Completion interface, never on a concrete
// provider.
package completion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrEmptyPrompt indicates the interpolated prompt was empty.
var ErrEmptyPrompt = errors.New("completion: prompt is empty")

// Request is the fully-interpolated input to a completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Result is the AI_COMPLETION node's success output.
type Result struct {
	Content    string `json:"content"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokensUsed"`
}

// Completion is the capability the engine's AI_COMPLETION node executor
// depends on. Implementations must treat req as already-interpolated —
// they perform no further template processing.
type Completion interface {
	Complete(ctx context.Context, req Request) (Result, error)
}

// New selects the Completion implementation for apiKey: a blank key (the
// COMPLETION_API_KEY config option left unset, per spec) always selects the
// deterministic mock. This codebase carries no real provider — apiKey is
// accepted only to preserve that selection point for a future provider.
func New(apiKey string) Completion {
	return &mock{}
}

// mock returns a deterministic response derived from the request, so tests
// and local runs never depend on network access or API quotas.
type mock struct{}

func (m *mock) Complete(ctx context.Context, req Request) (Result, error) {
	if req.UserPrompt == "" {
		return Result{}, ErrEmptyPrompt
	}

	sum := sha256.Sum256([]byte(req.SystemPrompt + "\x00" + req.UserPrompt))
	digest := hex.EncodeToString(sum[:])[:12]

	model := req.Model
	if model == "" {
		model = "mock-completion-v1"
	}

	tokens := len(req.UserPrompt) / 4
	if tokens < 1 {
		tokens = 1
	}
	if req.MaxTokens > 0 && tokens > req.MaxTokens {
		tokens = req.MaxTokens
	}

	return Result{
		Content:    fmt.Sprintf("[mock completion %s] %s", digest, req.UserPrompt),
		Model:      model,
		TokensUsed: tokens,
	}, nil
}

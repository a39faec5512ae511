package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/service_layer/domain/workflow"
	"github.com/R3E-Network/service_layer/infrastructure/expr"
	"github.com/R3E-Network/service_layer/packages/completion"
)

// execResult is a node executor's outcome: the step's output on success, or
// an error the engine folds into the retry policy.
type execResult struct {
	Output json.RawMessage
	// selectedBranch is set only by the CONDITION executor; it overrides
	// node.Next for edge selection.
	SelectedBranch string
}

// executeNode dispatches node to its type-specific executor. stepCtx is the
// read-only {input, steps, env} view; now is the instant `{{now}}` resolves
// to for this attempt.
func (e *Engine) executeNode(ctx context.Context, node workflow.Node, stepCtx expr.StepContext, now time.Time) (execResult, error) {
	switch node.Type {
	case workflow.NodeAICompletion:
		return e.executeAICompletion(ctx, node, stepCtx, now)
	case workflow.NodeHTTPRequest:
		return e.executeHTTPRequest(ctx, node, stepCtx, now)
	case workflow.NodeCondition:
		return e.executeCondition(ctx, node, stepCtx, now)
	case workflow.NodeTransform:
		return e.executeTransform(ctx, node, stepCtx, now)
	case workflow.NodeDelay:
		return e.executeDelay(node)
	case workflow.NodeWebhook:
		return e.executeWebhook(ctx, node, stepCtx, now)
	default:
		return execResult{}, fmt.Errorf("unknown node type %q", node.Type)
	}
}

type aiCompletionConfig struct {
	SystemPrompt       string  `json:"systemPrompt"`
	UserPromptTemplate string  `json:"userPromptTemplate"`
	Model              string  `json:"model"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"maxTokens"`
}

func (e *Engine) executeAICompletion(ctx context.Context, node workflow.Node, stepCtx expr.StepContext, now time.Time) (execResult, error) {
	var cfg aiCompletionConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return execResult{}, fmt.Errorf("decode AI_COMPLETION config: %w", err)
	}
	if strings.TrimSpace(cfg.UserPromptTemplate) == "" {
		return execResult{}, fmt.Errorf("AI_COMPLETION node %q: missing userPromptTemplate", node.ID)
	}

	req := completion.Request{
		SystemPrompt: expr.InterpolateString(ctx, cfg.SystemPrompt, stepCtx, now),
		UserPrompt:   expr.InterpolateString(ctx, cfg.UserPromptTemplate, stepCtx, now),
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}
	result, err := e.completion.Complete(ctx, req)
	if err != nil {
		return execResult{}, fmt.Errorf("AI_COMPLETION node %q: %w", node.ID, err)
	}

	output, err := json.Marshal(map[string]interface{}{
		"content":    result.Content,
		"model":      result.Model,
		"tokensUsed": result.TokensUsed,
	})
	if err != nil {
		return execResult{}, err
	}
	return execResult{Output: output}, nil
}

type httpRequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
	// ResponsePath, if set, is a gjson path evaluated against the raw
	// response body; the step's output.body becomes that sub-value
	// instead of the whole decoded body, e.g. "data.items.0.id".
	ResponsePath string `json:"responsePath"`
}

func (e *Engine) executeHTTPRequest(ctx context.Context, node workflow.Node, stepCtx expr.StepContext, now time.Time) (execResult, error) {
	var cfg httpRequestConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return execResult{}, fmt.Errorf("decode HTTP_REQUEST config: %w", err)
	}
	url := expr.InterpolateString(ctx, cfg.URL, stepCtx, now)
	if strings.TrimSpace(url) == "" {
		return execResult{}, fmt.Errorf("HTTP_REQUEST node %q: missing url", node.ID)
	}
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if len(cfg.Body) > 0 {
		var raw interface{}
		if err := json.Unmarshal(cfg.Body, &raw); err != nil {
			return execResult{}, fmt.Errorf("HTTP_REQUEST node %q: decode body template: %w", node.ID, err)
		}
		interpolated := expr.InterpolateValue(ctx, raw, stepCtx, now)
		encoded, err := json.Marshal(interpolated)
		if err != nil {
			return execResult{}, err
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return execResult{}, fmt.Errorf("HTTP_REQUEST node %q: %w", node.ID, err)
	}
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, expr.InterpolateString(ctx, v, stepCtx, now))
	}
	if bodyReader != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return execResult{}, fmt.Errorf("HTTP_REQUEST node %q: %w", node.ID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBytes))
	if err != nil {
		return execResult{}, fmt.Errorf("HTTP_REQUEST node %q: read response: %w", node.ID, err)
	}

	var parsedBody interface{}
	if err := json.Unmarshal(respBody, &parsedBody); err != nil {
		parsedBody = string(respBody)
	}

	if path := expr.InterpolateString(ctx, cfg.ResponsePath, stepCtx, now); path != "" {
		result := gjson.GetBytes(respBody, path)
		if result.Exists() {
			parsedBody = result.Value()
		} else {
			parsedBody = nil
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	output, err := json.Marshal(map[string]interface{}{
		"statusCode": resp.StatusCode,
		"headers":    headers,
		"body":       parsedBody,
	})
	if err != nil {
		return execResult{}, err
	}
	return execResult{Output: output}, nil
}

// maxHTTPResponseBytes bounds how much of an HTTP_REQUEST node's response
// body the engine buffers into the step's output.
const maxHTTPResponseBytes = 1 << 20

type conditionConfig struct {
	Expression  string `json:"expression"`
	TrueBranch  string `json:"trueBranch"`
	FalseBranch string `json:"falseBranch"`
}

func (e *Engine) executeCondition(ctx context.Context, node workflow.Node, stepCtx expr.StepContext, now time.Time) (execResult, error) {
	var cfg conditionConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return execResult{}, fmt.Errorf("decode CONDITION config: %w", err)
	}
	if strings.TrimSpace(cfg.Expression) == "" {
		return execResult{}, fmt.Errorf("CONDITION node %q: missing expression", node.ID)
	}

	result := expr.EvaluateBool(ctx, cfg.Expression, stepCtx)

	selected := cfg.FalseBranch
	if result {
		selected = cfg.TrueBranch
	}

	output, err := json.Marshal(map[string]interface{}{
		"conditionResult": result,
		"selectedBranch":  selected,
	})
	if err != nil {
		return execResult{}, err
	}
	return execResult{Output: output, SelectedBranch: selected}, nil
}

type transformConfig struct {
	Template map[string]interface{} `json:"template"`
}

func (e *Engine) executeTransform(ctx context.Context, node workflow.Node, stepCtx expr.StepContext, now time.Time) (execResult, error) {
	var cfg transformConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return execResult{}, fmt.Errorf("decode TRANSFORM config: %w", err)
	}
	if cfg.Template == nil {
		return execResult{}, fmt.Errorf("TRANSFORM node %q: missing template", node.ID)
	}

	interpolated := expr.InterpolateValue(ctx, cfg.Template, stepCtx, now)
	output, err := json.Marshal(interpolated)
	if err != nil {
		return execResult{}, err
	}
	return execResult{Output: output}, nil
}

type delayConfig struct {
	DelayMs int `json:"delayMs"`
}

func (e *Engine) executeDelay(node workflow.Node) (execResult, error) {
	var cfg delayConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return execResult{}, fmt.Errorf("decode DELAY config: %w", err)
	}
	if cfg.DelayMs > workflow.MaxDelayMs {
		cfg.DelayMs = workflow.MaxDelayMs
	}
	if cfg.DelayMs < 0 {
		cfg.DelayMs = 0
	}

	output, err := json.Marshal(map[string]interface{}{
		"delayed": true,
		"delayMs": cfg.DelayMs,
	})
	if err != nil {
		return execResult{}, err
	}
	return execResult{Output: output}, nil
}

type webhookConfig struct {
	WebhookURL string `json:"webhookUrl"`
}

func (e *Engine) executeWebhook(ctx context.Context, node workflow.Node, stepCtx expr.StepContext, now time.Time) (execResult, error) {
	var cfg webhookConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return execResult{}, fmt.Errorf("decode WEBHOOK config: %w", err)
	}
	url := expr.InterpolateString(ctx, cfg.WebhookURL, stepCtx, now)
	if strings.TrimSpace(url) == "" {
		return execResult{}, fmt.Errorf("WEBHOOK node %q: missing webhookUrl", node.ID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return execResult{}, fmt.Errorf("WEBHOOK node %q: %w", node.ID, err)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return execResult{}, fmt.Errorf("WEBHOOK node %q: %w", node.ID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxHTTPResponseBytes))

	acknowledged := resp.StatusCode >= 200 && resp.StatusCode < 300
	output, err := json.Marshal(map[string]interface{}{
		"statusCode":   resp.StatusCode,
		"acknowledged": acknowledged,
	})
	if err != nil {
		return execResult{}, err
	}
	return execResult{Output: output}, nil
}

// delayDurationFor re-reads a DELAY node's configured delay, clamped as
// executeDelay does, for the engine's re-enqueue scheduling.
func delayDurationFor(node workflow.Node) (time.Duration, error) {
	var cfg delayConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return 0, fmt.Errorf("decode DELAY config: %w", err)
	}
	if cfg.DelayMs > workflow.MaxDelayMs {
		cfg.DelayMs = workflow.MaxDelayMs
	}
	if cfg.DelayMs < 0 {
		cfg.DelayMs = 0
	}
	return time.Duration(cfg.DelayMs) * time.Millisecond, nil
}

// Command workflowctl is a thin HTTP CLI over workflow-service and
// builder-service: authenticate once, then drive workflow/run lifecycle and
// site/page publishing from the terminal, grounded on the teacher's slctl
// dispatch shape (a flat command switch over small per-resource flag sets).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	root := flag.NewFlagSet("workflowctl", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	addrFlag := root.String("addr", getenv("WORKFLOWCTL_ADDR", "http://localhost:8080"), "workflow-service base URL (env WORKFLOWCTL_ADDR)")
	builderAddrFlag := root.String("builder-addr", getenv("WORKFLOWCTL_BUILDER_ADDR", "http://localhost:8081"), "builder-service base URL (env WORKFLOWCTL_BUILDER_ADDR)")
	tokenFlag := root.String("token", os.Getenv("WORKFLOWCTL_TOKEN"), "bearer token (env WORKFLOWCTL_TOKEN)")
	timeoutFlag := root.Duration("timeout", 15*time.Second, "HTTP request timeout")
	if err := root.Parse(args); err != nil {
		return usageError(err)
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		return usageError(errors.New("no command specified"))
	}

	httpClient := &http.Client{Timeout: *timeoutFlag}
	wf := &apiClient{baseURL: strings.TrimRight(*addrFlag, "/"), token: strings.TrimSpace(*tokenFlag), http: httpClient}
	builder := &apiClient{baseURL: strings.TrimRight(*builderAddrFlag, "/"), token: strings.TrimSpace(*tokenFlag), http: httpClient}

	switch remaining[0] {
	case "auth":
		return handleAuth(ctx, wf, remaining[1:])
	case "workflows":
		return handleWorkflows(ctx, wf, remaining[1:])
	case "runs":
		return handleRuns(ctx, wf, remaining[1:])
	case "sites":
		return handleSites(ctx, builder, remaining[1:])
	case "pages":
		return handlePages(ctx, builder, remaining[1:])
	case "health":
		data, err := wf.request(ctx, http.MethodGet, "/health", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", remaining[0]))
	}
}

func usageError(err error) error {
	printRootUsage()
	return err
}

func printRootUsage() {
	fmt.Println(`workflowctl — admin CLI for the workflow and site build services

Usage:
  workflowctl [global flags] <command> [subcommand] [flags]

Global Flags:
  --addr           workflow-service base URL (env WORKFLOWCTL_ADDR, default http://localhost:8080)
  --builder-addr    builder-service base URL (env WORKFLOWCTL_BUILDER_ADDR, default http://localhost:8081)
  --token           bearer token (env WORKFLOWCTL_TOKEN)
  --timeout         HTTP timeout (default 15s)

Commands:
  auth        Register a tenant or log in
  workflows   Manage workflow definitions
  runs        Inspect and control workflow runs
  sites       Manage sites, publish, and roll back
  pages       Manage site pages
  health      Check workflow-service health`)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// apiClient is a minimal bearer-authenticated JSON HTTP client, shared by
// both workflow-service and builder-service commands.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *apiClient) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		var parsed map[string]any
		if json.Unmarshal(data, &parsed) == nil {
			if errStr, ok := parsed["message"].(string); ok && errStr != "" {
				msg = errStr
			}
			if code, ok := parsed["code"].(string); ok && code != "" {
				msg = fmt.Sprintf("%s (%s)", msg, code)
			}
		}
		return nil, fmt.Errorf("%s %s: %s (status %d)", method, path, msg, resp.StatusCode)
	}
	return data, nil
}

func prettyPrint(data []byte) {
	if len(data) == 0 {
		fmt.Println("(empty)")
		return
	}
	var dst bytes.Buffer
	if err := json.Indent(&dst, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(dst.String())
}

// loadJSONPayload reads a definition/input payload from raw or path. A path
// ending in .yaml or .yml is decoded as YAML — workflow definitions are
// often hand-edited, and YAML's comments and multi-line strings make that
// easier than JSON — everything else is decoded as JSON.
func loadJSONPayload(raw, path string) (any, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		var parsed any
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &parsed); err != nil {
				return nil, fmt.Errorf("parse payload file: %w", err)
			}
		default:
			if err := json.Unmarshal(data, &parsed); err != nil {
				return nil, fmt.Errorf("parse payload file: %w", err)
			}
		}
		return parsed, nil
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return parsed, nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
)

func handleWorkflows(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  workflowctl workflows list
  workflowctl workflows create --name <name> --definition <file>
  workflowctl workflows get <id>
  workflowctl workflows update <id> --name <name> --definition <file>
  workflowctl workflows delete <id>
  workflowctl workflows execute <id> [--input JSON] [--input-file path]`)
		return nil
	}
	switch args[0] {
	case "list":
		data, err := client.request(ctx, http.MethodGet, "/workflows", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "create":
		fs := flag.NewFlagSet("workflows create", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var name, defPath string
		fs.StringVar(&name, "name", "", "Workflow name (required)")
		fs.StringVar(&defPath, "definition", "", "Path to a JSON definition file (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if name == "" || defPath == "" {
			return errors.New("name and definition are required")
		}
		def, err := loadJSONPayload("", defPath)
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, "/workflows", map[string]any{"name": name, "definition": def})
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "get":
		if len(args) < 2 {
			return errors.New("workflow id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/workflows/"+args[1], nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "update":
		if len(args) < 2 {
			return errors.New("workflow id required")
		}
		fs := flag.NewFlagSet("workflows update", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var name, defPath string
		fs.StringVar(&name, "name", "", "Workflow name (required)")
		fs.StringVar(&defPath, "definition", "", "Path to a JSON definition file (required)")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if name == "" || defPath == "" {
			return errors.New("name and definition are required")
		}
		def, err := loadJSONPayload("", defPath)
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPut, "/workflows/"+args[1], map[string]any{"name": name, "definition": def})
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "delete":
		if len(args) < 2 {
			return errors.New("workflow id required")
		}
		_, err := client.request(ctx, http.MethodDelete, "/workflows/"+args[1], nil)
		return err
	case "execute":
		if len(args) < 2 {
			return errors.New("workflow id required")
		}
		fs := flag.NewFlagSet("workflows execute", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var inputRaw, inputFile string
		fs.StringVar(&inputRaw, "input", "", "Inline JSON input")
		fs.StringVar(&inputFile, "input-file", "", "Path to a JSON input file")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		input, err := loadJSONPayload(inputRaw, inputFile)
		if err != nil {
			return err
		}
		var payload any
		if input != nil {
			payload = map[string]any{"input": input}
		}
		data, err := client.request(ctx, http.MethodPost, "/workflows/"+args[1]+"/execute", payload)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return fmt.Errorf("unknown workflows subcommand %q", args[0])
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
)

func handleRuns(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  workflowctl runs list <workflow-id>
  workflowctl runs get <run-id>
  workflowctl runs events <run-id> [--since RFC3339]
  workflowctl runs cancel <run-id>`)
		return nil
	}
	switch args[0] {
	case "list":
		if len(args) < 2 {
			return errors.New("workflow id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/workflows/"+args[1]+"/runs", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "get":
		if len(args) < 2 {
			return errors.New("run id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/runs/"+args[1], nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "events":
		if len(args) < 2 {
			return errors.New("run id required")
		}
		fs := flag.NewFlagSet("runs events", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var since string
		fs.StringVar(&since, "since", "", "Only return events after this RFC3339 timestamp")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		path := "/runs/" + args[1] + "/events"
		if since != "" {
			path += "?since=" + since
		}
		data, err := client.request(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "cancel":
		if len(args) < 2 {
			return errors.New("run id required")
		}
		data, err := client.request(ctx, http.MethodPost, "/runs/"+args[1]+"/cancel", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return fmt.Errorf("unknown runs subcommand %q", args[0])
	}
	return nil
}

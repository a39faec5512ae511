package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
)

func handleSites(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  workflowctl sites list
  workflowctl sites create --name <name> --slug <slug> --subdomain <subdomain> [--settings JSON]
  workflowctl sites get <id>
  workflowctl sites update <id> --name <name> [--settings JSON]
  workflowctl sites delete <id>
  workflowctl sites publish <id>
  workflowctl sites rollback <id> --version <version-id>
  workflowctl sites versions <id>`)
		return nil
	}
	switch args[0] {
	case "list":
		data, err := client.request(ctx, http.MethodGet, "/sites", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "create":
		fs := flag.NewFlagSet("sites create", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var name, slug, subdomain, settingsRaw string
		fs.StringVar(&name, "name", "", "Site name (required)")
		fs.StringVar(&slug, "slug", "", "Site slug (required)")
		fs.StringVar(&subdomain, "subdomain", "", "Site subdomain (required)")
		fs.StringVar(&settingsRaw, "settings", "", "Inline JSON site settings")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if name == "" || slug == "" || subdomain == "" {
			return errors.New("name, slug, and subdomain are required")
		}
		settings, err := loadJSONPayload(settingsRaw, "")
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, "/sites", map[string]any{
			"name": name, "slug": slug, "subdomain": subdomain, "settings": settings,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "get":
		if len(args) < 2 {
			return errors.New("site id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/sites/"+args[1], nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "update":
		if len(args) < 2 {
			return errors.New("site id required")
		}
		fs := flag.NewFlagSet("sites update", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var name, settingsRaw string
		fs.StringVar(&name, "name", "", "Site name (required)")
		fs.StringVar(&settingsRaw, "settings", "", "Inline JSON site settings")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if name == "" {
			return errors.New("name is required")
		}
		settings, err := loadJSONPayload(settingsRaw, "")
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPut, "/sites/"+args[1], map[string]any{"name": name, "settings": settings})
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "delete":
		if len(args) < 2 {
			return errors.New("site id required")
		}
		_, err := client.request(ctx, http.MethodDelete, "/sites/"+args[1], nil)
		return err
	case "publish":
		if len(args) < 2 {
			return errors.New("site id required")
		}
		data, err := client.request(ctx, http.MethodPost, "/sites/"+args[1]+"/publish", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "rollback":
		if len(args) < 2 {
			return errors.New("site id required")
		}
		fs := flag.NewFlagSet("sites rollback", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var versionID string
		fs.StringVar(&versionID, "version", "", "Target SiteVersion ID (required)")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if versionID == "" {
			return errors.New("version is required")
		}
		_, err := client.request(ctx, http.MethodPost, "/sites/"+args[1]+"/rollback", map[string]any{"versionId": versionID})
		return err
	case "versions":
		if len(args) < 2 {
			return errors.New("site id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/sites/"+args[1]+"/versions", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return fmt.Errorf("unknown sites subcommand %q", args[0])
	}
	return nil
}

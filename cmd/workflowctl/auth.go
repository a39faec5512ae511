package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
)

func handleAuth(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  workflowctl auth register --tenant <name> --email <email> --password <password>
  workflowctl auth login --email <email> --password <password>`)
		return nil
	}
	switch args[0] {
	case "register":
		fs := flag.NewFlagSet("auth register", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var tenant, email, password string
		fs.StringVar(&tenant, "tenant", "", "Tenant name (required)")
		fs.StringVar(&email, "email", "", "Email (required)")
		fs.StringVar(&password, "password", "", "Password (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if tenant == "" || email == "" || password == "" {
			return errors.New("tenant, email, and password are required")
		}
		data, err := client.request(ctx, http.MethodPost, "/auth/register", map[string]any{
			"tenantName": tenant, "email": email, "password": password,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "login":
		fs := flag.NewFlagSet("auth login", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var email, password string
		fs.StringVar(&email, "email", "", "Email (required)")
		fs.StringVar(&password, "password", "", "Password (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if email == "" || password == "" {
			return errors.New("email and password are required")
		}
		data, err := client.request(ctx, http.MethodPost, "/auth/login", map[string]any{
			"email": email, "password": password,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return fmt.Errorf("unknown auth subcommand %q", args[0])
	}
	return nil
}

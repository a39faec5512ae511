package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
)

func handlePages(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  workflowctl pages list <site-id>
  workflowctl pages create <site-id> --path <path> --title <title> --content <file> [--published] [--sort-order N]
  workflowctl pages update <site-id> <page-id> --title <title> --content <file> [--published] [--sort-order N]
  workflowctl pages delete <site-id> <page-id>`)
		return nil
	}
	switch args[0] {
	case "list":
		if len(args) < 2 {
			return errors.New("site id required")
		}
		data, err := client.request(ctx, http.MethodGet, "/sites/"+args[1]+"/pages", nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "create":
		if len(args) < 2 {
			return errors.New("site id required")
		}
		fs := flag.NewFlagSet("pages create", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var path, title, contentFile, seoTitle, seoDescription string
		var sortOrder int
		published := fs.Bool("published", false, "Mark the page published")
		fs.StringVar(&path, "path", "", "Page path (required)")
		fs.StringVar(&title, "title", "", "Page title (required)")
		fs.StringVar(&contentFile, "content", "", "Path to a JSON content file (required)")
		fs.StringVar(&seoTitle, "seo-title", "", "SEO title")
		fs.StringVar(&seoDescription, "seo-description", "", "SEO description")
		fs.IntVar(&sortOrder, "sort-order", 0, "Sort order among sibling pages")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if path == "" || title == "" || contentFile == "" {
			return errors.New("path, title, and content are required")
		}
		content, err := loadJSONPayload("", contentFile)
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, "/sites/"+args[1]+"/pages", map[string]any{
			"path": path, "title": title, "content": content,
			"seoTitle": seoTitle, "seoDescription": seoDescription,
			"isPublished": *published, "sortOrder": sortOrder,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "update":
		if len(args) < 3 {
			return errors.New("site id and page id required")
		}
		fs := flag.NewFlagSet("pages update", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var title, contentFile, seoTitle, seoDescription string
		var sortOrder int
		published := fs.Bool("published", false, "Mark the page published")
		fs.StringVar(&title, "title", "", "Page title (required)")
		fs.StringVar(&contentFile, "content", "", "Path to a JSON content file (required)")
		fs.StringVar(&seoTitle, "seo-title", "", "SEO title")
		fs.StringVar(&seoDescription, "seo-description", "", "SEO description")
		fs.IntVar(&sortOrder, "sort-order", 0, "Sort order among sibling pages")
		if err := fs.Parse(args[3:]); err != nil {
			return err
		}
		if title == "" || contentFile == "" {
			return errors.New("title and content are required")
		}
		content, err := loadJSONPayload("", contentFile)
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/sites/%s/pages/%s", args[1], args[2])
		data, err := client.request(ctx, http.MethodPut, path, map[string]any{
			"title": title, "content": content,
			"seoTitle": seoTitle, "seoDescription": seoDescription,
			"isPublished": *published, "sortOrder": sortOrder,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "delete":
		if len(args) < 3 {
			return errors.New("site id and page id required")
		}
		path := fmt.Sprintf("/sites/%s/pages/%s", args[1], args[2])
		_, err := client.request(ctx, http.MethodDelete, path, nil)
		return err
	default:
		return fmt.Errorf("unknown pages subcommand %q", args[0])
	}
	return nil
}

// Package githubapi manages the webhook registration on the GitHub side, so
// the receiver and the repository hook can be kept in sync from one place.
package githubapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// NewClient creates an authenticated GitHub client from a personal access
// token. Returns nil if no token is provided.
func NewClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return nil
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return github.NewClient(tc)
}

// SplitOwnerRepo parses an "owner/repo" string.
func SplitOwnerRepo(ownerRepo string) (string, string, error) {
	parts := strings.Split(ownerRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid owner/repo format: %s", ownerRepo)
	}
	return parts[0], parts[1], nil
}

// EnsureWebhook creates a push webhook on the repository pointing at
// hookURL, unless one with the same URL already exists.
// Returns true if a new hook was created.
func EnsureWebhook(ctx context.Context, client *github.Client, ownerRepo, hookURL, secret string) (bool, error) {
	owner, repo, err := SplitOwnerRepo(ownerRepo)
	if err != nil {
		return false, err
	}

	hooks, _, err := client.Repositories.ListHooks(ctx, owner, repo, nil)
	if err != nil {
		return false, fmt.Errorf("listing webhooks: %w", err)
	}

	for _, hook := range hooks {
		if hook.Config != nil {
			if url, ok := hook.Config["url"].(string); ok && url == hookURL {
				return false, nil
			}
		}
	}

	hookConfig := map[string]interface{}{
		"url":          hookURL,
		"content_type": "json",
		"secret":       secret,
		"insecure_ssl": "0",
	}

	active := true
	hookReq := &github.Hook{
		Events: []string{"push"},
		Active: &active,
		Config: hookConfig,
	}

	if _, _, err := client.Repositories.CreateHook(ctx, owner, repo, hookReq); err != nil {
		return false, fmt.Errorf("creating webhook: %w", err)
	}

	return true, nil
}

// HookSummary describes a registered webhook for display.
type HookSummary struct {
	ID     int64
	URL    string
	Events []string
	Active bool
}

// ListWebhooks returns a summary of the hooks registered on the repository.
func ListWebhooks(ctx context.Context, client *github.Client, ownerRepo string) ([]HookSummary, error) {
	owner, repo, err := SplitOwnerRepo(ownerRepo)
	if err != nil {
		return nil, err
	}

	hooks, _, err := client.Repositories.ListHooks(ctx, owner, repo, nil)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}

	summaries := make([]HookSummary, 0, len(hooks))
	for _, hook := range hooks {
		summary := HookSummary{
			Events: hook.Events,
		}
		if hook.ID != nil {
			summary.ID = *hook.ID
		}
		if hook.Active != nil {
			summary.Active = *hook.Active
		}
		if hook.Config != nil {
			if url, ok := hook.Config["url"].(string); ok {
				summary.URL = url
			}
		}
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

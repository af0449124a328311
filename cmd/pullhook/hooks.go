package main

import (
	"fmt"
	"os"
	"strings"

	"pullhook/internal/githubapi"

	"github.com/spf13/cobra"
)

var (
	hooksRepo   string
	hooksURL    string
	hooksApp    string
	hooksSecret string
	hooksToken  string
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage the GitHub webhook for a repository",
}

var hooksRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the push webhook on GitHub",
	Long: `Create the push webhook on the GitHub repository, pointing at this
receiver's /hooks/<app> endpoint. Idempotent: an existing hook with the same
URL is left untouched.`,
	RunE: runHooksRegister,
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the webhooks registered on GitHub",
	RunE:  runHooksList,
}

func init() {
	for _, c := range []*cobra.Command{hooksRegisterCmd, hooksListCmd} {
		c.Flags().StringVar(&hooksRepo, "repo", "", "Repository in owner/name form")
		c.Flags().StringVar(&hooksToken, "token", os.Getenv("PULLHOOK_GITHUB_TOKEN"), "GitHub token (or PULLHOOK_GITHUB_TOKEN)")
	}
	hooksRegisterCmd.Flags().StringVar(&hooksURL, "url", "", "Public base URL of this receiver (e.g. https://deploy.example.com)")
	hooksRegisterCmd.Flags().StringVar(&hooksApp, "app", "", "App name the webhook should target")
	hooksRegisterCmd.Flags().StringVar(&hooksSecret, "secret", "", "Webhook secret (must match the app's configured secret)")

	hooksCmd.AddCommand(hooksRegisterCmd)
	hooksCmd.AddCommand(hooksListCmd)
}

func runHooksRegister(cmd *cobra.Command, args []string) error {
	if hooksRepo == "" || hooksURL == "" || hooksApp == "" || hooksSecret == "" {
		return fmt.Errorf("--repo, --url, --app and --secret are required")
	}

	client := githubapi.NewClient(cmd.Context(), hooksToken)
	if client == nil {
		return fmt.Errorf("a GitHub token is required (--token or PULLHOOK_GITHUB_TOKEN)")
	}

	hookURL := fmt.Sprintf("%s/hooks/%s", strings.TrimRight(hooksURL, "/"), hooksApp)

	created, err := githubapi.EnsureWebhook(cmd.Context(), client, hooksRepo, hookURL, hooksSecret)
	if err != nil {
		return err
	}

	if created {
		fmt.Printf("Webhook created: %s\n", hookURL)
	} else {
		fmt.Printf("Webhook already registered: %s\n", hookURL)
	}

	return nil
}

func runHooksList(cmd *cobra.Command, args []string) error {
	if hooksRepo == "" {
		return fmt.Errorf("--repo is required")
	}

	client := githubapi.NewClient(cmd.Context(), hooksToken)
	if client == nil {
		return fmt.Errorf("a GitHub token is required (--token or PULLHOOK_GITHUB_TOKEN)")
	}

	hooks, err := githubapi.ListWebhooks(cmd.Context(), client, hooksRepo)
	if err != nil {
		return err
	}

	if len(hooks) == 0 {
		fmt.Println("No webhooks registered")
		return nil
	}

	for _, hook := range hooks {
		state := "inactive"
		if hook.Active {
			state = "active"
		}
		fmt.Printf("%d  %-8s  %s  events=%s\n", hook.ID, state, hook.URL, strings.Join(hook.Events, ","))
	}

	return nil
}

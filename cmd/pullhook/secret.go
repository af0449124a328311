package main

import (
	"fmt"

	"pullhook/internal/security"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a webhook secret",
	Long: `Generate a cryptographically secure webhook secret suitable for the
'secret' field in apps.yaml and the matching GitHub webhook configuration.`,
	RunE: runSecret,
}

func runSecret(cmd *cobra.Command, args []string) error {
	secret, err := security.GenerateSecret()
	if err != nil {
		return err
	}

	fmt.Println(secret)
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

var rootCmd = &cobra.Command{
	Use:   "pullhook",
	Short: "GitHub webhook deploy receiver",
	Long: `Pullhook is a hardened GitHub webhook receiver for automated deploys.

On an authenticated push event it updates the app's source tree from its git
remote and restarts the dependent service, recording both steps in a journal.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(hooksCmd)
	rootCmd.AddCommand(secretCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Leadgate %s\n", AppVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "Build Time: %s\n", BuildTime)
		fmt.Fprintf(cmd.OutOrStdout(), "Git Commit: %s\n", GitCommit)

		// Don't display key contents, only whether they are configured.
		if os.Getenv("GEMINI_API_KEY") != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "GEMINI_API_KEY: configured")
		}
		if os.Getenv("OPENAI_API_KEY") != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "OPENAI_API_KEY: configured")
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

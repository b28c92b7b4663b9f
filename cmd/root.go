// Package cmd contains the leadgate CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "leadgate",
	Short: "Leadgate - chat backend with lead capture",
	Long: `Leadgate is an LLM-backed chat service. It serves a JSON API for chat
turns and session history, and extracts sales leads from conversations in
the background.

Running leadgate without a subcommand starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

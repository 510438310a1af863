// Package cmd wires the parley command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley - multi-user chat platform backend",
	Long: `Parley is the backend for a multi-user chat platform. It manages
accounts, conversations, and per-user provider API keys, and proxies chat
turns to OpenAI or Anthropic with streaming responses.

Run "parley serve" to start the HTTP API server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

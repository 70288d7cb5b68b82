package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wirebot",
	Short: "wirebot is a chat bot for the Wire messenger",
	Long: `wirebot connects a small hubot-style robot to the Wire messenger.

It logs in with the account given by WIRE_EMAIL and WIRE_PASS (or a config
file), acknowledges incoming messages, and answers them through the
listeners it has loaded.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

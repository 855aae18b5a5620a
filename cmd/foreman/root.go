package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Coordination substrate for cooperating worker processes",
	Long: `Foreman coordinates independent, unreliable worker processes that share a
backlog of work.

It keeps one authoritative, versioned state document on disk, routes tasks to
workers by tag, releases tasks only when their dependencies have completed,
and restarts workers whose heartbeats go stale.

Workers are opaque executables: they poll for candidate tasks, claim one,
report heartbeats while working, and report completion or failure back
through the same boundary.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configFlag is the optional --config override shared by all subcommands.
var configFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (defaults to XDG and project discovery)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// Package cmd implements the agentwire CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

// Command groups for help output.
const (
	GroupServices = "services"
	GroupSessions = "sessions"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "agentwire",
	Short: "Bridge browsers to tmux-hosted coding agents",
	Long: `Agentwire serves live views of tmux-hosted AI coding agent sessions
to browsers over WebSockets, and routes agent audio notifications to
whoever is watching.

Sessions are addressed as NAME for the local tmux server or NAME@MACHINE
for a registered remote machine reachable over SSH.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupServices, Title: "Services:"},
		&cobra.Group{ID: GroupSessions, Title: "Sessions:"},
	)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/agentwire/config.toml)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

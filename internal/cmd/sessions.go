package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotdevdotdev/agentwire-sub003/internal/style"
	"github.com/dotdevdotdev/agentwire-sub003/internal/tmux"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	GroupID: GroupSessions,
	Short:   "List local tmux sessions",
	RunE:    runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	tm := tmux.New(&tmux.LocalRunner{})
	names, err := tm.ListSessions(context.Background())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println(style.Dim.Render("no sessions"))
		return nil
	}
	for _, name := range names {
		fmt.Printf("%s %s\n", style.Bold.Render("●"), name)
	}
	return nil
}

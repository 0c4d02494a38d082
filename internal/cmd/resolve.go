package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotdevdotdev/agentwire-sub003/internal/locator"
	"github.com/dotdevdotdev/agentwire-sub003/internal/style"
)

var resolveCmd = &cobra.Command{
	Use:     "resolve NAME[@MACHINE]",
	GroupID: GroupSessions,
	Short:   "Check that a session is reachable",
	Args:    cobra.ExactArgs(1),
	RunE:    runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	_, resolver, err := buildResolver()
	if err != nil {
		return err
	}

	ctx := context.Background()
	target, err := resolver.Resolve(ctx, args[0])
	if err != nil {
		switch {
		case errors.Is(err, locator.ErrSessionNotFound):
			fmt.Printf("%s %v\n", style.Error.Render("✗"), err)
			fmt.Println(style.Dim.Render("  Check `agentwire sessions` for what is running."))
		case errors.Is(err, locator.ErrUnknownMachine):
			fmt.Printf("%s %v\n", style.Error.Render("✗"), err)
			fmt.Println(style.Dim.Render("  Add the machine to machines.yaml before addressing it."))
		case errors.Is(err, locator.ErrMachineUnreachable):
			fmt.Printf("%s %v\n", style.Error.Render("✗"), err)
			fmt.Println(style.Dim.Render("  The machine is registered but not answering over SSH."))
		}
		return err
	}

	fmt.Printf("%s %s is reachable\n", style.Success.Render("✓"), style.Bold.Render(target.Key()))
	if dir, err := target.WorkingDir(ctx); err == nil {
		fmt.Printf("  %s\n", style.Dim.Render(dir))
	}
	return nil
}

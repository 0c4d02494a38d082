package main

import (
	"os"

	"github.com/dotdevdotdev/agentwire-sub003/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

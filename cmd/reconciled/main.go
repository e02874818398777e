package main

import (
	"os"

	"github.com/reconciled-dev/reconciled/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

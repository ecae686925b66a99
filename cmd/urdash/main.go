package main

import (
	"os"

	"github.com/wonny/urdash/cmd/urdash/commands"
)

// main is the entry point for the urdash CLI
// ⭐ Single CLI entry point: go run ./cmd/urdash [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

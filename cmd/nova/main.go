// Package main is the entry point for the nova CLI.
//
// Usage:
//
//	nova [flags] <command> [subcommand] [args]
//
// Commands:
//
//	config   - Configuration management (contexts, keys)
//	voice    - Live voice conversation on the default audio devices
//	chat     - Text chat with optional search grounding and attachments
//	image    - Image generation
//	history  - Saved chat sessions (list, show, delete)
//	devices  - Audio devices
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/nova/cmd/nova/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Package main provides the entry point for the permlearn CLI.
package main

import (
	"fmt"
	"os"

	"github.com/jacopone/claude-nixos-automation-sub000/cmd/permlearn/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

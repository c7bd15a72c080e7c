// Package main provides the entry point for the miller CLI.
package main

import (
	"os"

	"github.com/kodewright/miller/cmd/miller/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

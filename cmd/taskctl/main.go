// Package main is the entry point for the taskctl CLI.
package main

import (
	"os"

	"github.com/good-yellow-bee/taskflow/cmd/taskctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

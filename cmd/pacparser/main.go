// Package main provides the pacparser entry point.
package main

import (
	"fmt"
	"os"

	"github.com/rennerdo30/pacparser/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

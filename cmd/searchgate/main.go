// Package main provides the entry point for the searchgate CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/searchgate/cmd/searchgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

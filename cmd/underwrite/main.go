// Package main is the entry point for the underwrite CLI.
package main

import (
	"os"

	"github.com/pigeonworks-llc/mca-underwriter/cmd/underwrite/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

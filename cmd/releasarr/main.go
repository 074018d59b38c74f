// Package main is the entry point for the releasarr application.
package main

import (
	"os"

	"github.com/jmylchreest/releasarr/cmd/releasarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

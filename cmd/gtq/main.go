// Package main implements the go-taint-query CLI (gtq).
// It runs taint analysis over an extracted fact store and answers queries
// about the result.
package main

import (
	"os"

	"github.com/l3aro/go-taint-query/cmd/gtq/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Flags().BoolP("version", "V", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`gtq version {{.Version}}
`)
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (" + buildTime + ")"
	}

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

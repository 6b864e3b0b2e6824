// Package main implements the go-region-facts CLI (grf).
// It loads programs, enriches their procedure bodies with region facts and
// inspects persisted fact stores.
package main

import (
	"os"

	"github.com/l3aro/go-region-facts/cmd/grf/commands"
)

var version = "dev"

func main() {
	root := commands.NewRootCmd()
	root.Version = version
	root.SetVersionTemplate(`grf version {{.Version}}
`)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

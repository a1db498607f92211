package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/fern/manifest"
)

// handleDepsCommand processes the `fern deps` subcommand: it fetches the
// macro libraries fern.toml names and records them in .fern/lock.toml.
func handleDepsCommand(args []string) int {
	fs := flag.NewFlagSet("deps", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	common.apply()

	proj, err := loadProject(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if proj.m == nil {
		fmt.Fprintf(os.Stderr, "Error: no %s found\n", manifest.FileName)
		return 1
	}

	if len(proj.deps) == 0 {
		fmt.Println("No dependencies")
		return 0
	}
	for _, d := range proj.deps {
		if d.Commit != "" {
			fmt.Printf("%s\t%s\t%s\n", d.Name, d.Commit, d.LocalPath)
		} else {
			fmt.Printf("%s\t(local)\t%s\n", d.Name, d.LocalPath)
		}
	}
	return 0
}

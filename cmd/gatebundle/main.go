// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// gatebundle moves configuration entities between gateway stores as
// self contained bundles: export packages an entity set with its
// dependency closure, import resolves it against a target store, and
// show inspects a bundle without touching any store.
package main

import (
	"fmt"
	"os"

	"github.com/juju/loggo/v2"
)

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main runs the selected subcommand and returns the process exit code.
func Main(args []string) int {
	if config := os.Getenv("GATEBUNDLE_LOGGING_CONFIG"); config != "" {
		if err := loggo.ConfigureLoggers(config); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR invalid logging config: %v\n", err)
			return 2
		}
	}
	commands := map[string]Command{
		"export": &exportCommand{},
		"import": &importCommand{},
		"show":   &showCommand{},
	}
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		mainUsage(commands)
		return 0
	}
	c, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "ERROR unrecognized command: %s\n", args[0])
		mainUsage(commands)
		return 2
	}
	if err := run(c, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR %v\n", err)
		return 1
	}
	return 0
}

// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
)

// Info describes a subcommand's intent and usage.
type Info struct {
	Name    string
	Args    string
	Purpose string
	Doc     string
}

// Usage combines Name and Args to describe the command's invocation.
func (i *Info) Usage() string {
	return strings.TrimSpace(fmt.Sprintf("gatebundle %s %s", i.Name, i.Args))
}

// Command is implemented by each gatebundle subcommand.
type Command interface {
	// Info returns information about the command.
	Info() *Info

	// SetFlags prepares the flag set parsed ahead of Init.
	SetFlags(f *gnuflag.FlagSet)

	// Init consumes the positional arguments left after flag parsing.
	Init(args []string) error

	// Run executes the command.
	Run() error
}

func newFlagSet(c Command) *gnuflag.FlagSet {
	f := gnuflag.NewFlagSet(c.Info().Name, gnuflag.ContinueOnError)
	f.SetOutput(os.Stderr)
	f.Usage = func() { printUsage(c) }
	c.SetFlags(f)
	return f
}

func printUsage(c Command) {
	i := c.Info()
	fmt.Fprintf(os.Stderr, "Usage: %s\n\n", i.Usage())
	fmt.Fprintf(os.Stderr, "Summary:\n%s\n\n", i.Purpose)
	fmt.Fprintf(os.Stderr, "Options:\n")
	newFlagSet(c).PrintDefaults()
	if i.Doc != "" {
		fmt.Fprintf(os.Stderr, "\nDetails:\n%s\n", strings.TrimSpace(i.Doc))
	}
}

// run parses args against c and executes it.
func run(c Command, args []string) error {
	f := newFlagSet(c)
	if err := f.Parse(true, args); err != nil {
		if err == gnuflag.ErrHelp {
			return nil
		}
		return errors.Trace(err)
	}
	if err := c.Init(f.Args()); err != nil {
		return errors.Trace(err)
	}
	return c.Run()
}

// checkEmpty rejects unconsumed positional arguments.
func checkEmpty(args []string) error {
	if len(args) != 0 {
		return errors.Errorf("unrecognized args: %q", args)
	}
	return nil
}

func mainUsage(commands map[string]Command) {
	fmt.Fprintf(os.Stderr, "Usage: gatebundle <command> ...\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "    %-8s %s\n", name, commands[name].Info().Purpose)
	}
}

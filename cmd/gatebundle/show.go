// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"os"

	"github.com/juju/ansiterm"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/gatebundle/gatebundle/core/bundle"
)

const showDoc = `
Show prints a bundle's contents without touching any store: one row
per mapping, in bundle order, with any outcome recorded by a previous
import. Encrypted bundles can be shown without the passphrase; secret
material stays wrapped.

Examples:

    gatebundle show svc.bundle
`

type showCommand struct {
	bundleFile string
}

func (c *showCommand) Info() *Info {
	return &Info{
		Name:    "show",
		Args:    "<bundle-file>",
		Purpose: "inspect a bundle file",
		Doc:     showDoc,
	}
}

func (c *showCommand) SetFlags(f *gnuflag.FlagSet) {}

func (c *showCommand) Init(args []string) error {
	if len(args) == 0 {
		return errors.New("no bundle file specified")
	}
	c.bundleFile = args[0]
	return checkEmpty(args[1:])
}

func (c *showCommand) Run() error {
	data, err := os.ReadFile(c.bundleFile)
	if err != nil {
		return errors.Trace(err)
	}
	b, err := bundle.Deserialize(data)
	if err != nil {
		return errors.Annotatef(err, "reading bundle %q", c.bundleFile)
	}
	fmt.Printf("exported at: %s\n", b.ExportedAt.Format("2006-01-02 15:04:05Z07:00"))
	fmt.Printf("encrypted secrets: %v\n", b.EncryptedSecrets)
	fmt.Printf("references: %d, mappings: %d\n\n", len(b.References), len(b.Mappings))

	tw := ansiterm.NewTabWriter(os.Stdout, 0, 1, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSOURCE\tNAME\tACTION\tOUTCOME")
	for _, m := range b.Mappings {
		outcome := string(m.ActionTaken)
		if m.Failed() {
			outcome = fmt.Sprintf("%s: %s", m.ErrorType, m.Message)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.Source.Type, m.Source.ID, m.Source.Name, m.Action, outcome)
	}
	tw.Flush()
	return nil
}

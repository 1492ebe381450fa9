// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/juju/ansiterm"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/gatebundle/gatebundle/core/bundle"
	"github.com/gatebundle/gatebundle/core/entity"
	"github.com/gatebundle/gatebundle/migration"
)

const importDoc = `
Import applies a bundle to a target store. Every mapping is resolved
in bundle order and its outcome printed; mappings fail individually,
so a conflict in one does not roll back its siblings. The annotated
bundle is written back to the bundle file so a corrected copy can be
reapplied.

With --dry-run the whole resolution runs, and the outcome table is
printed, without mutating the target store.

Examples:

    gatebundle import --store target.yaml --bundle svc.bundle
    gatebundle import --store target.yaml --bundle svc.bundle --dry-run
    gatebundle import --store target.yaml --bundle all.bundle \
        --passphrase-file pass.txt
`

type importCommand struct {
	store          string
	bundleFile     string
	action         string
	dryRun         bool
	passphraseFile string
}

func (c *importCommand) Info() *Info {
	return &Info{
		Name:    "import",
		Args:    "",
		Purpose: "apply a bundle to a target store",
		Doc:     importDoc,
	}
}

func (c *importCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.store, "store", "", "store state file to import into")
	f.StringVar(&c.bundleFile, "bundle", "", "bundle file to apply")
	f.StringVar(&c.action, "action", "", "override the action of every mapping before applying")
	f.BoolVar(&c.dryRun, "dry-run", false, "resolve the bundle without mutating the store")
	f.StringVar(&c.passphraseFile, "passphrase-file", "", "file holding the decryption passphrase")
}

func (c *importCommand) Init(args []string) error {
	if c.store == "" {
		return errors.New("--store is required")
	}
	if c.bundleFile == "" {
		return errors.New("--bundle is required")
	}
	return checkEmpty(args)
}

func (c *importCommand) Run() error {
	registry := entity.DefaultRegistry()
	store, err := loadStore(registry, c.store)
	if err != nil {
		return errors.Trace(err)
	}
	data, err := os.ReadFile(c.bundleFile)
	if err != nil {
		return errors.Trace(err)
	}
	b, err := bundle.Deserialize(data)
	if err != nil {
		return errors.Annotatef(err, "reading bundle %q", c.bundleFile)
	}
	if c.action != "" {
		if err := b.SetDefaultAction(bundle.Action(c.action)); err != nil {
			return errors.Trace(err)
		}
	}
	opts := migration.ImportOptions{DryRun: c.dryRun}
	if c.passphraseFile != "" {
		opts.Passphrase, err = readPassphrase(c.passphraseFile)
		if err != nil {
			return errors.Trace(err)
		}
	}

	applyErr := migration.NewImporter(store, registry).Apply(b, opts)
	if applyErr != nil && !errors.Is(applyErr, migration.ErrBundleConflicts) {
		return errors.Trace(applyErr)
	}
	printResults(os.Stdout, b)

	if !c.dryRun {
		if err := saveStore(store, c.store); err != nil {
			return errors.Trace(err)
		}
	}
	// Write the annotated mappings back for inspection and reapply.
	annotated, err := bundle.Serialize(b)
	if err != nil {
		return errors.Trace(err)
	}
	if err := os.WriteFile(c.bundleFile, annotated, 0600); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(applyErr)
}

// printResults renders the per mapping outcome table.
func printResults(w io.Writer, b *bundle.Bundle) {
	tw := ansiterm.NewTabWriter(w, 0, 1, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSOURCE\tTARGET\tACTION\tRESULT\tDETAIL")
	for _, m := range b.Mappings {
		result, detail := string(m.ActionTaken), ""
		colour := ansiterm.Foreground(ansiterm.Green)
		if m.Failed() {
			result, detail = string(m.ErrorType), m.Message
			colour = ansiterm.Foreground(ansiterm.BrightRed)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t", m.Source.Type, m.Source.ID, m.TargetID, m.Action)
		colour.Fprintf(tw, "%s", result)
		fmt.Fprintf(tw, "\t%s\n", detail)
	}
	tw.Flush()
}

// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"
	"strings"

	"github.com/juju/errors"

	"github.com/gatebundle/gatebundle/core/entity"
	"github.com/gatebundle/gatebundle/internal/memstore"
)

// loadStore reads a store state file. A missing file is an empty
// store, so a fresh target can be imported into without ceremony.
func loadStore(registry *entity.Registry, path string) (*memstore.Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return memstore.NewStore(registry), nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	store, err := memstore.Load(registry, data)
	if err != nil {
		return nil, errors.Annotatef(err, "loading store %q", path)
	}
	return store, nil
}

func saveStore(store *memstore.Store, path string) error {
	data, err := store.Save()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.WriteFile(path, data, 0600))
}

// parseRef parses a TYPE:id positional argument.
func parseRef(arg string) (entity.Ref, error) {
	t, id, ok := strings.Cut(arg, ":")
	if !ok || t == "" || id == "" {
		return entity.Ref{}, errors.NotValidf("entity reference %q, expected TYPE:id", arg)
	}
	return entity.Ref{Type: entity.Type(t), ID: id}, nil
}

// readPassphrase reads a passphrase file, trimming the trailing
// newline most editors leave behind.
func readPassphrase(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Trace(err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

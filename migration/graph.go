// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package migration

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"

	"github.com/gatebundle/gatebundle/core/entity"
)

// BuildClosure computes the entity set a bundle must carry for the
// given roots, in dependency first order: for every edge the
// dependency's index is strictly less than the dependent's. Each
// distinct (type, id) appears at most once however many subtrees reach
// it. An empty roots slice means "export everything".
//
// With includeDependencies false the result is exactly the roots,
// deduplicated, each verified to exist in the store; the caller is
// declaring that dependencies already exist on the target.
//
// A missing root aborts the walk with NotFound; no partial result is
// returned.
func BuildClosure(store EntityStore, registry *entity.Registry, roots []entity.Ref, includeDependencies bool) ([]entity.Ref, error) {
	if len(roots) == 0 {
		var err error
		roots, err = allRoots(store, registry)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	w := &walker{
		store:    store,
		registry: registry,
		seen:     set.NewStrings(),
	}
	if !includeDependencies {
		for _, root := range roots {
			if w.seen.Contains(root.Key()) {
				continue
			}
			obj, err := store.Get(root)
			if err != nil {
				return nil, errors.Annotatef(err, "root entity %s", root)
			}
			w.seen.Add(root.Key())
			w.order = append(w.order, obj.Ref)
		}
		return w.order, nil
	}
	for _, root := range roots {
		if err := w.visit(root, true); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return w.order, nil
}

// allRoots lists every entity of every registered type, in a
// deterministic order: types sorted by tag, ids natural sorted within
// a type. Roles are excluded; exporting everything must not drag the
// target's access control model along implicitly.
func allRoots(store EntityStore, registry *entity.Registry) ([]entity.Ref, error) {
	types := registry.Types()
	tags := make([]string, 0, len(types))
	for _, t := range types {
		if t == entity.Role {
			continue
		}
		tags = append(tags, string(t))
	}
	naturalsort.Sort(tags)
	var roots []entity.Ref
	for _, tag := range tags {
		refs, err := store.List(entity.Type(tag))
		if err != nil {
			return nil, errors.Annotatef(err, "listing %s entities", tag)
		}
		ids := make([]string, 0, len(refs))
		byID := make(map[string]entity.Ref, len(refs))
		for _, r := range refs {
			ids = append(ids, r.ID)
			byID[r.ID] = r
		}
		naturalsort.Sort(ids)
		for _, id := range ids {
			roots = append(roots, byID[id])
		}
	}
	return roots, nil
}

type walker struct {
	store    EntityStore
	registry *entity.Registry
	seen     set.Strings
	order    []entity.Ref
}

// visit appends ref to the order after all of its dependencies.
// Marking seen on entry rather than on append keeps cyclic reference
// chains terminating; one member of a cycle will necessarily precede
// its dependency in the result.
func (w *walker) visit(ref entity.Ref, isRoot bool) error {
	if w.seen.Contains(ref.Key()) {
		return nil
	}
	w.seen.Add(ref.Key())

	if ref.IsRootFolder() {
		// The root folder exists on every system and has no content
		// worth carrying; it still takes a position in the order so
		// that folders below it resolve after it.
		w.order = append(w.order, entity.RootFolderRef())
		return nil
	}
	obj, err := w.store.Get(ref)
	if err != nil {
		if isRoot || !errors.Is(err, errors.NotFound) {
			return errors.Annotatef(err, "entity %s", ref)
		}
		// A dangling reference inside the source store. The original
		// entity may name things that were since deleted; exporting
		// what exists beats failing the whole bundle.
		logger.Warningf("skipping dangling reference to %s", ref)
		w.seen.Remove(ref.Key())
		return nil
	}
	deps, err := w.registry.Dependencies(obj)
	if err != nil {
		return errors.Trace(err)
	}
	for _, dep := range deps {
		if err := w.visit(dep, false); err != nil {
			return errors.Trace(err)
		}
	}
	w.order = append(w.order, obj.Ref)
	return nil
}

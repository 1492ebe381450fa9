// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package migration

import (
	"github.com/gatebundle/gatebundle/core/entity"
)

// EntityStore is the engine's view of a configuration store, source or
// target. Implementations are expected to make each individual call
// atomic and consistent; the engine provides no cross call isolation.
//
// Errors use the juju/errors taxonomy: Get returns NotFound for a
// missing entity, Create returns AlreadyExists when a uniqueness
// constraint (id, guid, or scoped name) is violated.
type EntityStore interface {
	// Get fetches the full snapshot of one entity.
	Get(ref entity.Ref) (entity.Object, error)

	// FindByName returns the entities of the given type carrying the
	// name. container scopes the lookup for types whose names are
	// unique per container (for instance a parent folder id); an
	// empty container matches anywhere. More than one result is
	// possible and the caller decides whether that is ambiguous.
	FindByName(t entity.Type, container, name string) ([]entity.Ref, error)

	// FindByGuid returns the entity of the given type carrying the
	// globally unique guid, or NotFound.
	FindByGuid(t entity.Type, guid string) (entity.Ref, error)

	// Create stores a new entity. The snapshot's ref carries the id
	// to create under; an empty id asks the store to allocate one.
	// The created id is returned.
	Create(obj entity.Object) (string, error)

	// Update replaces the content of an existing entity in place.
	Update(obj entity.Object) error

	// Delete removes an entity.
	Delete(ref entity.Ref) error

	// List returns refs of every entity of the given type.
	List(t entity.Type) ([]entity.Ref, error)

	// ListDependents returns refs of entities whose content still
	// references the given entity. Used for the delete in use guard.
	ListDependents(ref entity.Ref) ([]entity.Ref, error)

	// ListAutoRoles returns the access control roles that were
	// automatically created for the entity and must be cascade
	// removed with it.
	ListAutoRoles(ref entity.Ref) ([]entity.Ref, error)
}

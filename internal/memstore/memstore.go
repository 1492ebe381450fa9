// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package memstore provides an in memory EntityStore with the
// uniqueness and bookkeeping behaviour the migration engine expects
// from a real configuration store: id, guid and scoped name
// constraints, a dependents index for the delete in use guard, and
// automatic access control roles for container entities.
package memstore

import (
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	"github.com/gatebundle/gatebundle/core/entity"
)

// Store is an in memory entity store. It is safe for concurrent use;
// each call is atomic under one mutex.
type Store struct {
	mu        sync.Mutex
	registry  *entity.Registry
	objects   map[string]entity.Object
	autoRoles map[string][]entity.Ref
}

// NewStore returns a store holding only the synthetic root folder.
func NewStore(registry *entity.Registry) *Store {
	s := &Store{
		registry:  registry,
		objects:   make(map[string]entity.Object),
		autoRoles: make(map[string][]entity.Ref),
	}
	root := entity.RootFolderRef()
	s.objects[root.Key()] = entity.Object{Ref: root, Content: map[string]interface{}{}}
	return s
}

// Get implements EntityStore.
func (s *Store) Get(ref entity.Ref) (entity.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[ref.Key()]
	if !ok {
		return entity.Object{}, errors.NotFoundf("%s", ref)
	}
	return obj.Copy(), nil
}

// FindByName implements EntityStore. An empty container matches the
// name anywhere.
func (s *Store) FindByName(t entity.Type, container, name string) ([]entity.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, err := s.registry.Definition(t)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var out []entity.Ref
	for _, obj := range s.objects {
		if obj.Ref.Type != t || obj.Ref.Name != name {
			continue
		}
		if container != "" && s.containerOf(def, obj) != container {
			continue
		}
		out = append(out, obj.Ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByGuid implements EntityStore.
func (s *Store) FindByGuid(t entity.Type, guid string) (entity.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range s.objects {
		if obj.Ref.Type == t && obj.Ref.Guid != "" && obj.Ref.Guid == guid {
			return obj.Ref, nil
		}
	}
	return entity.Ref{}, errors.NotFoundf("%s with guid %q", t, guid)
}

// Create implements EntityStore, enforcing id, guid and scoped name
// uniqueness and creating the automatic manage role for container
// entities.
func (s *Store) Create(obj entity.Object) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, err := s.registry.Definition(obj.Ref.Type)
	if err != nil {
		return "", errors.Trace(err)
	}
	obj = normalize(obj)
	if obj.Ref.ID == "" {
		obj.Ref.ID = utils.MustNewUUID().String()
	}
	if _, ok := s.objects[obj.Ref.Key()]; ok {
		return "", errors.AlreadyExistsf("%s", obj.Ref)
	}
	if err := s.checkConstraints(def, obj); err != nil {
		return "", errors.Trace(err)
	}
	s.objects[obj.Ref.Key()] = obj
	s.maybeCreateAutoRole(obj)
	return obj.Ref.ID, nil
}

// Update implements EntityStore.
func (s *Store) Update(obj entity.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, err := s.registry.Definition(obj.Ref.Type)
	if err != nil {
		return errors.Trace(err)
	}
	obj = normalize(obj)
	if _, ok := s.objects[obj.Ref.Key()]; !ok {
		return errors.NotFoundf("%s", obj.Ref)
	}
	if err := s.checkConstraints(def, obj); err != nil {
		return errors.Trace(err)
	}
	s.objects[obj.Ref.Key()] = obj
	return nil
}

// Delete implements EntityStore.
func (s *Store) Delete(ref entity.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[ref.Key()]; !ok {
		return errors.NotFoundf("%s", ref)
	}
	delete(s.objects, ref.Key())
	delete(s.autoRoles, ref.Key())
	return nil
}

// List implements EntityStore. Refs are ordered by id for
// deterministic export behaviour.
func (s *Store) List(t entity.Type) ([]entity.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Ref
	for _, obj := range s.objects {
		if obj.Ref.Type == t {
			out = append(out, obj.Ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListDependents implements EntityStore: every stored entity whose
// extracted dependencies still reference ref.
func (s *Store) ListDependents(ref entity.Ref) ([]entity.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Ref
	for _, obj := range s.objects {
		if obj.Ref.Key() == ref.Key() {
			continue
		}
		deps, err := s.registry.Dependencies(obj)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, dep := range deps {
			if dep.Type == ref.Type && dep.ID == ref.ID {
				out = append(out, obj.Ref)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// ListAutoRoles implements EntityStore.
func (s *Store) ListAutoRoles(ref entity.Ref) ([]entity.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Ref(nil), s.autoRoles[ref.Key()]...), nil
}

// containerOf returns the id of the container scoping the object's
// name, per the type's name scope.
func (s *Store) containerOf(def entity.Definition, obj entity.Object) string {
	switch def.NameScope {
	case entity.ScopeFolder:
		return obj.ParentFolderID()
	case entity.ScopeProvider:
		id, _ := obj.StringContent("providerId")
		return id
	}
	return ""
}

// checkConstraints enforces guid and scoped name uniqueness against
// every stored entity other than obj itself.
func (s *Store) checkConstraints(def entity.Definition, obj entity.Object) error {
	for _, other := range s.objects {
		if other.Ref.Type != obj.Ref.Type || other.Ref.ID == obj.Ref.ID {
			continue
		}
		if def.HasGuid && obj.Ref.Guid != "" && other.Ref.Guid == obj.Ref.Guid {
			return errors.AlreadyExistsf("%s with guid %q", obj.Ref.Type, obj.Ref.Guid)
		}
		if def.NameScope == entity.ScopeNone || obj.Ref.Name == "" || other.Ref.Name != obj.Ref.Name {
			continue
		}
		if def.NameScope == entity.ScopeGlobal || s.containerOf(def, other) == s.containerOf(def, obj) {
			return errors.AlreadyExistsf("%s named %q", obj.Ref.Type, obj.Ref.Name)
		}
	}
	return nil
}

// maybeCreateAutoRole mirrors the store behaviour of auto creating a
// manage role when a container entity appears.
func (s *Store) maybeCreateAutoRole(obj entity.Object) {
	switch obj.Ref.Type {
	case entity.Folder, entity.Service, entity.Policy:
	default:
		return
	}
	role := entity.Object{
		Ref: entity.Ref{
			Type: entity.Role,
			ID:   utils.MustNewUUID().String(),
			Name: "Manage " + obj.Ref.Name,
		},
		Content: map[string]interface{}{
			"userCreated": false,
			"entityType":  string(obj.Ref.Type),
			"entityId":    obj.Ref.ID,
		},
	}
	s.objects[role.Ref.Key()] = role
	s.autoRoles[obj.Ref.Key()] = append(s.autoRoles[obj.Ref.Key()], role.Ref)
}

// normalize fills ref identity from content where the caller left it
// implicit: snapshots commonly carry name and guid in their content.
func normalize(obj entity.Object) entity.Object {
	obj = obj.Copy()
	if obj.Content == nil {
		obj.Content = make(map[string]interface{})
	}
	if obj.Ref.Name == "" {
		if n, err := obj.StringContent("name"); err == nil {
			obj.Ref.Name = n
		}
	}
	if obj.Ref.Guid == "" {
		if g, err := obj.StringContent("guid"); err == nil {
			obj.Ref.Guid = g
		}
	}
	return obj
}

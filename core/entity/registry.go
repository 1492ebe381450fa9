// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entity

import (
	"github.com/juju/errors"
)

// NameScope describes the container within which an entity type's name
// is unique.
type NameScope string

const (
	// ScopeNone means names carry no uniqueness at all for the type.
	ScopeNone NameScope = "none"
	// ScopeGlobal means the name is unique across the whole store.
	ScopeGlobal NameScope = "global"
	// ScopeFolder means the name is unique among siblings of the same
	// parent folder.
	ScopeFolder NameScope = "folder"
	// ScopeProvider means the name is unique within one identity
	// provider.
	ScopeProvider NameScope = "provider"
)

// Definition holds the identity rules and dependency shape for one
// entity type.
type Definition struct {
	Type Type

	// HasGuid marks types carrying a secondary globally unique
	// identifier, used to detect cross store duplicates independent
	// of the primary id.
	HasGuid bool

	// HasFolder marks types whose content carries a parent folder
	// reference under the "folderId" key.
	HasFolder bool

	// NameScope is the uniqueness container for the type's name.
	NameScope NameScope

	// SecretFields lists content keys holding secret material that
	// must never cross a network boundary in the clear.
	SecretFields []string

	// RefFields maps content keys to the entity type they reference.
	// These are the typed dependency edges; the generic "uses" list
	// is honoured for every type in addition.
	RefFields map[string]Type
}

// Registry maps entity types to their definitions and extracts the
// direct dependencies of a snapshot.
type Registry struct {
	defs map[Type]Definition
}

// NewRegistry builds a registry from the given definitions.
func NewRegistry(defs ...Definition) *Registry {
	m := make(map[Type]Definition, len(defs))
	for _, d := range defs {
		m[d.Type] = d
	}
	return &Registry{defs: m}
}

// DefaultRegistry returns the registry for the closed set of types
// understood by the migration engine.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Definition{
			Type:      Folder,
			HasFolder: true,
			NameScope: ScopeFolder,
		},
		Definition{
			Type:      Policy,
			HasGuid:   true,
			HasFolder: true,
			NameScope: ScopeFolder,
		},
		Definition{
			Type:      PolicyAlias,
			HasFolder: true,
			NameScope: ScopeFolder,
			RefFields: map[string]Type{"policyId": Policy},
		},
		Definition{
			Type:      Service,
			HasFolder: true,
			NameScope: ScopeFolder,
		},
		Definition{
			Type:      ServiceAlias,
			HasFolder: true,
			NameScope: ScopeFolder,
			RefFields: map[string]Type{"serviceId": Service},
		},
		Definition{
			Type:         SecurePassword,
			NameScope:    ScopeGlobal,
			SecretFields: []string{"password"},
		},
		Definition{
			Type:         PrivateKey,
			NameScope:    ScopeGlobal,
			SecretFields: []string{"p12"},
		},
		Definition{
			Type:      TrustedCert,
			NameScope: ScopeNone,
		},
		Definition{
			Type:         JDBCConnection,
			NameScope:    ScopeGlobal,
			SecretFields: []string{"password"},
			RefFields:    map[string]Type{"passwordId": SecurePassword},
		},
		Definition{
			Type:      IdentityProvider,
			NameScope: ScopeGlobal,
		},
		Definition{
			Type:      User,
			NameScope: ScopeProvider,
			RefFields: map[string]Type{"providerId": IdentityProvider},
		},
		Definition{
			Type:      Group,
			NameScope: ScopeProvider,
			RefFields: map[string]Type{"providerId": IdentityProvider},
		},
		Definition{
			Type:      SecurityZone,
			NameScope: ScopeGlobal,
		},
		Definition{
			Type:      ClusterProperty,
			NameScope: ScopeGlobal,
		},
		Definition{
			Type:      Role,
			NameScope: ScopeGlobal,
		},
	)
}

// Definition returns the definition for the given type.
func (r *Registry) Definition(t Type) (Definition, error) {
	d, ok := r.defs[t]
	if !ok {
		return Definition{}, errors.NotSupportedf("entity type %q", t)
	}
	return d, nil
}

// Known reports whether the type is in the registry.
func (r *Registry) Known(t Type) bool {
	_, ok := r.defs[t]
	return ok
}

// Types returns all registered type tags, unsorted.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	return out
}

// Dependencies extracts the direct dependencies of the snapshot: the
// parent folder for folderable types, the typed reference fields, any
// security zone, and the generic "uses" reference list. Refs carry
// only type and id; the graph builder resolves the rest from the
// source store.
func (r *Registry) Dependencies(obj Object) ([]Ref, error) {
	def, err := r.Definition(obj.Ref.Type)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var deps []Ref
	if def.HasFolder {
		if id := obj.ParentFolderID(); id != "" {
			deps = append(deps, Ref{Type: Folder, ID: id})
		}
	}
	for field, ftype := range def.RefFields {
		id, err := obj.StringContent(field)
		if err != nil {
			return nil, errors.Annotatef(err, "extracting %q from %s", field, obj.Ref)
		}
		if id != "" {
			deps = append(deps, Ref{Type: ftype, ID: id})
		}
	}
	if id, err := obj.StringContent("securityZoneId"); err == nil && id != "" {
		deps = append(deps, Ref{Type: SecurityZone, ID: id})
	}
	uses, err := usesRefs(obj)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return append(deps, uses...), nil
}

// usesRefs decodes the generic "uses" content list, a sequence of
// {type, id} maps produced by the source system's dependency analyzer
// for references embedded in opaque content such as policy XML.
func usesRefs(obj Object) ([]Ref, error) {
	v, ok := obj.Content["uses"]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.NotValidf("uses list of type %T in %s", v, obj.Ref)
	}
	refs := make([]Ref, 0, len(list))
	for _, e := range list {
		m, ok := asStringMap(e)
		if !ok {
			return nil, errors.NotValidf("uses entry of type %T in %s", e, obj.Ref)
		}
		t, _ := m["type"].(string)
		id, _ := m["id"].(string)
		if t == "" || id == "" {
			return nil, errors.NotValidf("uses entry missing type or id in %s", obj.Ref)
		}
		refs = append(refs, Ref{Type: Type(t), ID: id})
	}
	return refs, nil
}

// asStringMap accepts both string keyed maps and the interface keyed
// maps produced by YAML deserialization.
func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

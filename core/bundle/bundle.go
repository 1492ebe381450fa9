// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package bundle defines the export/import unit of a configuration
// migration: an ordered set of entity snapshots plus one mapping
// directive per entity. Mapping order is significant; dependencies
// always precede their dependents and the resolution engine relies on
// that when rewriting forward references.
package bundle

import (
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/gatebundle/gatebundle/core/entity"
)

// Action is the operator chosen strategy for resolving one mapping
// against the target store.
type Action string

const (
	NewOrExisting   Action = "NewOrExisting"
	NewOrUpdate     Action = "NewOrUpdate"
	AlwaysCreateNew Action = "AlwaysCreateNew"
	Delete          Action = "Delete"
	Ignore          Action = "Ignore"
)

var validActions = set.NewStrings(
	string(NewOrExisting), string(NewOrUpdate), string(AlwaysCreateNew),
	string(Delete), string(Ignore),
)

// Validate returns an error unless the action is one of the known
// strategies.
func (a Action) Validate() error {
	if !validActions.Contains(string(a)) {
		return errors.NotValidf("mapping action %q", a)
	}
	return nil
}

// ActionTaken records the resolved outcome of applying an Action.
type ActionTaken string

const (
	CreatedNew      ActionTaken = "CreatedNew"
	UsedExisting    ActionTaken = "UsedExisting"
	UpdatedExisting ActionTaken = "UpdatedExisting"
	Deleted         ActionTaken = "Deleted"
	Ignored         ActionTaken = "Ignored"
)

// ErrorType classifies a per mapping resolution failure.
type ErrorType string

const (
	// TargetNotFound: FailOnNew was set and no existing target matched.
	TargetNotFound ErrorType = "TargetNotFound"
	// TargetExists: FailOnExisting was set and a target matched.
	TargetExists ErrorType = "TargetExists"
	// UniqueKeyConflict: a forced creation violated a store enforced
	// uniqueness constraint.
	UniqueKeyConflict ErrorType = "UniqueKeyConflict"
	// InvalidResource: the requested mapping target is structurally
	// unsatisfiable, for instance creating a guid identified entity
	// whose guid already exists under a different id.
	InvalidResource ErrorType = "InvalidResource"
	// ImproperMapping: the resolution was ambiguous, or a delete was
	// blocked by a surviving dependent.
	ImproperMapping ErrorType = "ImproperMapping"
)

// MapBy selects the lookup key used to resolve a mapping's target.
type MapBy string

const (
	MapByID   MapBy = "id"
	MapByName MapBy = "name"
	MapByGuid MapBy = "guid"
)

// Properties are the operator overrides on one mapping. The zero value
// means no overrides. Only the known override kinds are representable.
type Properties struct {
	// FailOnNew fails the mapping with TargetNotFound rather than
	// creating a missing target.
	FailOnNew bool `yaml:"fail-on-new,omitempty"`
	// FailOnExisting fails the mapping with TargetExists rather than
	// reusing or updating a matched target.
	FailOnExisting bool `yaml:"fail-on-existing,omitempty"`
	// MapBy/MapTo resolve the target by name or guid instead of id.
	// MapTo empty means "the source entity's own name/guid".
	MapBy MapBy  `yaml:"map-by,omitempty"`
	MapTo string `yaml:"map-to,omitempty"`
}

// IsZero reports whether no overrides are set.
func (p Properties) IsZero() bool {
	return p == Properties{}
}

// Validate rejects unknown MapBy keys and a MapTo without a MapBy.
func (p Properties) Validate() error {
	switch p.MapBy {
	case "", MapByID, MapByName, MapByGuid:
	default:
		return errors.NotValidf("map-by %q", p.MapBy)
	}
	if p.MapTo != "" && p.MapBy == "" {
		return errors.NotValidf("map-to without map-by")
	}
	return nil
}

// Mapping is the per entity resolution directive and outcome record.
// It is created once at export, optionally edited by the operator, and
// finally annotated by the resolution engine.
type Mapping struct {
	// Source identifies the entity in the source store.
	Source entity.Ref
	// TargetID forces a specific target entity when set. Export
	// defaults it to the source id; ids are assumed meaningful across
	// systems.
	TargetID string
	// Action is the resolution strategy.
	Action Action
	// Properties are the operator overrides.
	Properties Properties

	// ActionTaken is set by the engine on success; ErrorType and
	// Message on failure. Exactly one of the two is ever populated.
	ActionTaken ActionTaken
	ErrorType   ErrorType
	Message     string
}

// Failed reports whether the engine recorded a failure for the
// mapping.
func (m *Mapping) Failed() bool {
	return m.ErrorType != ""
}

// Reset clears any recorded outcome, making the mapping reusable for
// a retry after the operator corrects it.
func (m *Mapping) Reset() {
	m.ActionTaken = ""
	m.ErrorType = ""
	m.Message = ""
}

// Bundle is a self contained migration unit.
type Bundle struct {
	// ExportedAt is the export wall clock time.
	ExportedAt time.Time
	// EncryptedSecrets is true when secret material in the references
	// was wrapped by the transit codec and must be unwrapped with the
	// operator supplied passphrase on arrival.
	EncryptedSecrets bool
	// References holds entity snapshots in dependency first order.
	References []entity.Object
	// Mappings holds one entry per exported entity, in the same
	// order. The root folder gets a mapping but no reference.
	Mappings []*Mapping
}

// Object looks up the snapshot for the given type and source id.
func (b *Bundle) Object(t entity.Type, id string) (entity.Object, bool) {
	for _, o := range b.References {
		if o.Ref.Type == t && o.Ref.ID == id {
			return o, true
		}
	}
	return entity.Object{}, false
}

// SetDefaultAction rewrites the action of every mapping in the
// bundle, mirroring the bulk action override of the management API's
// import call.
func (b *Bundle) SetDefaultAction(a Action) error {
	if err := a.Validate(); err != nil {
		return errors.Trace(err)
	}
	for _, m := range b.Mappings {
		m.Action = a
	}
	return nil
}

// Validate checks the bundle invariants: every mapping is well formed,
// every source id appears exactly once, and every reference has a
// mapping. Dependency first ordering is established at export and
// cannot be re-derived here without the source store.
func (b *Bundle) Validate() error {
	seen := set.NewStrings()
	mapped := set.NewStrings()
	for i, m := range b.Mappings {
		if err := m.Action.Validate(); err != nil {
			return errors.Annotatef(err, "mapping %d", i)
		}
		if err := m.Properties.Validate(); err != nil {
			return errors.Annotatef(err, "mapping %d", i)
		}
		if m.Source.ID == "" || m.Source.Type == "" {
			return errors.NotValidf("mapping %d without source identity", i)
		}
		key := m.Source.Key()
		if seen.Contains(key) {
			return errors.NotValidf("duplicate mapping for %s", m.Source)
		}
		seen.Add(key)
		mapped.Add(key)
	}
	for _, o := range b.References {
		if !mapped.Contains(o.Ref.Key()) {
			return errors.NotValidf("reference %s without a mapping", o.Ref)
		}
	}
	return nil
}

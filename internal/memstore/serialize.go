// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore

import (
	"sort"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"github.com/gatebundle/gatebundle/core/entity"
)

type serializedState struct {
	Entities []serializedEntity `yaml:"entities"`
}

type serializedEntity struct {
	Type    string                 `yaml:"type"`
	ID      string                 `yaml:"id"`
	Guid    string                 `yaml:"guid,omitempty"`
	Name    string                 `yaml:"name,omitempty"`
	Content map[string]interface{} `yaml:"content,omitempty"`
}

// Load builds a store from a serialized system state, as written by
// Save. The root folder is always present whether or not the state
// mentions it.
func Load(registry *entity.Registry, data []byte) (*Store, error) {
	var state serializedState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, errors.Annotate(err, "unmarshalling store state")
	}
	s := NewStore(registry)
	for i, e := range state.Entities {
		if e.Type == "" || e.ID == "" {
			return nil, errors.NotValidf("entity %d without type or id", i)
		}
		ref := entity.Ref{Type: entity.Type(e.Type), ID: e.ID, Guid: e.Guid, Name: e.Name}
		if ref.IsRootFolder() {
			continue
		}
		if !registry.Known(ref.Type) {
			return nil, errors.NotSupportedf("entity %d type %q", i, e.Type)
		}
		content := make(map[string]interface{}, len(e.Content))
		for k, v := range e.Content {
			content[k] = v
		}
		s.objects[ref.Key()] = normalize(entity.Object{Ref: ref, Content: content})
	}
	s.rebuildAutoRoles()
	return s, nil
}

// rebuildAutoRoles reconstructs the auto role index from role content
// after a load; the association is not serialized separately.
func (s *Store) rebuildAutoRoles() {
	for _, obj := range s.objects {
		if obj.Ref.Type != entity.Role {
			continue
		}
		if userCreated, _ := obj.Content["userCreated"].(bool); userCreated {
			continue
		}
		t, _ := obj.StringContent("entityType")
		id, _ := obj.StringContent("entityId")
		if t == "" || id == "" {
			continue
		}
		key := (entity.Ref{Type: entity.Type(t), ID: id}).Key()
		s.autoRoles[key] = append(s.autoRoles[key], obj.Ref)
	}
}

// Save renders the whole store state, root folder excluded, in a
// stable order.
func (s *Store) Save() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var state serializedState
	for _, k := range keys {
		obj := s.objects[k]
		if obj.Ref.IsRootFolder() {
			continue
		}
		state.Entities = append(state.Entities, serializedEntity{
			Type:    string(obj.Ref.Type),
			ID:      obj.Ref.ID,
			Guid:    obj.Ref.Guid,
			Name:    obj.Ref.Name,
			Content: obj.Content,
		})
	}
	return yaml.Marshal(state)
}

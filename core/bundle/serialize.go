// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package bundle

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"

	"github.com/gatebundle/gatebundle/core/entity"
)

type serializedBundle struct {
	Version          int                   `yaml:"version"`
	ExportedAt       string                `yaml:"exported-at,omitempty"`
	EncryptedSecrets bool                  `yaml:"encrypted-secrets,omitempty"`
	References       []serializedReference `yaml:"references"`
	Mappings         []serializedMapping   `yaml:"mappings"`
}

type serializedReference struct {
	Type    string                 `yaml:"type"`
	ID      string                 `yaml:"id"`
	Guid    string                 `yaml:"guid,omitempty"`
	Name    string                 `yaml:"name,omitempty"`
	Content map[string]interface{} `yaml:"content,omitempty"`
}

type serializedMapping struct {
	Type        string      `yaml:"type"`
	SrcID       string      `yaml:"src-id"`
	SrcGuid     string      `yaml:"src-guid,omitempty"`
	SrcName     string      `yaml:"src-name,omitempty"`
	TargetID    string      `yaml:"target-id,omitempty"`
	Action      string      `yaml:"action"`
	Properties  *Properties `yaml:"properties,omitempty"`
	ActionTaken string      `yaml:"action-taken,omitempty"`
	ErrorType   string      `yaml:"error-type,omitempty"`
	Message     string      `yaml:"message,omitempty"`
}

// Serialize renders the bundle to its YAML wire form. Both arrays keep
// their order; order is part of the format's meaning.
func Serialize(b *Bundle) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	out := serializedBundle{
		Version:          1,
		EncryptedSecrets: b.EncryptedSecrets,
		References:       make([]serializedReference, 0, len(b.References)),
		Mappings:         make([]serializedMapping, 0, len(b.Mappings)),
	}
	if !b.ExportedAt.IsZero() {
		out.ExportedAt = b.ExportedAt.UTC().Format(time.RFC3339)
	}
	for _, o := range b.References {
		out.References = append(out.References, serializedReference{
			Type:    string(o.Ref.Type),
			ID:      o.Ref.ID,
			Guid:    o.Ref.Guid,
			Name:    o.Ref.Name,
			Content: o.Content,
		})
	}
	for _, m := range b.Mappings {
		sm := serializedMapping{
			Type:        string(m.Source.Type),
			SrcID:       m.Source.ID,
			SrcGuid:     m.Source.Guid,
			SrcName:     m.Source.Name,
			TargetID:    m.TargetID,
			Action:      string(m.Action),
			ActionTaken: string(m.ActionTaken),
			ErrorType:   string(m.ErrorType),
			Message:     m.Message,
		}
		if !m.Properties.IsZero() {
			p := m.Properties
			sm.Properties = &p
		}
		out.Mappings = append(out.Mappings, sm)
	}
	return yaml.Marshal(out)
}

// Deserialize parses a serialized bundle, coercing and checking the
// structure before building the typed form. Unknown versions are
// rejected up front so newer bundles fail cleanly on older tools.
func Deserialize(data []byte) (*Bundle, error) {
	var source map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, errors.Annotate(err, "unmarshalling bundle")
	}
	coerced, err := versionedChecker.Coerce(source, nil)
	if err != nil {
		return nil, errors.Annotate(err, "bundle format check")
	}
	fields := coerced.(map[string]interface{})
	version := int(fields["version"].(int64))
	importFunc, ok := importFuncs[version]
	if !ok {
		return nil, errors.NotValidf("bundle version %d", version)
	}
	b, err := importFunc(fields)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := b.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return b, nil
}

var versionedChecker = schema.FieldMap(schema.Fields{
	"version":           schema.Int(),
	"exported-at":       schema.String(),
	"encrypted-secrets": schema.Bool(),
	"references":        schema.List(schema.StringMap(schema.Any())),
	"mappings":          schema.List(schema.StringMap(schema.Any())),
}, schema.Defaults{
	"exported-at":       "",
	"encrypted-secrets": false,
	"references":        schema.Omit,
	"mappings":          schema.Omit,
})

var importFuncs = map[int]func(map[string]interface{}) (*Bundle, error){
	1: importBundleV1,
}

var referenceCheckerV1 = schema.FieldMap(schema.Fields{
	"type":    schema.String(),
	"id":      schema.String(),
	"guid":    schema.String(),
	"name":    schema.String(),
	"content": schema.StringMap(schema.Any()),
}, schema.Defaults{
	"guid":    "",
	"name":    "",
	"content": schema.Omit,
})

var mappingCheckerV1 = schema.FieldMap(schema.Fields{
	"type":         schema.String(),
	"src-id":       schema.String(),
	"src-guid":     schema.String(),
	"src-name":     schema.String(),
	"target-id":    schema.String(),
	"action":       schema.String(),
	"properties":   schema.StringMap(schema.Any()),
	"action-taken": schema.String(),
	"error-type":   schema.String(),
	"message":      schema.String(),
}, schema.Defaults{
	"src-guid":     "",
	"src-name":     "",
	"target-id":    "",
	"properties":   schema.Omit,
	"action-taken": "",
	"error-type":   "",
	"message":      "",
})

var propertiesCheckerV1 = schema.FieldMap(schema.Fields{
	"fail-on-new":      schema.Bool(),
	"fail-on-existing": schema.Bool(),
	"map-by":           schema.String(),
	"map-to":           schema.String(),
}, schema.Defaults{
	"fail-on-new":      false,
	"fail-on-existing": false,
	"map-by":           "",
	"map-to":           "",
})

func importBundleV1(fields map[string]interface{}) (*Bundle, error) {
	b := &Bundle{}
	if at := fields["exported-at"].(string); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, errors.Annotate(err, "parsing exported-at")
		}
		b.ExportedAt = t
	}
	b.EncryptedSecrets = fields["encrypted-secrets"].(bool)

	refs, _ := fields["references"].([]interface{})
	for i, raw := range refs {
		coerced, err := referenceCheckerV1.Coerce(raw, nil)
		if err != nil {
			return nil, errors.Annotatef(err, "reference %d", i)
		}
		f := coerced.(map[string]interface{})
		obj := entity.Object{
			Ref: entity.Ref{
				Type: entity.Type(f["type"].(string)),
				ID:   f["id"].(string),
				Guid: f["guid"].(string),
				Name: f["name"].(string),
			},
		}
		if content, ok := f["content"].(map[string]interface{}); ok {
			obj.Content = content
		}
		b.References = append(b.References, obj)
	}

	maps, _ := fields["mappings"].([]interface{})
	for i, raw := range maps {
		coerced, err := mappingCheckerV1.Coerce(raw, nil)
		if err != nil {
			return nil, errors.Annotatef(err, "mapping %d", i)
		}
		f := coerced.(map[string]interface{})
		m := &Mapping{
			Source: entity.Ref{
				Type: entity.Type(f["type"].(string)),
				ID:   f["src-id"].(string),
				Guid: f["src-guid"].(string),
				Name: f["src-name"].(string),
			},
			TargetID:    f["target-id"].(string),
			Action:      Action(f["action"].(string)),
			ActionTaken: ActionTaken(f["action-taken"].(string)),
			ErrorType:   ErrorType(f["error-type"].(string)),
			Message:     f["message"].(string),
		}
		if raw, ok := f["properties"]; ok {
			coerced, err := propertiesCheckerV1.Coerce(raw, nil)
			if err != nil {
				return nil, errors.Annotatef(err, "mapping %d properties", i)
			}
			pf := coerced.(map[string]interface{})
			m.Properties = Properties{
				FailOnNew:      pf["fail-on-new"].(bool),
				FailOnExisting: pf["fail-on-existing"].(bool),
				MapBy:          MapBy(pf["map-by"].(string)),
				MapTo:          pf["map-to"].(string),
			}
		}
		b.Mappings = append(b.Mappings, m)
	}
	return b, nil
}

// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entity

import (
	"fmt"

	"github.com/juju/errors"
)

// Type identifies one of the closed set of configuration entity kinds
// that can travel in a bundle. The tags match the wire representation
// used by the management API.
type Type string

const (
	Folder           Type = "FOLDER"
	Policy           Type = "POLICY"
	PolicyAlias      Type = "POLICY_ALIAS"
	Service          Type = "SERVICE"
	ServiceAlias     Type = "SERVICE_ALIAS"
	SecurePassword   Type = "SECURE_PASSWORD"
	PrivateKey       Type = "SSG_KEY_ENTRY"
	TrustedCert      Type = "TRUSTED_CERT"
	JDBCConnection   Type = "JDBC_CONNECTION"
	IdentityProvider Type = "ID_PROVIDER_CONFIG"
	User             Type = "USER"
	Group            Type = "GROUP"
	SecurityZone     Type = "SECURITY_ZONE"
	ClusterProperty  Type = "CLUSTER_PROPERTY"
	Role             Type = "RBAC_ROLE"
)

// RootFolderID is the well known identifier of the synthetic root
// folder. Every system has it; it is never created or deleted by a
// migration.
const RootFolderID = "0000000000000000ffffffffffffec76"

// RootFolderRef returns a reference to the root folder.
func RootFolderRef() Ref {
	return Ref{Type: Folder, ID: RootFolderID, Name: "Root Node"}
}

// Ref identifies an entity in some store. ID is the primary stable
// identifier; Guid is a secondary globally unique identifier carried
// by some types; Name is the per type scoped display key. Refs are
// value objects and are always passed by value.
type Ref struct {
	Type Type
	ID   string
	Guid string
	Name string
}

// Key returns the identity key used to deduplicate refs. Two refs
// naming the same stored entity always produce the same key.
func (r Ref) Key() string {
	return string(r.Type) + ":" + r.ID
}

// IsRootFolder reports whether the ref names the root folder.
func (r Ref) IsRootFolder() bool {
	return r.Type == Folder && r.ID == RootFolderID
}

// IsZero reports whether the ref is empty.
func (r Ref) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

func (r Ref) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s %q (%s)", r.Type, r.Name, r.ID)
	}
	return fmt.Sprintf("%s (%s)", r.Type, r.ID)
}

// SameEntity reports whether two refs resolve to the same stored
// entity. Identity is compared explicitly per type: the primary id
// decides whenever both refs carry one, with the guid as a fallback for
// guid carrying types. Two refs holding the same guid under different
// ids are distinct entities in collision, not one entity. Structural
// equality of the whole ref is deliberately not used; names are display
// keys, not identity.
func SameEntity(a, b Ref) bool {
	if a.Type != b.Type {
		return false
	}
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.Guid != "" && a.Guid == b.Guid
}

// Object is a full snapshot of one entity's content at export time.
// Content is the serialized representation fetched from the owning
// store; well known keys within it carry cross entity references and
// secret material, as described by the Registry.
type Object struct {
	Ref     Ref
	Content map[string]interface{}
}

// Copy returns a deep copy of the object. The resolution engine
// rewrites content in place before creating entities on the target, so
// it must never share maps with the caller's bundle.
func (o Object) Copy() Object {
	return Object{Ref: o.Ref, Content: copyContent(o.Content)}
}

func copyContent(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		return copyContent(v)
	case map[interface{}]interface{}:
		// YAML deserialization produces interface keyed maps.
		out := make(map[interface{}]interface{}, len(v))
		for k, e := range v {
			out[k] = copyValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// StringContent returns the named content value as a string. Missing
// keys return the empty string; non string values are an error.
func (o Object) StringContent(key string) (string, error) {
	v, ok := o.Content[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.NotValidf("content %q of type %T", key, v)
	}
	return s, nil
}

// ParentFolderID returns the id of the object's parent folder, or the
// empty string if the content carries none.
func (o Object) ParentFolderID() string {
	s, err := o.StringContent("folderId")
	if err != nil {
		return ""
	}
	return s
}

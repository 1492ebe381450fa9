// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package migration

import (
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/gatebundle/gatebundle/core/bundle"
	"github.com/gatebundle/gatebundle/core/entity"
	"github.com/gatebundle/gatebundle/core/secrets"
)

// ExportConfig drives one export call.
type ExportConfig struct {
	// Roots are the entities to export. Empty means everything.
	Roots []entity.Ref

	// IncludeDependencies carries the transitive dependency closure
	// of the roots in the bundle. When false only the roots travel,
	// and every mapping is marked FailOnNew: the operator has
	// declared that whatever is needed already exists on the target.
	IncludeDependencies bool

	// DefaultAction is the action preset on every mapping.
	// Defaults to NewOrExisting.
	DefaultAction bundle.Action

	// EncryptSecrets wraps secret content fields through the transit
	// codec under Passphrase, so plaintext never appears in the
	// serialized bundle.
	EncryptSecrets bool
	Passphrase     string
}

// Exporter packages entity sets into bundles. Export is read only and
// side effect free; it is safe to run concurrently with anything.
type Exporter struct {
	store    EntityStore
	registry *entity.Registry
	clock    clock.Clock
}

// NewExporter returns an exporter reading from the given store.
func NewExporter(store EntityStore, registry *entity.Registry, clk clock.Clock) *Exporter {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Exporter{store: store, registry: registry, clock: clk}
}

// Export builds a bundle for the configured roots. The bundle's
// references and mappings share the dependency first order computed by
// the closure walk; the root folder, when present, gets a mapping but
// no reference snapshot.
func (e *Exporter) Export(cfg ExportConfig) (*bundle.Bundle, error) {
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = bundle.NewOrExisting
	}
	if err := cfg.DefaultAction.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.EncryptSecrets && cfg.Passphrase == "" {
		return nil, errors.NotValidf("encrypting secrets without a passphrase")
	}
	order, err := BuildClosure(e.store, e.registry, cfg.Roots, cfg.IncludeDependencies)
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger.Debugf("exporting %d entities", len(order))

	b := &bundle.Bundle{
		ExportedAt:       e.clock.Now(),
		EncryptedSecrets: cfg.EncryptSecrets,
	}
	for _, ref := range order {
		m := &bundle.Mapping{
			Source:   ref,
			TargetID: ref.ID,
			Action:   cfg.DefaultAction,
		}
		if !cfg.IncludeDependencies {
			m.Properties.FailOnNew = true
		}
		b.Mappings = append(b.Mappings, m)

		if ref.IsRootFolder() {
			continue
		}
		obj, err := e.store.Get(ref)
		if err != nil {
			return nil, errors.Annotatef(err, "fetching %s", ref)
		}
		obj = obj.Copy()
		if cfg.EncryptSecrets {
			if err := e.encryptSecrets(&obj, cfg.Passphrase); err != nil {
				return nil, errors.Annotatef(err, "encrypting secrets of %s", ref)
			}
		}
		b.References = append(b.References, obj)
	}
	return b, nil
}

// encryptSecrets replaces each secret content field of the snapshot
// with its transit form.
func (e *Exporter) encryptSecrets(obj *entity.Object, passphrase string) error {
	def, err := e.registry.Definition(obj.Ref.Type)
	if err != nil {
		return errors.Trace(err)
	}
	for _, field := range def.SecretFields {
		plaintext, err := obj.StringContent(field)
		if err != nil {
			return errors.Trace(err)
		}
		if plaintext == "" {
			continue
		}
		w, err := secrets.Wrap([]byte(plaintext), passphrase)
		if err != nil {
			return errors.Trace(err)
		}
		obj.Content[field] = map[string]interface{}{
			"ciphertext": w.Ciphertext,
			"key":        w.WrappedKey,
		}
	}
	return nil
}

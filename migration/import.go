// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package migration

import (
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	"github.com/gatebundle/gatebundle/core/bundle"
	"github.com/gatebundle/gatebundle/core/entity"
	"github.com/gatebundle/gatebundle/core/secrets"
)

// ImportOptions drive one Apply call.
type ImportOptions struct {
	// DryRun walks the whole state machine and produces the same
	// outcome report without mutating the target store. Used to
	// validate bundles, including encrypted ones, before committing.
	DryRun bool

	// Passphrase unwraps secret material when the bundle was exported
	// with encrypted secrets.
	Passphrase string
}

// Importer applies bundles to a target store.
//
// A single Apply call is strictly sequential over the mapping array:
// forward reference rewriting depends on earlier mappings having
// already resolved, so mappings are never reordered or parallelized
// within one bundle. Concurrent Apply calls against the same store are
// allowed but rely on the store's own per call atomicity; two racing
// create-by-name imports surface UniqueKeyConflict on one side.
type Importer struct {
	store    EntityStore
	registry *entity.Registry
}

// NewImporter returns an importer writing to the given store.
func NewImporter(store EntityStore, registry *entity.Registry) *Importer {
	return &Importer{store: store, registry: registry}
}

// Apply resolves every mapping of the bundle against the target store,
// in array order, and records the outcome on each mapping. Mappings
// fail individually: a failed mapping does not abort its siblings and
// earlier side effects stay committed. The returned error is
// ErrBundleConflicts when any mapping failed, nil when all committed.
// Reapplying a corrected bundle converges: entities created by an
// earlier attempt resolve as UsedExisting or UpdatedExisting.
func (i *Importer) Apply(b *bundle.Bundle, opts ImportOptions) error {
	if err := b.Validate(); err != nil {
		return errors.Trace(err)
	}
	if b.EncryptedSecrets && opts.Passphrase == "" {
		return errors.NotValidf("bundle with encrypted secrets and no passphrase")
	}
	logger.Infof("applying bundle: %d mappings, dry run %v", len(b.Mappings), opts.DryRun)

	run := &importRun{
		Importer: i,
		b:        b,
		opts:     opts,
		resolved: make(map[string]entity.Ref, len(b.Mappings)),
		deleted:  set.NewStrings(),
	}
	outcomes := make([]outcome, len(b.Mappings))
	for idx, m := range b.Mappings {
		logger.Tracef("processing mapping %d of %d: %s", idx+1, len(b.Mappings), m.Source)
		outcomes[idx] = run.resolve(m)
	}

	// Outcomes are written back only after the loop; the loop itself
	// threads the resolved accumulator instead of reading partially
	// mutated mappings.
	failed := false
	for idx, m := range b.Mappings {
		out := outcomes[idx]
		m.Reset()
		if out.errType != "" {
			m.ErrorType = out.errType
			m.Message = out.message
			failed = true
			continue
		}
		m.ActionTaken = out.taken
		if !out.target.IsZero() {
			m.TargetID = out.target.ID
		}
	}
	if failed {
		return ErrBundleConflicts
	}
	return nil
}

type outcome struct {
	taken   bundle.ActionTaken
	target  entity.Ref
	errType bundle.ErrorType
	message string
}

func taken(t bundle.ActionTaken, target entity.Ref) outcome {
	return outcome{taken: t, target: target}
}

// importRun is the state of one Apply call: the accumulator of source
// ref to resolved target ref, and the set of entities deleted so far
// by this bundle.
type importRun struct {
	*Importer
	b        *bundle.Bundle
	opts     ImportOptions
	resolved map[string]entity.Ref
	deleted  set.Strings
}

func (r *importRun) resolve(m *bundle.Mapping) outcome {
	out, err := r.resolveErr(m)
	if err != nil {
		t, msg := classify(err)
		logger.Debugf("mapping %s failed: %s: %s", m.Source, t, msg)
		return outcome{errType: t, message: msg}
	}
	return out
}

func (r *importRun) resolveErr(m *bundle.Mapping) (outcome, error) {
	if !r.registry.Known(m.Source.Type) {
		return outcome{}, failMapping(bundle.ImproperMapping, "unknown entity type %q", m.Source.Type)
	}
	if m.Action == bundle.Ignore {
		return taken(bundle.Ignored, entity.Ref{}), nil
	}
	if m.Source.IsRootFolder() {
		return r.resolveRootFolder(m)
	}

	existing, err := r.locateExisting(m)
	if err != nil {
		return outcome{}, errors.Trace(err)
	}
	if existing != nil {
		if m.Properties.FailOnExisting {
			return outcome{}, failMapping(bundle.TargetExists,
				"fail on existing specified and target %s exists", existing.Ref)
		}
		return r.resolveAgainstExisting(m, *existing)
	}
	return r.resolveAgainstMissing(m)
}

// resolveRootFolder handles the synthetic root folder, which exists on
// every target: it is only ever used, never created, updated or
// deleted.
func (r *importRun) resolveRootFolder(m *bundle.Mapping) (outcome, error) {
	switch m.Action {
	case bundle.Delete:
		return outcome{}, failMapping(bundle.ImproperMapping, "cannot delete the root folder")
	default:
		if m.Properties.FailOnExisting {
			return outcome{}, failMapping(bundle.TargetExists,
				"fail on existing specified and target %s exists", entity.RootFolderRef())
		}
		root := entity.RootFolderRef()
		r.resolved[m.Source.Key()] = root
		return taken(bundle.UsedExisting, root), nil
	}
}

// resolveAgainstExisting runs the action branch for a located target.
func (r *importRun) resolveAgainstExisting(m *bundle.Mapping, existing entity.Object) (outcome, error) {
	switch m.Action {
	case bundle.NewOrExisting:
		r.resolved[m.Source.Key()] = existing.Ref
		return taken(bundle.UsedExisting, existing.Ref), nil

	case bundle.NewOrUpdate:
		obj, err := r.preparedSnapshot(m, existing.Ref.ID)
		if err != nil {
			return outcome{}, errors.Trace(err)
		}
		if !r.opts.DryRun {
			if err := r.store.Update(obj); err != nil {
				return outcome{}, errors.Trace(err)
			}
		}
		r.resolved[m.Source.Key()] = obj.Ref
		return taken(bundle.UpdatedExisting, obj.Ref), nil

	case bundle.AlwaysCreateNew:
		obj, err := r.preparedSnapshot(m, "")
		if err != nil {
			return outcome{}, errors.Trace(err)
		}
		// The incoming guid belongs to the entity we are refusing to
		// reuse; a fresh copy needs a fresh guid.
		if obj.Ref.Guid != "" && obj.Ref.Guid == existing.Ref.Guid {
			obj.Ref.Guid = utils.MustNewUUID().String()
			obj.Content["guid"] = obj.Ref.Guid
		}
		return r.create(m, obj)

	case bundle.Delete:
		return r.deleteExisting(m, existing)

	default:
		return outcome{}, failMapping(bundle.ImproperMapping, "unknown mapping action %q", m.Action)
	}
}

// resolveAgainstMissing runs the action branch when no target matched.
func (r *importRun) resolveAgainstMissing(m *bundle.Mapping) (outcome, error) {
	// Deleting what is already absent is not an error, whatever the
	// property overrides say.
	if m.Action == bundle.Delete {
		return taken(bundle.Ignored, entity.Ref{}), nil
	}
	if m.Properties.FailOnNew {
		return outcome{}, failMapping(bundle.TargetNotFound,
			"fail on new specified and could not locate an existing target for %s", m.Source)
	}
	switch m.Action {
	case bundle.NewOrExisting, bundle.NewOrUpdate:
		obj, err := r.preparedSnapshot(m, r.candidateID(m))
		if err != nil {
			return outcome{}, errors.Trace(err)
		}
		if err := r.checkGuidAvailable(obj); err != nil {
			return outcome{}, errors.Trace(err)
		}
		return r.create(m, obj)

	case bundle.AlwaysCreateNew:
		id := r.candidateID(m)
		// The lookup may have missed by name or guid while the
		// candidate id is still taken; fall back to a store
		// allocated id rather than colliding.
		if id != "" {
			if _, err := r.store.Get(entity.Ref{Type: m.Source.Type, ID: id}); err == nil {
				id = ""
			} else if !errors.Is(err, errors.NotFound) {
				return outcome{}, errors.Trace(err)
			}
		}
		obj, err := r.preparedSnapshot(m, id)
		if err != nil {
			return outcome{}, errors.Trace(err)
		}
		return r.create(m, obj)

	default:
		return outcome{}, failMapping(bundle.ImproperMapping, "unknown mapping action %q", m.Action)
	}
}

// candidateID is the id a creation will be attempted under: the forced
// target id when set, else the source id. Ids are assumed meaningful
// across systems.
func (r *importRun) candidateID(m *bundle.Mapping) string {
	if m.TargetID != "" {
		return m.TargetID
	}
	return m.Source.ID
}

// create stores the prepared snapshot and records the resolution. In
// dry run mode the store is left untouched but the accumulator is
// advanced as if the create had happened, so dependents still resolve.
func (r *importRun) create(m *bundle.Mapping, obj entity.Object) (outcome, error) {
	if r.opts.DryRun {
		if obj.Ref.ID == "" {
			obj.Ref.ID = utils.MustNewUUID().String()
		}
		r.resolved[m.Source.Key()] = obj.Ref
		return taken(bundle.CreatedNew, obj.Ref), nil
	}
	id, err := r.store.Create(obj)
	if err != nil {
		return outcome{}, errors.Trace(err)
	}
	obj.Ref.ID = id
	r.resolved[m.Source.Key()] = obj.Ref
	return taken(bundle.CreatedNew, obj.Ref), nil
}

// deleteExisting applies the delete action: refuse in use targets and
// system roles, cascade remove auto created roles, and remember the
// deletion so later deletes in the same bundle see an up to date
// dependency picture.
func (r *importRun) deleteExisting(m *bundle.Mapping, existing entity.Object) (outcome, error) {
	if existing.Ref.Type == entity.Role {
		if userCreated, _ := existing.Content["userCreated"].(bool); !userCreated {
			return outcome{}, failMapping(bundle.ImproperMapping,
				"cannot delete system role %s", existing.Ref)
		}
	}
	dependents, err := r.store.ListDependents(existing.Ref)
	if err != nil {
		return outcome{}, errors.Trace(err)
	}
	for _, dep := range dependents {
		if r.deleted.Contains(dep.Key()) {
			continue
		}
		return outcome{}, failMapping(bundle.ImproperMapping,
			"cannot delete %s, it is being used by %s", existing.Ref, dep)
	}
	if !r.opts.DryRun {
		autoRoles, err := r.store.ListAutoRoles(existing.Ref)
		if err != nil {
			return outcome{}, errors.Trace(err)
		}
		if err := r.store.Delete(existing.Ref); err != nil {
			return outcome{}, errors.Trace(err)
		}
		for _, role := range autoRoles {
			if err := r.store.Delete(role); err != nil {
				return outcome{}, errors.Annotatef(err, "cascading role removal for %s", existing.Ref)
			}
			r.deleted.Add(role.Key())
		}
	}
	r.deleted.Add(existing.Ref.Key())
	return taken(bundle.Deleted, existing.Ref), nil
}

// preparedSnapshot fetches the mapping's snapshot from the bundle and
// makes it target ready: secret fields unwrapped, cross references
// rewritten through the accumulator, identity set to the target id.
func (r *importRun) preparedSnapshot(m *bundle.Mapping, targetID string) (entity.Object, error) {
	src, ok := r.b.Object(m.Source.Type, m.Source.ID)
	if !ok {
		return entity.Object{}, failMapping(bundle.ImproperMapping,
			"bundle carries no reference for %s", m.Source)
	}
	obj := src.Copy()
	obj.Ref.ID = targetID
	if obj.Content == nil {
		obj.Content = make(map[string]interface{})
	}
	if err := r.unwrapSecrets(&obj); err != nil {
		return entity.Object{}, errors.Trace(err)
	}
	if err := r.rewriteReferences(&obj); err != nil {
		return entity.Object{}, errors.Trace(err)
	}
	return obj, nil
}

// unwrapSecrets restores plaintext secret fields from their transit
// form when the bundle travelled encrypted.
func (r *importRun) unwrapSecrets(obj *entity.Object) error {
	if !r.b.EncryptedSecrets {
		return nil
	}
	def, err := r.registry.Definition(obj.Ref.Type)
	if err != nil {
		return errors.Trace(err)
	}
	for _, field := range def.SecretFields {
		raw, ok := obj.Content[field]
		if !ok || raw == nil {
			continue
		}
		w, ok := wrappedFromContent(raw)
		if !ok {
			return failMapping(bundle.InvalidResource,
				"secret field %q of %s is not in transit form", field, obj.Ref)
		}
		plaintext, err := secrets.Unwrap(w, r.opts.Passphrase)
		if err != nil {
			return failMapping(bundle.InvalidResource,
				"cannot decrypt secret field %q of %s: %v", field, obj.Ref, err)
		}
		obj.Content[field] = string(plaintext)
	}
	return nil
}

func wrappedFromContent(raw interface{}) (secrets.Wrapped, bool) {
	m, ok := asContentMap(raw)
	if !ok {
		return secrets.Wrapped{}, false
	}
	ct, _ := m["ciphertext"].(string)
	key, _ := m["key"].(string)
	if ct == "" || key == "" {
		return secrets.Wrapped{}, false
	}
	return secrets.Wrapped{Ciphertext: ct, WrappedKey: key}, true
}

func asContentMap(raw interface{}) (map[string]interface{}, bool) {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = v
		}
		return out, true
	}
	return nil, false
}

// rewriteReferences replaces embedded source ids with the target ids
// already resolved by earlier mappings. Dependency first mapping order
// is the precondition making this a single forward pass.
func (r *importRun) rewriteReferences(obj *entity.Object) error {
	def, err := r.registry.Definition(obj.Ref.Type)
	if err != nil {
		return errors.Trace(err)
	}
	if def.HasFolder {
		r.rewriteField(obj, "folderId", entity.Folder)
	}
	for field, ftype := range def.RefFields {
		r.rewriteField(obj, field, ftype)
	}
	r.rewriteField(obj, "securityZoneId", entity.SecurityZone)

	if raw, ok := obj.Content["uses"]; ok && raw != nil {
		list, ok := raw.([]interface{})
		if !ok {
			return errors.NotValidf("uses list of type %T in %s", raw, obj.Ref)
		}
		for _, e := range list {
			m, ok := asContentMap(e)
			if !ok {
				continue
			}
			t, _ := m["type"].(string)
			id, _ := m["id"].(string)
			if target, ok := r.resolved[(entity.Ref{Type: entity.Type(t), ID: id}).Key()]; ok {
				m["id"] = target.ID
				if em, isMap := e.(map[interface{}]interface{}); isMap {
					em["id"] = target.ID
				}
			}
		}
	}
	return nil
}

func (r *importRun) rewriteField(obj *entity.Object, field string, ftype entity.Type) {
	id, err := obj.StringContent(field)
	if err != nil || id == "" {
		return
	}
	if target, ok := r.resolved[(entity.Ref{Type: ftype, ID: id}).Key()]; ok {
		obj.Content[field] = target.ID
	}
}

// checkGuidAvailable guards creation of guid carrying entities: a guid
// already present under a different id is a cross store duplicate that
// must be surfaced, not silently resolved.
func (r *importRun) checkGuidAvailable(obj entity.Object) error {
	def, err := r.registry.Definition(obj.Ref.Type)
	if err != nil {
		return errors.Trace(err)
	}
	if !def.HasGuid || obj.Ref.Guid == "" {
		return nil
	}
	ref, err := r.store.FindByGuid(obj.Ref.Type, obj.Ref.Guid)
	if errors.Is(err, errors.NotFound) {
		return nil
	}
	if err != nil {
		return errors.Trace(err)
	}
	if r.deleted.Contains(ref.Key()) {
		return nil
	}
	// The guid holder being the very entity about to be written is not
	// a cross store duplicate; the create will settle ownership.
	if entity.SameEntity(ref, obj.Ref) {
		return nil
	}
	return failMapping(bundle.InvalidResource,
		"guid %q already exists on the target as %s", obj.Ref.Guid, ref)
}

// locateExisting finds the target store entity the mapping should
// resolve against, or nil when there is none. The candidate is the
// forced target id when set, else whatever MapBy/MapTo select, else
// the source id.
func (r *importRun) locateExisting(m *bundle.Mapping) (*entity.Object, error) {
	if m.TargetID != "" {
		return r.getByID(m.Source.Type, m.TargetID)
	}
	switch m.Properties.MapBy {
	case "", bundle.MapByID:
		id := m.Properties.MapTo
		if id == "" {
			id = m.Source.ID
		}
		return r.getByID(m.Source.Type, id)

	case bundle.MapByName:
		name := m.Properties.MapTo
		if name == "" {
			name = m.Source.Name
		}
		if name == "" {
			return nil, failMapping(bundle.ImproperMapping,
				"mapping %s by name but could not deduce a target name", m.Source)
		}
		return r.getByName(m, name)

	case bundle.MapByGuid:
		guid := m.Properties.MapTo
		if guid == "" {
			guid = m.Source.Guid
		}
		if guid == "" {
			return nil, failMapping(bundle.ImproperMapping,
				"mapping %s by guid but could not deduce a target guid", m.Source)
		}
		ref, err := r.store.FindByGuid(m.Source.Type, guid)
		if errors.Is(err, errors.NotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
		return r.getByID(ref.Type, ref.ID)

	default:
		return nil, failMapping(bundle.ImproperMapping,
			"unsupported map-by %q, only id, name and guid are supported", m.Properties.MapBy)
	}
}

func (r *importRun) getByID(t entity.Type, id string) (*entity.Object, error) {
	obj, err := r.store.Get(entity.Ref{Type: t, ID: id})
	if errors.Is(err, errors.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	if r.deleted.Contains(obj.Ref.Key()) {
		return nil, nil
	}
	return &obj, nil
}

// getByName resolves a name lookup within the right container: the
// mapped parent folder for folder scoped names, the mapped identity
// provider for provider scoped ones.
func (r *importRun) getByName(m *bundle.Mapping, name string) (*entity.Object, error) {
	def, err := r.registry.Definition(m.Source.Type)
	if err != nil {
		return nil, errors.Trace(err)
	}
	container := ""
	if src, ok := r.b.Object(m.Source.Type, m.Source.ID); ok {
		switch def.NameScope {
		case entity.ScopeFolder:
			container = r.mappedContainer(entity.Folder, src.ParentFolderID())
		case entity.ScopeProvider:
			id, _ := src.StringContent("providerId")
			container = r.mappedContainer(entity.IdentityProvider, id)
		}
	}
	refs, err := r.store.FindByName(m.Source.Type, container, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	live := refs[:0]
	for _, ref := range refs {
		if !r.deleted.Contains(ref.Key()) {
			live = append(live, ref)
		}
	}
	switch len(live) {
	case 0:
		return nil, nil
	case 1:
		return r.getByID(live[0].Type, live[0].ID)
	default:
		return nil, failMapping(bundle.ImproperMapping,
			"found multiple possible target entities with name %q", name)
	}
}

// mappedContainer translates a source container id to its resolved
// target id, falling back to the source id when the container was not
// part of this bundle.
func (r *importRun) mappedContainer(t entity.Type, id string) string {
	if id == "" {
		return ""
	}
	if target, ok := r.resolved[(entity.Ref{Type: t, ID: id}).Key()]; ok {
		return target.ID
	}
	return id
}

// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/gatebundle/gatebundle/core/entity"
	"github.com/gatebundle/gatebundle/internal/memstore"
)

type storeSuite struct {
	store *memstore.Store
}

var _ = gc.Suite(&storeSuite{})

func (s *storeSuite) SetUpTest(c *gc.C) {
	s.store = memstore.NewStore(entity.DefaultRegistry())
}

func (s *storeSuite) addFolder(c *gc.C, id, name, parent string) entity.Ref {
	ref := entity.Ref{Type: entity.Folder, ID: id, Name: name}
	_, err := s.store.Create(entity.Object{
		Ref:     ref,
		Content: map[string]interface{}{"folderId": parent},
	})
	c.Assert(err, jc.ErrorIsNil)
	return ref
}

func (s *storeSuite) TestRootFolderPresent(c *gc.C) {
	obj, err := s.store.Get(entity.RootFolderRef())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(obj.Ref.IsRootFolder(), jc.IsTrue)
}

func (s *storeSuite) TestGetNotFound(c *gc.C) {
	_, err := s.store.Get(entity.Ref{Type: entity.Policy, ID: "nope"})
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *storeSuite) TestCreateAndGet(c *gc.C) {
	ref := s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	obj, err := s.store.Get(ref)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(obj.Ref.Name, gc.Equals, "FolderA")
	c.Check(obj.ParentFolderID(), gc.Equals, entity.RootFolderID)
}

func (s *storeSuite) TestCreateAllocatesID(c *gc.C) {
	id, err := s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.SecurePassword, Name: "pw"},
		Content: map[string]interface{}{"password": "secret"},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(id, gc.Not(gc.Equals), "")
}

func (s *storeSuite) TestCreateDuplicateID(c *gc.C) {
	s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	_, err := s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.Folder, ID: "f1", Name: "Other"},
		Content: map[string]interface{}{"folderId": entity.RootFolderID},
	})
	c.Assert(err, jc.ErrorIs, errors.AlreadyExists)
}

func (s *storeSuite) TestNameUniquePerFolder(c *gc.C) {
	s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	// Same name under a different parent is fine.
	s.addFolder(c, "f2", "Sub", "f1")
	_, err := s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.Folder, ID: "f3", Name: "Sub"},
		Content: map[string]interface{}{"folderId": entity.RootFolderID},
	})
	c.Assert(err, jc.ErrorIsNil)
	// Same name under the same parent is a conflict.
	_, err = s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.Folder, ID: "f4", Name: "Sub"},
		Content: map[string]interface{}{"folderId": "f1"},
	})
	c.Assert(err, jc.ErrorIs, errors.AlreadyExists)
}

func (s *storeSuite) TestGuidUnique(c *gc.C) {
	_, err := s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.Policy, ID: "p1", Guid: "g1", Name: "P1"},
		Content: map[string]interface{}{"folderId": entity.RootFolderID},
	})
	c.Assert(err, jc.ErrorIsNil)
	_, err = s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.Policy, ID: "p2", Guid: "g1", Name: "P2"},
		Content: map[string]interface{}{"folderId": entity.RootFolderID},
	})
	c.Assert(err, jc.ErrorIs, errors.AlreadyExists)
}

func (s *storeSuite) TestFindByName(c *gc.C) {
	s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	s.addFolder(c, "f2", "Sub", "f1")
	s.addFolder(c, "f3", "Sub", entity.RootFolderID)

	refs, err := s.store.FindByName(entity.Folder, "", "Sub")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(refs, gc.HasLen, 2)

	refs, err = s.store.FindByName(entity.Folder, "f1", "Sub")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(refs, gc.HasLen, 1)
	c.Check(refs[0].ID, gc.Equals, "f2")
}

func (s *storeSuite) TestFindByGuid(c *gc.C) {
	_, err := s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.Policy, ID: "p1", Guid: "g1", Name: "P1"},
		Content: map[string]interface{}{"folderId": entity.RootFolderID},
	})
	c.Assert(err, jc.ErrorIsNil)

	ref, err := s.store.FindByGuid(entity.Policy, "g1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ref.ID, gc.Equals, "p1")

	_, err = s.store.FindByGuid(entity.Policy, "unknown")
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *storeSuite) TestListDependents(c *gc.C) {
	s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	_, err := s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.Service, ID: "s1", Name: "ServiceA"},
		Content: map[string]interface{}{"folderId": "f1"},
	})
	c.Assert(err, jc.ErrorIsNil)

	deps, err := s.store.ListDependents(entity.Ref{Type: entity.Folder, ID: "f1"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(deps, gc.HasLen, 1)
	c.Check(deps[0].ID, gc.Equals, "s1")
}

func (s *storeSuite) TestAutoRoles(c *gc.C) {
	ref := s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	roles, err := s.store.ListAutoRoles(ref)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(roles, gc.HasLen, 1)
	c.Check(roles[0].Name, gc.Equals, "Manage FolderA")

	obj, err := s.store.Get(roles[0])
	c.Assert(err, jc.ErrorIsNil)
	c.Check(obj.Content["userCreated"], gc.Equals, false)
}

func (s *storeSuite) TestUpdate(c *gc.C) {
	ref := s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	err := s.store.Update(entity.Object{
		Ref:     entity.Ref{Type: entity.Folder, ID: ref.ID, Name: "Renamed"},
		Content: map[string]interface{}{"folderId": entity.RootFolderID},
	})
	c.Assert(err, jc.ErrorIsNil)
	obj, err := s.store.Get(ref)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(obj.Ref.Name, gc.Equals, "Renamed")

	err = s.store.Update(entity.Object{
		Ref: entity.Ref{Type: entity.Folder, ID: "missing"},
	})
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *storeSuite) TestDelete(c *gc.C) {
	ref := s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	c.Assert(s.store.Delete(ref), jc.ErrorIsNil)
	_, err := s.store.Get(ref)
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	c.Assert(s.store.Delete(ref), jc.ErrorIs, errors.NotFound)
}

func (s *storeSuite) TestSaveLoadRoundTrip(c *gc.C) {
	s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	_, err := s.store.Create(entity.Object{
		Ref:     entity.Ref{Type: entity.Service, ID: "s1", Name: "ServiceA"},
		Content: map[string]interface{}{"folderId": "f1", "routingUri": "/svc"},
	})
	c.Assert(err, jc.ErrorIsNil)

	data, err := s.store.Save()
	c.Assert(err, jc.ErrorIsNil)

	loaded, err := memstore.Load(entity.DefaultRegistry(), data)
	c.Assert(err, jc.ErrorIsNil)

	obj, err := loaded.Get(entity.Ref{Type: entity.Service, ID: "s1"})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(obj.Ref.Name, gc.Equals, "ServiceA")
	c.Check(obj.Content["routingUri"], gc.Equals, "/svc")

	// The auto role index survives the round trip.
	roles, err := loaded.ListAutoRoles(entity.Ref{Type: entity.Folder, ID: "f1"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(roles, gc.HasLen, 1)
}

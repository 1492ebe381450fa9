// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/gatebundle/gatebundle/core/entity"
)

func (s *storeSuite) TestFolderPath(c *gc.C) {
	s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	s.addFolder(c, "f2", "Sub/Folder", "f1")

	path, err := s.store.FolderPath(entity.RootFolderRef())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(path, gc.Equals, "/")

	path, err = s.store.FolderPath(entity.Ref{Type: entity.Folder, ID: "f2"})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(path, gc.Equals, `/FolderA/Sub\/Folder`)
}

func (s *storeSuite) TestFolderPathNotFound(c *gc.C) {
	_, err := s.store.FolderPath(entity.Ref{Type: entity.Folder, ID: "nope"})
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *storeSuite) TestFindFolderByPath(c *gc.C) {
	s.addFolder(c, "f1", "FolderA", entity.RootFolderID)
	s.addFolder(c, "f2", "Sub/Folder", "f1")

	ref, err := s.store.FindFolderByPath("/")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ref.IsRootFolder(), jc.IsTrue)

	ref, err = s.store.FindFolderByPath(`/FolderA/Sub\/Folder`)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ref.ID, gc.Equals, "f2")

	_, err = s.store.FindFolderByPath("/FolderA/Missing")
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package memstore

import (
	"github.com/juju/errors"

	"github.com/gatebundle/gatebundle/core/entity"
)

// FolderPath returns the escaped name chain path of a folder, "/" for
// the root.
func (s *Store) FolderPath(ref entity.Ref) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for !ref.IsRootFolder() {
		obj, ok := s.objects[ref.Key()]
		if !ok {
			return "", errors.NotFoundf("%s", ref)
		}
		names = append([]string{obj.Ref.Name}, names...)
		ref = entity.Ref{Type: entity.Folder, ID: obj.ParentFolderID()}
		if ref.ID == "" {
			return "", errors.NotValidf("folder %s outside the root tree", obj.Ref)
		}
	}
	return entity.JoinFolderPath(names), nil
}

// FindFolderByPath resolves a folder path to its ref.
func (s *Store) FindFolderByPath(path string) (entity.Ref, error) {
	names, err := entity.SplitFolderPath(path)
	if err != nil {
		return entity.Ref{}, errors.Trace(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := entity.RootFolderRef()
	for _, name := range names {
		var found *entity.Object
		for _, obj := range s.objects {
			if obj.Ref.Type != entity.Folder || obj.Ref.Name != name {
				continue
			}
			if obj.ParentFolderID() != parent.ID {
				continue
			}
			obj := obj
			found = &obj
			break
		}
		if found == nil {
			return entity.Ref{}, errors.NotFoundf("folder %q", path)
		}
		parent = found.Ref
	}
	return parent, nil
}

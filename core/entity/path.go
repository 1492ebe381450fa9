// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entity

import (
	"strings"

	"github.com/juju/errors"
)

// Folder paths address folders by name chain instead of id, rooted at
// "/". Separator and escape characters inside a folder name are
// backslash escaped, so "a/b" the folder name and "a/b" the path of b
// under a stay distinguishable.

// EscapeFolderName escapes separator and escape characters in a single
// folder name for embedding in a path.
func EscapeFolderName(name string) string {
	name = strings.ReplaceAll(name, `\`, `\\`)
	return strings.ReplaceAll(name, `/`, `\/`)
}

// JoinFolderPath builds a path from root-first folder names.
func JoinFolderPath(names []string) string {
	if len(names) == 0 {
		return "/"
	}
	escaped := make([]string, len(names))
	for i, name := range names {
		escaped[i] = EscapeFolderName(name)
	}
	return "/" + strings.Join(escaped, "/")
}

// SplitFolderPath splits a path into unescaped folder names, root
// first. The root path "/" splits to no names.
func SplitFolderPath(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, errors.NotValidf("folder path %q without leading slash", path)
	}
	if path == "/" {
		return nil, nil
	}
	var names []string
	var cur strings.Builder
	escaped := false
	for _, r := range path[1:] {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '/':
			names = append(names, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		return nil, errors.NotValidf("folder path %q with trailing escape", path)
	}
	names = append(names, cur.String())
	for _, name := range names {
		if name == "" {
			return nil, errors.NotValidf("folder path %q with empty segment", path)
		}
	}
	return names, nil
}

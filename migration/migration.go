// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package migration implements the configuration bundle migration
// engine: dependency aware export of an entity set from a source
// store, and conflict resolving import of that set into a target
// store. The entity stores themselves are external collaborators; the
// engine only speaks the EntityStore contract.
package migration

import (
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("gatebundle.migration")

// Copyright 2025 Gatebundle Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package migration

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/gatebundle/gatebundle/core/bundle"
)

// ErrBundleConflicts is the aggregate error returned by Apply when at
// least one mapping failed. Side effects of mappings that succeeded
// earlier in the same call remain committed; the caller inspects the
// per mapping ErrorType to see what actually happened.
const ErrBundleConflicts = errors.ConstError("bundle applied with conflicts")

// mappingError is the internal resolution failure for one mapping,
// carrying the classification written back into the mapping record.
type mappingError struct {
	errorType bundle.ErrorType
	message   string
}

func (e *mappingError) Error() string {
	return fmt.Sprintf("%s: %s", e.errorType, e.message)
}

func failMapping(t bundle.ErrorType, format string, args ...interface{}) error {
	return &mappingError{errorType: t, message: fmt.Sprintf(format, args...)}
}

// classify maps an arbitrary resolution error onto the bundle error
// taxonomy. Store level NotFound and AlreadyExists surface as
// TargetNotFound and UniqueKeyConflict; anything unexplained is an
// InvalidResource.
func classify(err error) (bundle.ErrorType, string) {
	var me *mappingError
	switch {
	case errors.As(err, &me):
		return me.errorType, me.message
	case errors.Is(err, errors.AlreadyExists):
		return bundle.UniqueKeyConflict, err.Error()
	case errors.Is(err, errors.NotFound):
		return bundle.TargetNotFound, err.Error()
	default:
		return bundle.InvalidResource, err.Error()
	}
}

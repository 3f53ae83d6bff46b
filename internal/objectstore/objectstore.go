// Package objectstore implements xsync.ObjectStore over local and remote
// blob backends. Objects are chunk payloads named by content address.
package objectstore

import (
	"fmt"

	"xsync-go/internal/xsync"
)

// ErrObjectNotFound is returned by Get for a name the store does not hold.
var ErrObjectNotFound = xsync.ErrObjectNotFound

// validateName rejects names that are not plain lowercase hex digests, so
// a name can never escape a directory or key prefix.
func validateName(name string) error {
	if len(name) < 8 || len(name) > 128 {
		return fmt.Errorf("%w: invalid object name %q: bad length", xsync.ErrValidation, name)
	}
	for _, c := range name {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: invalid object name %q: not a hex digest", xsync.ErrValidation, name)
		}
	}
	return nil
}

// deleteEach is DeleteMany for backends without a native batch delete.
func deleteEach(names []string, del func(string) error) map[string]error {
	failed := make(map[string]error)
	for _, name := range names {
		if err := del(name); err != nil {
			failed[name] = err
		}
	}
	return failed
}

package xsync

import "errors"

var (
	// ErrPathViolation means a path resolves outside the sync root.
	ErrPathViolation = errors.New("path outside sync root")

	// ErrIntegrityMismatch means a chunk, batch or file digest disagreed.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrTransferFailure covers network and stream errors during transfer.
	ErrTransferFailure = errors.New("transfer failed")

	// ErrAccountingFailure means the registry could not record an upload.
	ErrAccountingFailure = errors.New("chunk accounting failed")

	// ErrStorageDeletion means the object store refused a garbage delete.
	ErrStorageDeletion = errors.New("object store deletion failed")

	// ErrConfiguration is a setup problem detected before any transfer.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation means a request was malformed or inconsistent.
	ErrValidation = errors.New("validation failed")

	// ErrObjectNotFound is returned by ObjectStore.Get for unknown names.
	ErrObjectNotFound = errors.New("object not found")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
)

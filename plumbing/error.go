package plumbing

import "errors"

// Storage and lookup errors shared across the object store, pack reader,
// dir-cache and reference store. Each fallible operation in this module
// returns one of these (or a filesystem error propagated verbatim) rather
// than panicking.
var (
	ErrObjectNotFound  = errors.New("not_found")
	ErrInvalidObject   = errors.New("invalid_object")
	ErrObjectExists    = errors.New("object_exists")
	ErrInvalidObjectID = errors.New("invalid_object_id")

	ErrInvalidRef          = errors.New("invalid_ref")
	ErrInvalidName         = errors.New("invalid_name")
	ErrTargetNotFound      = errors.New("target_not_found")
	ErrTargetNotCommit     = errors.New("target_not_commit")
	ErrOldTargetNotMatched = errors.New("old_target_not_matched")
	ErrBareRepository      = errors.New("bare")
)

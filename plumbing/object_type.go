package plumbing

import "errors"

// ErrInvalidType is returned when an invalid object type is parsed or used.
var ErrInvalidType = errors.New("invalid object type")

// ObjectType identifies the kind of a git object.
type ObjectType int8

const (
	// InvalidObject represents an invalid or unknown object type.
	InvalidObject ObjectType = 0
	// CommitObject is a git commit.
	CommitObject ObjectType = 1
	// TreeObject is a git tree.
	TreeObject ObjectType = 2
	// BlobObject is a git blob.
	BlobObject ObjectType = 3
	// TagObject is a git annotated tag.
	TagObject ObjectType = 4
	// OFSDeltaObject is a pack entry encoded as a delta against an object
	// at a negative offset within the same pack.
	OFSDeltaObject ObjectType = 6
	// REFDeltaObject is a pack entry encoded as a delta against an object
	// identified by its Hash.
	REFDeltaObject ObjectType = 7
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the four addressable object types
// (blob, tree, commit, tag). Delta types are pack-internal encodings, not
// addressable object kinds.
func (t ObjectType) Valid() bool {
	switch t {
	case CommitObject, TreeObject, BlobObject, TagObject:
		return true
	default:
		return false
	}
}

// IsDelta reports whether t is one of the pack delta encodings.
func (t ObjectType) IsDelta() bool {
	return t == OFSDeltaObject || t == REFDeltaObject
}

// ParseObjectType parses the type token found in object and pack headers.
func ParseObjectType(s string) (ObjectType, error) {
	switch s {
	case "commit":
		return CommitObject, nil
	case "tree":
		return TreeObject, nil
	case "blob":
		return BlobObject, nil
	case "tag":
		return TagObject, nil
	case "ofs-delta":
		return OFSDeltaObject, nil
	case "ref-delta":
		return REFDeltaObject, nil
	default:
		return InvalidObject, ErrInvalidType
	}
}

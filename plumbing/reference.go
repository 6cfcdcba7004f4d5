package plumbing

import "strings"

// HEAD is the name of the ref that tracks the current branch.
const HEAD ReferenceName = "HEAD"

// refPrefix is where branch, tag and remote refs live on disk.
const (
	refPrefix       = "refs/"
	refHeadPrefix   = refPrefix + "heads/"
	refTagPrefix    = refPrefix + "tags/"
	refRemotePrefix = refPrefix + "remotes/"
	symrefPrefix    = "ref: "
)

// ReferenceName is the name of a git reference, e.g. "refs/heads/master".
type ReferenceName string

// String returns name as a plain string.
func (n ReferenceName) String() string {
	return string(n)
}

// IsBranch reports whether n lives under refs/heads/.
func (n ReferenceName) IsBranch() bool {
	return strings.HasPrefix(string(n), refHeadPrefix)
}

// IsTag reports whether n lives under refs/tags/.
func (n ReferenceName) IsTag() bool {
	return strings.HasPrefix(string(n), refTagPrefix)
}

// IsRemote reports whether n lives under refs/remotes/.
func (n ReferenceName) IsRemote() bool {
	return strings.HasPrefix(string(n), refRemotePrefix)
}

// Short returns n with its well-known namespace prefix (refs/heads/,
// refs/tags/, refs/remotes/ or refs/) removed, or the full name if it
// doesn't belong to one.
func (n ReferenceName) Short() string {
	s := string(n)
	res := s
	for _, prefix := range []string{refHeadPrefix, refTagPrefix, refRemotePrefix, refPrefix} {
		if strings.HasPrefix(s, prefix) {
			res = s[len(prefix):]
			break
		}
	}
	return res
}

// ReferenceType distinguishes hash references from symbolic ones.
type ReferenceType int8

const (
	InvalidReference ReferenceType = iota
	HashReference
	SymbolicReference
)

// Reference is a named pointer: either directly at an object Hash, or
// symbolically at another Reference's name.
type Reference struct {
	name     ReferenceName
	target   Hash
	link     ReferenceName
	followed ReferenceName
}

// NewHashReference creates a Reference pointing directly at an object.
func NewHashReference(name ReferenceName, target Hash) *Reference {
	return &Reference{name: name, target: target}
}

// NewSymbolicReference creates a Reference pointing at another ref name.
func NewSymbolicReference(name, target ReferenceName) *Reference {
	return &Reference{name: name, link: target}
}

// NewResolvedReference creates the result of following a symbolic chain:
// a hash reference that still remembers the terminal ref name it was
// resolved through, exposed via LinkTarget.
func NewResolvedReference(name ReferenceName, target Hash, followed ReferenceName) *Reference {
	return &Reference{name: name, target: target, followed: followed}
}

// Name returns the name under which this reference was looked up. For a
// symbolic reference resolved with follow, this is the name of the query,
// not of the terminal ref: see LinkTarget.
func (r *Reference) Name() ReferenceName { return r.name }

// Hash returns the object ID this reference points to. Zero if symbolic.
func (r *Reference) Hash() Hash { return r.target }

// Type reports whether r is a hash or symbolic reference.
func (r *Reference) Type() ReferenceType {
	if r == nil {
		return InvalidReference
	}
	if r.link != "" {
		return SymbolicReference
	}
	return HashReference
}

// Target returns the ref name a symbolic reference points to.
func (r *Reference) Target() ReferenceName { return r.link }

// LinkTarget returns the ultimate referent's name for a reference
// resolved through a symbolic chain, or the direct link for an
// unresolved symbolic reference. Empty for a plain hash reference.
func (r *Reference) LinkTarget() ReferenceName {
	if r.followed != "" {
		return r.followed
	}
	return r.link
}

// Strings returns the on-disk encoding pair used by loose ref files:
// (ref name, file content without trailing newline: the hex hash, or
// "ref: " followed by the target for a symbolic ref).
func (r *Reference) Strings() [2]string {
	var s [2]string
	s[0] = string(r.name)
	if r.Type() == SymbolicReference {
		s[1] = symrefPrefix + string(r.link)
	} else {
		s[1] = r.target.String()
	}
	return s
}

// IsValidReferenceName reports whether name satisfies the ref grammar: a
// slash-separated sequence of non-empty components, none of which starts
// or ends with '.', contains "..", contains control characters, space,
// '~', '^', ':', '?', '*', '[', '\\', or ends with ".lock". "HEAD" is
// always accepted as a bare exception to the slash-separated rule.
func IsValidReferenceName(name ReferenceName) bool {
	s := string(name)
	if s == string(HEAD) {
		return true
	}
	if s == "" {
		return false
	}

	components := strings.Split(s, "/")
	if len(components) < 2 {
		return false
	}

	for _, c := range components {
		if !validRefComponent(c) {
			return false
		}
	}
	return true
}

func validRefComponent(c string) bool {
	if c == "" {
		return false
	}
	if strings.HasPrefix(c, ".") || strings.HasSuffix(c, ".") {
		return false
	}
	if strings.Contains(c, "..") {
		return false
	}
	if strings.HasSuffix(c, ".lock") {
		return false
	}

	for _, r := range c {
		switch {
		case r < 0x20 || r == 0x7f:
			return false
		case r == ' ', r == '~', r == '^', r == ':', r == '?', r == '*', r == '[', r == '\\':
			return false
		}
	}
	return true
}

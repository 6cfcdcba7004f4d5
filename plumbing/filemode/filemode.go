// Package filemode defines git's tree entry modes and the path ordering
// rules used to keep trees and the dir-cache sorted consistently with the
// reference implementation.
package filemode

import (
	"bytes"
	"errors"
	"os"
	"strconv"
)

// FileMode is a tree entry's mode, one of the fixed set git recognises.
type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0040000
	Regular    FileMode = 0100644
	Deprecated FileMode = 0100664
	Executable FileMode = 0100755
	Symlink    FileMode = 0120000
	Submodule  FileMode = 0160000
)

// ErrUnknownMode is returned by New when the textual mode is not one of
// the modes git's tree object format accepts.
var ErrUnknownMode = errors.New("unsupported file mode")

// New parses the octal textual representation of a tree entry mode, as
// found in a tree object body. A leading zero digit (other than the mode
// itself) is rejected, matching git's strict tree parser.
func New(s string) (FileMode, error) {
	if len(s) > 1 && s[0] == '0' {
		return Empty, ErrUnknownMode
	}

	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return Empty, ErrUnknownMode
	}

	m := FileMode(n)
	if !m.Valid() {
		return Empty, ErrUnknownMode
	}
	return m, nil
}

// Valid reports whether m is one of the modes git's tree format accepts.
func (m FileMode) Valid() bool {
	switch m {
	case Dir, Regular, Executable, Symlink, Submodule:
		return true
	default:
		return false
	}
}

// IsMalformed reports whether m is the legacy 100664 mode some old git
// versions wrote. New rejects it, since it is not in the accepted set.
func (m FileMode) IsMalformed() bool {
	return m == Deprecated
}

// String returns the zero-padded six-digit octal form used in ls-tree
// output and index dumps.
func (m FileMode) String() string {
	s := strconv.FormatUint(uint64(m), 8)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

// Bytes returns the non-zero-padded octal form used in tree object bodies.
func (m FileMode) Bytes() []byte {
	return []byte(strconv.FormatUint(uint64(m), 8))
}

// IsRegular reports whether m is a (possibly executable) regular file.
func (m FileMode) IsRegular() bool {
	return m == Regular || m == Executable
}

// IsTree reports whether m denotes a sub-tree (directory) entry.
func (m FileMode) IsTree() bool {
	return m == Dir
}

// ToOSFileMode converts m to the closest os.FileMode, for callers that
// need to materialise a tree entry onto a real filesystem.
func (m FileMode) ToOSFileMode() (os.FileMode, error) {
	switch m {
	case Dir, Submodule:
		return os.ModeDir, nil
	case Symlink:
		return os.ModeSymlink, nil
	case Executable:
		return 0755, nil
	case Regular, Deprecated:
		return 0644, nil
	case Empty:
		return 0, nil
	default:
		return 0, ErrUnknownMode
	}
}

// extensionByte returns the byte each path is conceptually extended with
// before the lexicographic compare in Compare: '/' for a tree, NUL
// otherwise. A gitlink (submodule) is extended the same way as a tree so
// that it compares equal to a tree entry of the same name, matching the
// "D/F conflict" rule git's own index sort relies on.
func extensionByte(m FileMode) byte {
	if m == Dir || m == Submodule {
		return '/'
	}
	return 0
}

// Compare orders two (path, mode) pairs the way git's tree and dir-cache
// sort orders do: each path is compared as though extended with a mode
// dependent byte, so that "foo" (blob) sorts before "foo" (tree), which
// in turn sorts as if it were "foo/". A submodule compares equal to a
// tree at the same name.
func Compare(path1 []byte, mode1 FileMode, path2 []byte, mode2 FileMode) int {
	l := len(path1)
	if len(path2) < l {
		l = len(path2)
	}

	if c := bytes.Compare(path1[:l], path2[:l]); c != 0 {
		return c
	}

	switch {
	case len(path1) < len(path2):
		return compareByte(extensionByte(mode1), path2[l])
	case len(path1) > len(path2):
		return compareByte(path1[l], extensionByte(mode2))
	default:
		return compareByte(extensionByte(mode1), extensionByte(mode2))
	}
}

// CompareSameName orders path1 against path2, treating path1 as always
// belonging to a tree for the purpose of the extension tie-break. This is
// the comparator used when locating the insertion point for a new entry
// being added to an existing, sorted tree.
func CompareSameName(path1, path2 []byte, mode2 FileMode) int {
	return Compare(path1, Dir, path2, mode2)
}

func compareByte(a, b byte) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

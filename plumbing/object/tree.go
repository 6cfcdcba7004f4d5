package object

import (
	"bufio"
	"errors"
	"io"
	"sort"

	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/filemode"
)

// ErrMalformedTree is returned when a tree's raw body cannot be parsed.
var ErrMalformedTree = errors.New("malformed tree object")

// TreeEntry is one directory entry: a name, the mode it was recorded
// with, and the hash of the blob or tree it names.
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	Hash plumbing.Hash
}

// Tree is the decoded form of a git tree object: a flat, sorted list of
// directory entries. Sort order follows filemode.Compare, not a plain
// byte-wise compare of Name.
type Tree struct {
	Entries []TreeEntry
}

// NewTree builds a Tree from entries, sorting them into canonical order.
func NewTree(entries []TreeEntry) *Tree {
	t := &Tree{Entries: entries}
	t.sort()
	return t
}

func (t *Tree) sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return filemode.Compare([]byte(t.Entries[i].Name), t.Entries[i].Mode,
			[]byte(t.Entries[j].Name), t.Entries[j].Mode) < 0
	})
}

func (t *Tree) Type() plumbing.ObjectType { return plumbing.TreeObject }

// Entry looks up an entry by exact name, returning false if absent.
func (t *Tree) Entry(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

func (t *Tree) Decode(r io.Reader) error {
	br := bufio.NewReader(r)
	var entries []TreeEntry

	for {
		modeStr, err := br.ReadString(' ')
		if err == io.EOF {
			break
		}
		if err != nil {
			return ErrMalformedTree
		}
		modeStr = modeStr[:len(modeStr)-1]

		name, err := br.ReadString(0)
		if err != nil {
			return ErrMalformedTree
		}
		name = name[:len(name)-1]

		var raw [20]byte
		if _, err := io.ReadFull(br, raw[:]); err != nil {
			return ErrMalformedTree
		}

		mode, err := filemode.New(modeStr)
		if err != nil {
			return ErrMalformedTree
		}

		entry := TreeEntry{
			Name: name,
			Mode: mode,
			Hash: plumbing.Hash(raw),
		}
		if n := len(entries); n > 0 {
			prev := entries[n-1]
			if filemode.Compare([]byte(prev.Name), prev.Mode, []byte(entry.Name), entry.Mode) >= 0 {
				return ErrMalformedTree
			}
		}
		entries = append(entries, entry)
	}

	t.Entries = entries
	return nil
}

func (t *Tree) Encode(w io.Writer) error {
	t.sort()
	for _, e := range t.Entries {
		if _, err := w.Write(e.Mode.Bytes()); err != nil {
			return err
		}
		if _, err := w.Write([]byte{' '}); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.Name); err != nil {
			return err
		}
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
		raw := e.Hash.Bytes()
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
	return nil
}

package filesystem

import (
	"bufio"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/srchound/gitkernel/internal/atomicfile"
	"github.com/srchound/gitkernel/plumbing"
)

// ReferenceStorage is the on-disk reference store: loose ref files under
// the repository root, with an optional read-only packed-refs fallback
// consulted only when a loose ref is absent.
type ReferenceStorage struct {
	fs billy.Filesystem
}

// NewReferenceStorage returns a ReferenceStorage rooted at fs (the
// repository's .git directory).
func NewReferenceStorage(fs billy.Filesystem) *ReferenceStorage {
	return &ReferenceStorage{fs: fs}
}

// List returns every loose ref under refs/heads/, sorted by name.
// Packed-refs entries are not included.
func (s *ReferenceStorage) List() ([]*plumbing.Reference, error) {
	var out []*plumbing.Reference
	err := s.walk("refs/heads", func(name string) error {
		ref, err := s.readLoose(plumbing.ReferenceName(name))
		if err != nil {
			return err
		}
		out = append(out, ref)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out, nil
}

func (s *ReferenceStorage) walk(dir string, fn func(name string) error) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		full := dir + "/" + e.Name()
		if e.IsDir() {
			if err := s.walk(full, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(full); err != nil {
			return err
		}
	}
	return nil
}

// Get looks up name. If follow is true and the ref is symbolic, Get
// chases the ref: chain; the returned Reference's Name() is always the
// original query name and LinkTarget() is the terminal ref's name. A
// ref that links back to itself fails with ErrInvalidRef.
func (s *ReferenceStorage) Get(name plumbing.ReferenceName, follow bool) (*plumbing.Reference, error) {
	ref, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if !follow || ref.Type() != plumbing.SymbolicReference {
		return ref, nil
	}

	cur := ref
	terminal := cur.Target()
	for cur.Type() == plumbing.SymbolicReference {
		if cur.Target() == cur.Name() {
			return nil, plumbing.ErrInvalidRef
		}
		terminal = cur.Target()
		next, err := s.resolve(cur.Target())
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return plumbing.NewResolvedReference(name, cur.Hash(), terminal), nil
}

func (s *ReferenceStorage) resolve(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	ref, err := s.readLoose(name)
	if err == nil {
		return ref, nil
	}
	if err != plumbing.ErrObjectNotFound && err != errNotExist {
		return nil, err
	}

	packed, perr := s.readPacked(name)
	if perr == nil {
		return packed, nil
	}
	return nil, plumbing.ErrTargetNotFound
}

var errNotExist = os.ErrNotExist

func (s *ReferenceStorage) readLoose(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	f, err := s.fs.Open(string(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNotExist
		}
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return nil, plumbing.ErrInvalidRef
	}
	line = strings.TrimRight(line, "\n")

	return parseRefLine(name, line)
}

func parseRefLine(name plumbing.ReferenceName, line string) (*plumbing.Reference, error) {
	const symPrefix = "ref: "
	if strings.HasPrefix(line, symPrefix) {
		target := plumbing.ReferenceName(strings.TrimSpace(line[len(symPrefix):]))
		return plumbing.NewSymbolicReference(name, target), nil
	}

	if !plumbing.IsHash(line) {
		return nil, plumbing.ErrInvalidRef
	}
	return plumbing.NewHashReference(name, plumbing.NewHash(line)), nil
}

func (s *ReferenceStorage) readPacked(name plumbing.ReferenceName) (*plumbing.Reference, error) {
	f, err := s.fs.Open("packed-refs")
	if err != nil {
		return nil, plumbing.ErrTargetNotFound
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		if plumbing.ReferenceName(fields[1]) == name {
			return plumbing.NewHashReference(name, plumbing.NewHash(fields[0])), nil
		}
	}
	return nil, plumbing.ErrTargetNotFound
}

// PutOptions controls put's compare-and-swap semantics.
type PutOptions struct {
	Follow    bool
	OldTarget *string // nil = force, non-nil hex = CAS; must-not-exist is NewOnly
	NewOnly   bool    // the ":new" sentinel: must not currently exist
}

// Put writes ref, honoring PutOptions' CAS semantics, resolving through a
// symbolic chain first when Follow is set.
func (s *ReferenceStorage) Put(ref *plumbing.Reference, opts PutOptions) error {
	target := ref.Name()
	if opts.Follow {
		for {
			cur, err := s.readLoose(target)
			if err != nil || cur.Type() != plumbing.SymbolicReference {
				break
			}
			if cur.Target() == cur.Name() {
				return plumbing.ErrInvalidRef
			}
			target = cur.Target()
		}
	}

	current, err := s.resolve(target)
	exists := err == nil

	switch {
	case opts.NewOnly:
		if exists {
			return plumbing.ErrOldTargetNotMatched
		}
	case opts.OldTarget != nil:
		if !exists || current.Hash().String() != *opts.OldTarget {
			return plumbing.ErrOldTargetNotMatched
		}
	}

	toWrite := plumbing.NewHashReference(target, ref.Hash())
	if ref.Type() == plumbing.SymbolicReference {
		toWrite = plumbing.NewSymbolicReference(target, ref.Target())
	}

	return s.writeLoose(toWrite)
}

// writeLoose replaces the ref file via a temp file renamed into place,
// so the update takes effect atomically per ref.
func (s *ReferenceStorage) writeLoose(ref *plumbing.Reference) error {
	pair := ref.Strings()
	content := pair[1] + "\n"
	return atomicfile.Write(s.fs, string(ref.Name()), []byte(content))
}

// Delete removes name, honoring Put's OldTarget compare-and-swap; NewOnly
// is ignored. Deleting a ref that does not exist succeeds unless
// OldTarget is set.
func (s *ReferenceStorage) Delete(name plumbing.ReferenceName, opts PutOptions) error {
	current, err := s.resolve(name)
	exists := err == nil

	if opts.OldTarget != nil {
		if !exists || current.Hash().String() != *opts.OldTarget {
			return plumbing.ErrOldTargetNotMatched
		}
	}

	if !exists {
		return nil
	}

	err = s.fs.Remove(string(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

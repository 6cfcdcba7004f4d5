// Package memory implements the in-memory storage backend: objects keyed
// by ID, refs in a name-ordered tree, and a parsed config, all guarded by
// a mutex.
package memory

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/format/config"
)

// Storage is the in-memory backend: map id->Object, name-ordered ref
// tree, config. The ref tree keeps List iteration sorted by name without
// a sort pass per call.
type Storage struct {
	mu sync.RWMutex

	objects map[plumbing.Hash]storedObject
	refs    *treemap.Map
	config  *config.Config
}

type storedObject struct {
	typ     plumbing.ObjectType
	content []byte
}

// NewStorage returns an empty in-memory backend.
func NewStorage() *Storage {
	return &Storage{
		objects: make(map[plumbing.Hash]storedObject),
		refs:    treemap.NewWith(utils.StringComparator),
		config:  &config.Config{},
	}
}

func (s *Storage) Has(id plumbing.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[id]
	return ok
}

func (s *Storage) HasAll(ids []plumbing.Hash) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

func (s *Storage) Get(id plumbing.Hash) (plumbing.ObjectType, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[id]
	if !ok {
		return plumbing.InvalidObject, nil, plumbing.ErrObjectNotFound
	}
	content := make([]byte, len(o.content))
	copy(content, o.content)
	return o.typ, content, nil
}

func (s *Storage) Put(id plumbing.Hash, typ plumbing.ObjectType, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[id]; ok {
		return plumbing.ErrObjectExists
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	s.objects[id] = storedObject{typ: typ, content: stored}
	return nil
}

// ReadObject is an alias for Get, satisfying the same object-store
// contract storage/filesystem.ObjectStorage implements.
func (s *Storage) ReadObject(id plumbing.Hash) (plumbing.ObjectType, []byte, error) {
	return s.Get(id)
}

func (s *Storage) lookupRef(name plumbing.ReferenceName) (*plumbing.Reference, bool) {
	v, ok := s.refs.Get(string(name))
	if !ok {
		return nil, false
	}
	return v.(*plumbing.Reference), true
}

// ListRefs returns every ref under refs/heads/, in name order.
func (s *Storage) ListRefs() ([]*plumbing.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*plumbing.Reference
	it := s.refs.Iterator()
	for it.Next() {
		ref := it.Value().(*plumbing.Reference)
		if ref.Name().IsBranch() {
			out = append(out, ref)
		}
	}
	return out, nil
}

// GetRef looks up name, following a symbolic chain when follow is set.
// The returned reference's Name is the original query; LinkTarget is the
// terminal ref's name. A ref linking back to itself fails ErrInvalidRef.
func (s *Storage) GetRef(name plumbing.ReferenceName, follow bool) (*plumbing.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.lookupRef(name)
	if !ok {
		return nil, plumbing.ErrTargetNotFound
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
		next, ok := s.lookupRef(cur.Target())
		if !ok {
			return nil, plumbing.ErrTargetNotFound
		}
		cur = next
	}
	return plumbing.NewResolvedReference(name, cur.Hash(), terminal), nil
}

// PutOptions mirrors storage/filesystem.PutOptions; duplicated rather
// than shared so each backend's zero value behaves correctly on its own
// (the façade dispatches by variant, not by a shared interface embedding
// options types).
type PutOptions struct {
	Follow    bool
	OldTarget *string
	NewOnly   bool
}

func (s *Storage) PutRef(ref *plumbing.Reference, opts PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := ref.Name()
	if opts.Follow {
		for {
			cur, ok := s.lookupRef(target)
			if !ok || cur.Type() != plumbing.SymbolicReference {
				break
			}
			if cur.Target() == cur.Name() {
				return plumbing.ErrInvalidRef
			}
			target = cur.Target()
		}
	}

	current, exists := s.lookupRef(target)

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

	if ref.Type() == plumbing.SymbolicReference {
		s.refs.Put(string(target), plumbing.NewSymbolicReference(target, ref.Target()))
	} else {
		s.refs.Put(string(target), plumbing.NewHashReference(target, ref.Hash()))
	}
	return nil
}

func (s *Storage) DeleteRef(name plumbing.ReferenceName, opts PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.lookupRef(name)
	if opts.OldTarget != nil {
		if !exists || current.Hash().String() != *opts.OldTarget {
			return plumbing.ErrOldTargetNotMatched
		}
	}
	s.refs.Remove(string(name))
	return nil
}

// Config returns the backend's parsed config, for the façade's config
// operations to read and mutate directly (the in-memory backend has no
// file to re-read, so it skips the racy-git cache entirely).
func (s *Storage) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *Storage) SetConfig(c *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = c
}

// Package filesystem implements the on-disk storage backend: the loose
// object store and the loose/packed reference store, both rooted at a
// go-billy filesystem pointed at a repository's .git directory.
package filesystem

import (
	"bytes"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/format/objfile"
)

// ObjectStorage is the loose object half of the on-disk backend: content
// addressed files at objects/xx/yyyy....
type ObjectStorage struct {
	fs billy.Filesystem
}

// NewObjectStorage returns an ObjectStorage rooted at fs (fs's root is
// the repository's object database directory, i.e. the fs the caller
// passes in should already be chrooted to `.git`).
func NewObjectStorage(fs billy.Filesystem) *ObjectStorage {
	return &ObjectStorage{fs: fs}
}

func objectPath(id plumbing.Hash) string {
	hex := id.String()
	return path.Join("objects", hex[:2], hex[2:])
}

// Has reports whether id exists as a loose object.
func (s *ObjectStorage) Has(id plumbing.Hash) bool {
	_, err := s.fs.Stat(objectPath(id))
	return err == nil
}

// HasAll reports whether every id in ids exists as a loose object.
func (s *ObjectStorage) HasAll(ids []plumbing.Hash) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// Get inflates and parses the loose object at id, returning its type and
// a reader positioned at the start of its content. The caller must
// Close the returned reader.
func (s *ObjectStorage) Get(id plumbing.Hash) (plumbing.ObjectType, io.ReadCloser, error) {
	f, err := s.fs.Open(objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return plumbing.InvalidObject, nil, plumbing.ErrObjectNotFound
		}
		return plumbing.InvalidObject, nil, err
	}

	r, err := objfile.NewReader(f)
	if err != nil {
		f.Close()
		return plumbing.InvalidObject, nil, plumbing.ErrInvalidObject
	}

	typ, _ := r.Header()
	return typ, &objfileCloser{Reader: r, f: f}, nil
}

type objfileCloser struct {
	*objfile.Reader
	f billy.File
}

func (c *objfileCloser) Close() error {
	err1 := c.Reader.Close()
	err2 := c.f.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Put stores content (already known to hash to id, with the given type)
// as a new loose object. If the object already exists, it returns
// ErrObjectExists without overwriting the existing file.
func (s *ObjectStorage) Put(id plumbing.Hash, typ plumbing.ObjectType, content []byte) error {
	return s.PutReader(id, typ, int64(len(content)), bytes.NewReader(content))
}

// PutReader streams content into a new loose object without buffering it
// all in memory, composing the zlib stream directly with the output
// file. The target path is opened with exclusive create, so the loser of
// a concurrent Put race for the same id gets ErrObjectExists instead of
// overwriting the winner's file.
func (s *ObjectStorage) PutReader(id plumbing.Hash, typ plumbing.ObjectType, size int64, content io.Reader) error {
	p := objectPath(id)
	if err := s.fs.MkdirAll(path.Dir(p), 0755); err != nil {
		return err
	}

	f, err := s.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0444)
	if err != nil {
		if os.IsExist(err) {
			return plumbing.ErrObjectExists
		}
		return err
	}

	abort := func(err error) error {
		f.Close()
		s.fs.Remove(p)
		return err
	}

	w, err := objfile.NewWriter(f, typ, size)
	if err != nil {
		return abort(err)
	}
	if _, err := io.Copy(w, content); err != nil {
		return abort(err)
	}
	if err := w.Close(); err != nil {
		return abort(err)
	}
	return f.Close()
}

// ReadAll is a convenience used by callers (object decode, cat-file) that
// need the full content rather than a stream.
func ReadAll(s *ObjectStorage, id plumbing.Hash) (plumbing.ObjectType, []byte, error) {
	typ, r, err := s.Get(id)
	if err != nil {
		return plumbing.InvalidObject, nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return plumbing.InvalidObject, nil, err
	}
	return typ, buf.Bytes(), nil
}

// ReadObject is ReadAll bound to s, satisfying the object-store contract
// used by the working-tree actor and the repository façade, which need
// full content rather than a stream.
func (s *ObjectStorage) ReadObject(id plumbing.Hash) (plumbing.ObjectType, []byte, error) {
	return ReadAll(s, id)
}

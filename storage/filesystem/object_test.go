package filesystem

import (
	"io"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/suite"

	"github.com/srchound/gitkernel/plumbing"
)

type ObjectStorageSuite struct {
	suite.Suite
}

func TestObjectStorageSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ObjectStorageSuite))
}

func (s *ObjectStorageSuite) storage() *ObjectStorage {
	return NewObjectStorage(memfs.New())
}

func (s *ObjectStorageSuite) TestPutGetRoundTrip() {
	st := s.storage()
	content := []byte("test content\n")
	id := plumbing.ComputeHash(plumbing.BlobObject, content)

	s.False(st.Has(id))
	s.NoError(st.Put(id, plumbing.BlobObject, content))
	s.True(st.Has(id))

	typ, r, err := st.Get(id)
	s.NoError(err)
	defer r.Close()

	s.Equal(plumbing.BlobObject, typ)
	got, err := io.ReadAll(r)
	s.NoError(err)
	s.Equal(content, got)
}

func (s *ObjectStorageSuite) TestPutExistingReturnsObjectExists() {
	st := s.storage()
	content := []byte("dup")
	id := plumbing.ComputeHash(plumbing.BlobObject, content)

	s.NoError(st.Put(id, plumbing.BlobObject, content))
	s.ErrorIs(st.Put(id, plumbing.BlobObject, content), plumbing.ErrObjectExists)
}

func (s *ObjectStorageSuite) TestGetMissing() {
	st := s.storage()
	_, _, err := st.Get(plumbing.NewHash("d670460b4b4aece5915caf5c68d12f560a9fe3e4"))
	s.ErrorIs(err, plumbing.ErrObjectNotFound)
}

func (s *ObjectStorageSuite) TestFanoutLayout() {
	st := s.storage()
	content := []byte("test content\n")
	id := plumbing.ComputeHash(plumbing.BlobObject, content)
	s.NoError(st.Put(id, plumbing.BlobObject, content))

	// objects/d6/70460b...
	hex := id.String()
	_, err := st.fs.Stat("objects/" + hex[:2] + "/" + hex[2:])
	s.NoError(err)
}

func (s *ObjectStorageSuite) TestPutReaderStreams() {
	st := s.storage()
	content := "streamed content that never sits in an intermediate buffer"
	id := plumbing.ComputeHash(plumbing.BlobObject, []byte(content))

	err := st.PutReader(id, plumbing.BlobObject, int64(len(content)), strings.NewReader(content))
	s.NoError(err)

	typ, got, err := ReadAll(st, id)
	s.NoError(err)
	s.Equal(plumbing.BlobObject, typ)
	s.Equal([]byte(content), got)
}

func (s *ObjectStorageSuite) TestHasAll() {
	st := s.storage()
	a := plumbing.ComputeHash(plumbing.BlobObject, []byte("a"))
	b := plumbing.ComputeHash(plumbing.BlobObject, []byte("b"))

	s.NoError(st.Put(a, plumbing.BlobObject, []byte("a")))
	s.False(st.HasAll([]plumbing.Hash{a, b}))

	s.NoError(st.Put(b, plumbing.BlobObject, []byte("b")))
	s.True(st.HasAll([]plumbing.Hash{a, b}))
}

func (s *ObjectStorageSuite) TestReadObject() {
	st := s.storage()
	content := []byte("via ReadObject")
	id := plumbing.ComputeHash(plumbing.BlobObject, content)
	s.NoError(st.Put(id, plumbing.BlobObject, content))

	typ, got, err := st.ReadObject(id)
	s.NoError(err)
	s.Equal(plumbing.BlobObject, typ)
	s.Equal(content, got)
}

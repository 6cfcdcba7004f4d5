package plumbing

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type HashSuite struct {
	suite.Suite
}

func TestHashSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(HashSuite))
}

func (s *HashSuite) TestIsZero() {
	hash := NewHash("foo")
	s.True(hash.IsZero())

	hash = NewHash("8ab686eafeb1f44702738c8b0f24f2567c36da6d")
	s.False(hash.IsZero())
}

func (s *HashSuite) TestIsHash() {
	s.True(IsHash("8ab686eafeb1f44702738c8b0f24f2567c36da6d"))
	s.False(IsHash("foo"))
	s.False(IsHash("8ab686eafeb1f44702738c8b0f24f2567c36da6"))
	s.False(IsHash("zab686eafeb1f44702738c8b0f24f2567c36da6d"))
}

func (s *HashSuite) TestString() {
	h := NewHash("8AB686EAFEB1F44702738C8B0F24F2567C36DA6D")
	s.Equal("8ab686eafeb1f44702738c8b0f24f2567c36da6d", h.String())
}

func (s *HashSuite) TestHashesSort() {
	i := []Hash{
		NewHash("2222222222222222222222222222222222222222"),
		NewHash("1111111111111111111111111111111111111111"),
	}

	HashesSort(i)

	s.Equal(NewHash("1111111111111111111111111111111111111111"), i[0])
	s.Equal(NewHash("2222222222222222222222222222222222222222"), i[1])
}

func (s *HashSuite) TestCompare() {
	a := NewHash("1111111111111111111111111111111111111111")
	b := NewHash("2222222222222222222222222222222222222222")
	s.Equal(-1, a.Compare(b[:]))
	s.Equal(1, b.Compare(a[:]))
	s.Equal(0, a.Compare(a[:]))
}

type HasherSuite struct {
	suite.Suite
}

func TestHasherSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(HasherSuite))
}

func (s *HasherSuite) TestComputeBlobHash() {
	// git hash-object --stdin <<< "test content"
	id := ComputeHash(BlobObject, []byte("test content\n"))
	s.Equal("d670460b4b4aece5915caf5c68d12f560a9fe3e4", id.String())
}

func (s *HasherSuite) TestComputeEmptyBlobHash() {
	id := ComputeHash(BlobObject, nil)
	s.Equal("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", id.String())
}

func (s *HasherSuite) TestHasherStreaming() {
	h := NewHasher(BlobObject, 13)
	h.Write([]byte("test "))
	h.Write([]byte("content\n"))
	s.Equal("d670460b4b4aece5915caf5c68d12f560a9fe3e4", h.Sum().String())
}

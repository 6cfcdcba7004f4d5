package cache

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srchound/gitkernel/plumbing"
)

type LRUSuite struct {
	suite.Suite
}

func TestLRUSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(LRUSuite))
}

func (s *LRUSuite) TestGetPut() {
	c := NewLRU(KiByte)

	_, _, ok := c.Get(1)
	s.False(ok)

	c.Put(1, plumbing.BlobObject, []byte("content"))
	typ, content, ok := c.Get(1)
	s.True(ok)
	s.Equal(plumbing.BlobObject, typ)
	s.Equal([]byte("content"), content)
}

func (s *LRUSuite) TestEvictsLeastRecentlyUsed() {
	c := NewLRU(30)

	c.Put(1, plumbing.BlobObject, make([]byte, 10))
	c.Put(2, plumbing.BlobObject, make([]byte, 10))
	c.Put(3, plumbing.BlobObject, make([]byte, 10))

	// touch 1 so 2 is the least recently used
	c.Get(1)
	c.Put(4, plumbing.BlobObject, make([]byte, 10))

	_, _, ok := c.Get(2)
	s.False(ok)
	_, _, ok = c.Get(1)
	s.True(ok)
}

func (s *LRUSuite) TestOversizedEntryStaysAlone() {
	c := NewLRU(10)
	c.Put(1, plumbing.BlobObject, make([]byte, 100))

	_, _, ok := c.Get(1)
	s.True(ok)
}

func (s *LRUSuite) TestReplaceSameOffset() {
	c := NewLRU(KiByte)
	c.Put(1, plumbing.BlobObject, []byte("old"))
	c.Put(1, plumbing.TreeObject, []byte("new"))

	typ, content, ok := c.Get(1)
	s.True(ok)
	s.Equal(plumbing.TreeObject, typ)
	s.Equal([]byte("new"), content)
}

func (s *LRUSuite) TestClear() {
	c := NewLRU(KiByte)
	c.Put(1, plumbing.BlobObject, []byte("x"))
	c.Clear()

	_, _, ok := c.Get(1)
	s.False(ok)
}

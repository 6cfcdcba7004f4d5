package atomicfile

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/suite"
)

type AtomicFileSuite struct {
	suite.Suite
}

func TestAtomicFileSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(AtomicFileSuite))
}

func (s *AtomicFileSuite) TestWriteCreates() {
	fs := memfs.New()
	s.NoError(Write(fs, "config", []byte("content")))

	data, err := util.ReadFile(fs, "config")
	s.NoError(err)
	s.Equal("content", string(data))
}

func (s *AtomicFileSuite) TestWriteReplaces() {
	fs := memfs.New()
	s.NoError(Write(fs, "refs/heads/master", []byte("old\n")))
	s.NoError(Write(fs, "refs/heads/master", []byte("new\n")))

	data, err := util.ReadFile(fs, "refs/heads/master")
	s.NoError(err)
	s.Equal("new\n", string(data))
}

func (s *AtomicFileSuite) TestNoTempFileLeftBehind() {
	fs := memfs.New()
	s.NoError(Write(fs, "dir/file", []byte("x")))

	entries, err := fs.ReadDir("dir")
	s.NoError(err)
	s.Len(entries, 1)
	s.Equal("file", entries[0].Name())
}

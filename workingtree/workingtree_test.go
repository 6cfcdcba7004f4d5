package workingtree

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/suite"

	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/filemode"
	"github.com/srchound/gitkernel/plumbing/format/index"
	"github.com/srchound/gitkernel/storage/memory"
)

type WorkingTreeSuite struct {
	suite.Suite

	objects *memory.Storage
	wt      *WorkingTree
}

func TestWorkingTreeSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(WorkingTreeSuite))
}

func (s *WorkingTreeSuite) SetupTest() {
	s.objects = memory.NewStorage()
	s.wt = New(memfs.New(), "index", s.objects)
}

func (s *WorkingTreeSuite) TearDownTest() {
	s.wt.Close()
}

func (s *WorkingTreeSuite) entry(name, hash string, stage index.Stage) index.Entry {
	return index.Entry{
		Mode:  filemode.Regular,
		Hash:  plumbing.NewHash(hash),
		Stage: stage,
		Name:  name,
	}
}

const blobHash = "18832d35117ef2f013c4009f5b2128dfaeff354f"

func (s *WorkingTreeSuite) TestSnapshotOfMissingIndexIsEmpty() {
	idx, err := s.wt.Snapshot(context.Background())
	s.NoError(err)
	s.Empty(idx.Entries)
	s.Equal(uint32(2), idx.Version)
}

func (s *WorkingTreeSuite) TestUpdateAndSnapshot() {
	err := s.wt.Update(context.Background(), []index.Entry{s.entry("hello.txt", blobHash, 0)}, nil, 0)
	s.NoError(err)

	idx, err := s.wt.Snapshot(context.Background())
	s.NoError(err)
	s.Len(idx.Entries, 1)
	s.Equal("hello.txt", idx.Entries[0].Name)
	s.Equal(blobHash, idx.Entries[0].Hash.String())
	s.Equal(index.Stage(0), idx.Entries[0].Stage)
}

func (s *WorkingTreeSuite) TestUpdateRemoves() {
	s.NoError(s.wt.Update(context.Background(), []index.Entry{
		s.entry("a.txt", blobHash, 0),
		s.entry("b.txt", blobHash, 0),
	}, nil, 0))

	s.NoError(s.wt.Update(context.Background(), nil, []string{"a.txt"}, index.StageAll))

	idx, err := s.wt.Snapshot(context.Background())
	s.NoError(err)
	s.Len(idx.Entries, 1)
	s.Equal("b.txt", idx.Entries[0].Name)
}

func (s *WorkingTreeSuite) TestReset() {
	s.NoError(s.wt.Update(context.Background(), []index.Entry{s.entry("a.txt", blobHash, 0)}, nil, 0))
	s.NoError(s.wt.Reset(context.Background()))

	idx, err := s.wt.Snapshot(context.Background())
	s.NoError(err)
	s.Empty(idx.Entries)
}

func (s *WorkingTreeSuite) TestWriteTreeKnownHash() {
	s.NoError(s.wt.Update(context.Background(), []index.Entry{s.entry("hello.txt", blobHash, 0)}, nil, 0))

	id, err := s.wt.WriteTree(context.Background(), WriteTreeOptions{MissingOK: true})
	s.NoError(err)
	// matches git write-tree --missing-ok for the same single entry
	s.Equal("deaec688e84302d4a0b98a1b78a434be1b22ca02", id.String())

	typ, _, err := s.objects.Get(id)
	s.NoError(err)
	s.Equal(plumbing.TreeObject, typ)
}

func (s *WorkingTreeSuite) TestWriteTreeNested() {
	blob := []byte("test content\n")
	blobID := plumbing.ComputeHash(plumbing.BlobObject, blob)
	s.NoError(s.objects.Put(blobID, plumbing.BlobObject, blob))

	s.NoError(s.wt.Update(context.Background(), []index.Entry{
		s.entry("a.txt", blobID.String(), 0),
		s.entry("dir/b.txt", blobID.String(), 0),
	}, nil, 0))

	id, err := s.wt.WriteTree(context.Background(), WriteTreeOptions{})
	s.NoError(err)
	s.Equal("ff8d6aaa491c01cb0946a3837a11e1619491a424", id.String())

	// the sub-tree was written too
	s.True(s.objects.Has(plumbing.NewHash("ea2cb62ff3d0851e74ca24d96b49cbc396cc7487")))
}

func (s *WorkingTreeSuite) TestWriteTreeRefusesUnmergedIndex() {
	s.NoError(s.wt.Update(context.Background(), []index.Entry{
		s.entry("conflict.txt", blobHash, 1),
		s.entry("conflict.txt", blobHash, 2),
	}, nil, 0))

	_, err := s.wt.WriteTree(context.Background(), WriteTreeOptions{MissingOK: true})
	s.ErrorIs(err, ErrIncompleteMerge)
}

func (s *WorkingTreeSuite) TestWriteTreeMissingObjects() {
	s.NoError(s.wt.Update(context.Background(), []index.Entry{s.entry("hello.txt", blobHash, 0)}, nil, 0))

	_, err := s.wt.WriteTree(context.Background(), WriteTreeOptions{})
	s.ErrorIs(err, ErrObjectsMissing)
}

func (s *WorkingTreeSuite) TestWriteTreePrefix() {
	s.NoError(s.wt.Update(context.Background(), []index.Entry{
		s.entry("dir/b.txt", "d670460b4b4aece5915caf5c68d12f560a9fe3e4", 0),
	}, nil, 0))

	id, err := s.wt.WriteTree(context.Background(), WriteTreeOptions{MissingOK: true, Prefix: "dir"})
	s.NoError(err)
	s.Equal("ea2cb62ff3d0851e74ca24d96b49cbc396cc7487", id.String())
}

func (s *WorkingTreeSuite) TestWriteTreePrefixNotFound() {
	s.NoError(s.wt.Update(context.Background(), []index.Entry{s.entry("a.txt", blobHash, 0)}, nil, 0))

	_, err := s.wt.WriteTree(context.Background(), WriteTreeOptions{MissingOK: true, Prefix: "nope"})
	s.ErrorIs(err, ErrPrefixNotFound)
}

func (s *WorkingTreeSuite) TestReadTreeInvertsWriteTree() {
	blob := []byte("test content\n")
	blobID := plumbing.ComputeHash(plumbing.BlobObject, blob)
	s.NoError(s.objects.Put(blobID, plumbing.BlobObject, blob))

	s.NoError(s.wt.Update(context.Background(), []index.Entry{
		s.entry("a.txt", blobID.String(), 0),
		s.entry("dir/b.txt", blobID.String(), 0),
	}, nil, 0))

	id, err := s.wt.WriteTree(context.Background(), WriteTreeOptions{})
	s.NoError(err)

	s.NoError(s.wt.Reset(context.Background()))
	s.NoError(s.wt.ReadTree(context.Background(), id, ReadTreeOptions{}))

	idx, err := s.wt.Snapshot(context.Background())
	s.NoError(err)
	s.Len(idx.Entries, 2)
	s.Equal("a.txt", idx.Entries[0].Name)
	s.Equal("dir/b.txt", idx.Entries[1].Name)
	for _, e := range idx.Entries {
		s.Equal(index.Stage(0), e.Stage)
		s.Equal(blobID, e.Hash)
	}
}

func (s *WorkingTreeSuite) TestReadTreeMissingWithoutMissingOK() {
	err := s.wt.ReadTree(context.Background(), plumbing.NewHash(blobHash), ReadTreeOptions{})
	s.ErrorIs(err, plumbing.ErrObjectNotFound)
}

package objfile

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srchound/gitkernel/plumbing"
)

type ObjfileSuite struct {
	suite.Suite
}

func TestObjfileSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ObjfileSuite))
}

func deflated(raw []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()
	return buf.Bytes()
}

func (s *ObjfileSuite) TestRoundTrip() {
	content := []byte("test content\n")
	var buf bytes.Buffer

	w, err := NewWriter(&buf, plumbing.BlobObject, int64(len(content)))
	s.NoError(err)
	_, err = w.Write(content)
	s.NoError(err)
	s.NoError(w.Close())

	r, err := NewReader(&buf)
	s.NoError(err)
	defer r.Close()

	typ, size := r.Header()
	s.Equal(plumbing.BlobObject, typ)
	s.Equal(int64(len(content)), size)

	got, err := io.ReadAll(r)
	s.NoError(err)
	s.Equal(content, got)
}

func (s *ObjfileSuite) TestEmptyObject() {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, plumbing.BlobObject, 0)
	s.NoError(err)
	s.NoError(w.Close())

	r, err := NewReader(&buf)
	s.NoError(err)
	defer r.Close()

	typ, size := r.Header()
	s.Equal(plumbing.BlobObject, typ)
	s.Zero(size)
}

func (s *ObjfileSuite) TestReadHeaderRejectsBadType() {
	raw := deflated([]byte("bogus 3\x00abc"))
	_, err := NewReader(bytes.NewReader(raw))
	s.ErrorIs(err, ErrMalformedHeader)
}

func (s *ObjfileSuite) TestReadHeaderRejectsDeltaType() {
	raw := deflated([]byte("ofs-delta 3\x00abc"))
	_, err := NewReader(bytes.NewReader(raw))
	s.ErrorIs(err, ErrMalformedHeader)
}

func (s *ObjfileSuite) TestReadHeaderRejectsBadSize() {
	raw := deflated([]byte("blob x\x00abc"))
	_, err := NewReader(bytes.NewReader(raw))
	s.ErrorIs(err, ErrMalformedHeader)
}

func (s *ObjfileSuite) TestReadHeaderRejectsNegativeSize() {
	raw := deflated([]byte("blob -1\x00"))
	_, err := NewReader(bytes.NewReader(raw))
	s.ErrorIs(err, ErrMalformedHeader)
}

func (s *ObjfileSuite) TestReadTruncatedContent() {
	raw := deflated([]byte("blob 10\x00short"))
	r, err := NewReader(bytes.NewReader(raw))
	s.NoError(err)
	defer r.Close()

	_, err = io.ReadAll(r)
	s.ErrorIs(err, ErrSizeMismatch)
}

func (s *ObjfileSuite) TestWriteOverflow() {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, plumbing.BlobObject, 3)
	s.NoError(err)

	_, err = w.Write([]byte("too long"))
	s.ErrorIs(err, ErrSizeMismatch)
}

func (s *ObjfileSuite) TestCloseShortContent() {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, plumbing.BlobObject, 10)
	s.NoError(err)
	_, err = w.Write([]byte("short"))
	s.NoError(err)

	s.ErrorIs(w.Close(), ErrSizeMismatch)
}

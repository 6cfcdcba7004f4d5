package object

import (
	"io"

	"github.com/srchound/gitkernel/plumbing"
)

// Blob is an opaque sequence of bytes: file content with no structure
// imposed by the object model.
type Blob struct {
	content []byte
}

// NewBlob builds a Blob from raw file content.
func NewBlob(content []byte) *Blob {
	return &Blob{content: content}
}

func (b *Blob) Type() plumbing.ObjectType { return plumbing.BlobObject }

func (b *Blob) Decode(r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.content = content
	return nil
}

func (b *Blob) Encode(w io.Writer) error {
	_, err := w.Write(b.content)
	return err
}

// Size returns the content length.
func (b *Blob) Size() int64 { return int64(len(b.content)) }

// Reader returns a reader over the blob's content.
func (b *Blob) Reader() io.Reader {
	return &byteReader{content: b.content}
}

type byteReader struct {
	content []byte
	pos     int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.content) {
		return 0, io.EOF
	}
	n := copy(p, r.content[r.pos:])
	r.pos += n
	return n, nil
}

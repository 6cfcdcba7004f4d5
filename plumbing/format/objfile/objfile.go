// Package objfile reads and writes the on-disk encoding of a single loose
// object: zlib-deflated "{type} {size}\0{content}", with no trailing hash
// of its own (the object's identity is its own content hash, computed by
// the caller via plumbing.Hasher).
package objfile

import (
	"bufio"
	"compress/zlib"
	"errors"
	"io"
	"strconv"

	"github.com/srchound/gitkernel/plumbing"
)

// ErrMalformedHeader is returned when the "{type} {size}\0" header cannot
// be parsed.
var ErrMalformedHeader = errors.New("malformed object header")

// ErrSizeMismatch is returned by Reader when the stream ends before the
// header's size has been read, and by Writer when it is given more or
// fewer content bytes than the size it was created with. Reader stops at
// the header's size and does not look for bytes beyond it.
var ErrSizeMismatch = errors.New("content size does not match header")

// Reader reads a single loose object from its zlib-compressed on-disk
// encoding.
type Reader struct {
	zr   io.ReadCloser
	r    *io.LimitedReader
	typ  plumbing.ObjectType
	size int64
}

// NewReader parses the header and returns a Reader positioned at the
// start of the object's content. The caller must call Close when done.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := zlib.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}

	// One buffered reader serves both the header parse and the content
	// reads that follow; a separate buffer for the header would swallow
	// content bytes it read ahead.
	br := bufio.NewReader(zr)
	typ, size, err := readHeader(br)
	if err != nil {
		zr.Close()
		return nil, err
	}

	return &Reader{
		zr:   zr,
		r:    &io.LimitedReader{R: br, N: size},
		typ:  typ,
		size: size,
	}, nil
}

func readHeader(br *bufio.Reader) (plumbing.ObjectType, int64, error) {
	typ, err := br.ReadString(' ')
	if err != nil {
		return plumbing.InvalidObject, 0, ErrMalformedHeader
	}
	typ = typ[:len(typ)-1]

	sizeStr, err := br.ReadString(0)
	if err != nil {
		return plumbing.InvalidObject, 0, ErrMalformedHeader
	}
	sizeStr = sizeStr[:len(sizeStr)-1]

	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || size < 0 {
		return plumbing.InvalidObject, 0, ErrMalformedHeader
	}

	t, err := plumbing.ParseObjectType(typ)
	if err != nil || !t.Valid() {
		return plumbing.InvalidObject, 0, ErrMalformedHeader
	}

	return t, size, nil
}

// Header returns the object's declared type and content size.
func (r *Reader) Header() (plumbing.ObjectType, int64) {
	return r.typ, r.size
}

// Read reads object content. It returns io.EOF once exactly Header's size
// bytes have been returned; reading fewer bytes than advertised before the
// underlying stream ends is reported as ErrSizeMismatch.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err == io.EOF && r.r.N > 0 {
		return n, ErrSizeMismatch
	}
	return n, err
}

// Close releases the underlying zlib stream.
func (r *Reader) Close() error {
	return r.zr.Close()
}

// Writer writes a single loose object in its zlib-compressed on-disk
// encoding: the "{type} {size}\0" header followed by exactly size bytes
// of content.
type Writer struct {
	w       io.WriteCloser
	written int64
	size    int64
	closed  bool
}

// NewWriter writes the header for an object of type t and the given
// content size, and returns a Writer ready to stream exactly size bytes
// of content through Write.
func NewWriter(w io.Writer, t plumbing.ObjectType, size int64) (*Writer, error) {
	zw := zlib.NewWriter(w)

	header := t.String() + " " + strconv.FormatInt(size, 10) + "\x00"
	if _, err := zw.Write([]byte(header)); err != nil {
		zw.Close()
		return nil, err
	}

	return &Writer{w: zw, size: size}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if w.written+int64(len(p)) > w.size {
		return 0, ErrSizeMismatch
	}
	n, err := w.w.Write(p)
	w.written += int64(n)
	return n, err
}

// Close flushes the zlib stream. It is an error to Close before exactly
// size bytes have been written.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.written != w.size {
		return ErrSizeMismatch
	}
	return w.w.Close()
}

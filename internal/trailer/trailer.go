// Package trailer implements the trailing-hash device shared by the
// dir-cache and pack index readers/writers: a stream wrapper that hashes
// everything passed through it and, in read mode, withholds the final 20
// bytes of the underlying stream as a SHA-1 trailer to be verified once
// the caller has consumed all of the content.
package trailer

import (
	"bytes"
	"errors"
	"hash"
	"io"

	"github.com/pjbgf/sha1cd"
)

// Size is the length in bytes of the trailing SHA-1 checksum.
const Size = 20

var (
	// ErrTooSoon is returned by Verify when the content has not yet been
	// fully consumed (Read has not returned io.EOF).
	ErrTooSoon = errors.New("not_sha_hash_device: verify called before content was fully read")
	// ErrAlreadyCalled is returned by a second call to Verify.
	ErrAlreadyCalled = errors.New("not_sha_hash_device: verify already called")
	// ErrChecksumMismatch is returned by Verify when the computed digest
	// does not match the trailing 20 bytes of the stream.
	ErrChecksumMismatch = errors.New("invalid checksum")
	// ErrShortStream is returned when the underlying stream is shorter
	// than the 20-byte trailer it is required to carry.
	ErrShortStream = errors.New("stream shorter than trailing hash")
	// ErrLimitExceeded is returned when MaxBytes is set and exceeded.
	ErrLimitExceeded = errors.New("byte limit exceeded")
)

const verifyStateReading = 0
const verifyStateExhausted = 1
const verifyStateDone = 2

// Reader exposes all bytes of the wrapped stream except the last Size,
// hashing exactly the bytes it hands back to the caller. Verify must be
// called exactly once, after Read has returned io.EOF.
type Reader struct {
	// MaxBytes, if non-zero, aborts the read with ErrLimitExceeded once
	// more than that many content bytes have been returned to the caller. It
	// exists to let tests inject truncation faults.
	MaxBytes int64

	r     io.Reader
	h     hash.Hash
	buf   bytes.Buffer
	eof   bool
	state int
	trail [Size]byte
	total int64
}

// NewReader returns a Reader wrapping r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: sha1cd.New()}
}

func (r *Reader) fill() error {
	if r.eof {
		return nil
	}

	chunk := make([]byte, 32*1024)
	for r.buf.Len() <= Size {
		n, err := r.r.Read(chunk)
		if n > 0 {
			r.buf.Write(chunk[:n])
		}
		if err != nil {
			if err == io.EOF {
				r.eof = true
				return nil
			}
			return err
		}
	}
	return nil
}

// Read implements io.Reader, returning content bytes only (never the
// trailer). On the call where the underlying stream is exhausted, it
// stashes the trailer and returns io.EOF.
func (r *Reader) Read(p []byte) (int, error) {
	if r.state != verifyStateReading {
		return 0, io.EOF
	}

	if err := r.fill(); err != nil {
		return 0, err
	}

	avail := r.buf.Len() - Size
	if avail <= 0 {
		if !r.eof {
			// fill() guarantees buf.Len() > Size unless eof was reached.
			return 0, io.ErrNoProgress
		}
		if r.buf.Len() != Size {
			return 0, ErrShortStream
		}
		copy(r.trail[:], r.buf.Bytes())
		r.buf.Reset()
		r.state = verifyStateExhausted
		return 0, io.EOF
	}

	if len(p) > avail {
		p = p[:avail]
	}
	n, _ := r.buf.Read(p)
	r.h.Write(p[:n])
	r.total += int64(n)
	if r.MaxBytes != 0 && r.total > r.MaxBytes {
		return n, ErrLimitExceeded
	}
	return n, nil
}

// Verify compares the running digest over all content bytes returned by
// Read against the 20-byte trailer. It must be called exactly once, after
// Read has returned io.EOF.
func (r *Reader) Verify() error {
	switch r.state {
	case verifyStateReading:
		return ErrTooSoon
	case verifyStateDone:
		return ErrAlreadyCalled
	}

	r.state = verifyStateDone
	sum := r.h.Sum(nil)
	if !bytes.Equal(sum, r.trail[:]) {
		return ErrChecksumMismatch
	}
	return nil
}

// Writer hashes every byte written to it and, on Close, appends the
// trailing 20-byte SHA-1 digest to the underlying writer.
type Writer struct {
	// MaxBytes, if non-zero, makes Write return ErrLimitExceeded once
	// more than that many bytes have been written.
	MaxBytes int64

	w     io.Writer
	h     hash.Hash
	total int64
}

// NewWriter returns a Writer wrapping w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, h: sha1cd.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		w.h.Write(p[:n])
		w.total += int64(n)
	}
	if err != nil {
		return n, err
	}
	if w.MaxBytes != 0 && w.total > w.MaxBytes {
		return n, ErrLimitExceeded
	}
	return n, nil
}

// Sum returns the digest of everything written so far, without closing.
func (w *Writer) Sum() []byte {
	return w.h.Sum(nil)
}

// Close appends the trailing SHA-1 checksum to the underlying writer.
func (w *Writer) Close() error {
	_, err := w.w.Write(w.h.Sum(nil))
	return err
}

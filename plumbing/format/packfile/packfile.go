// Package packfile reads pack files: the variable-length object header,
// direct object inflate, and ofs-delta/ref-delta resolution against a
// companion idxfile.Index.
package packfile

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/srchound/gitkernel/cache"
	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/format/idxfile"
)

// ErrInvalidPack is returned for a malformed pack header, object header,
// or delta instruction stream.
var ErrInvalidPack = errors.New("invalid_object")

const packMagic = "PACK"

// Pack reads objects out of a .pack file given its parsed .idx.
type Pack struct {
	ra    io.ReaderAt
	index *idxfile.Index
	cache cache.Object
}

// NewPack wraps an already-open pack file and its decoded index. cache
// may be nil, in which case delta base materialization is never cached
// across calls.
func NewPack(ra io.ReaderAt, index *idxfile.Index, objCache cache.Object) *Pack {
	return &Pack{ra: ra, index: index, cache: objCache}
}

// Has reports whether id is present in the pack's index.
func (p *Pack) Has(id plumbing.Hash) bool {
	return p.index.Has(id)
}

// Entries yields every object ID in the pack, in index (ID-ascending) order.
func (p *Pack) Entries() []plumbing.Hash {
	out := make([]plumbing.Hash, len(p.index.Entries))
	for i, e := range p.index.Entries {
		out[i] = e.Hash
	}
	return out
}

// Get resolves id, including following any ofs-delta/ref-delta chain, and
// returns its final type and reconstructed content.
func (p *Pack) Get(id plumbing.Hash) (plumbing.ObjectType, []byte, error) {
	e, ok := p.index.Find(id)
	if !ok {
		return plumbing.InvalidObject, nil, plumbing.ErrObjectNotFound
	}
	return p.getAtOffset(e.Offset, map[uint64]bool{})
}

func (p *Pack) getAtOffset(offset uint64, visiting map[uint64]bool) (plumbing.ObjectType, []byte, error) {
	if c := p.cache; c != nil {
		if typ, content, ok := c.Get(offset); ok {
			return typ, content, nil
		}
	}

	if visiting[offset] {
		return plumbing.InvalidObject, nil, fmt.Errorf("%w: delta cycle at offset %d", ErrInvalidPack, offset)
	}
	visiting[offset] = true

	typ, size, headerLen, err := readObjectHeader(p.ra, offset)
	if err != nil {
		return plumbing.InvalidObject, nil, err
	}

	switch typ {
	case plumbing.CommitObject, plumbing.TreeObject, plumbing.BlobObject, plumbing.TagObject:
		content, err := inflateAt(p.ra, offset+uint64(headerLen), size)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		p.store(offset, typ, content)
		return typ, content, nil

	case plumbing.OFSDeltaObject:
		negOffset, n, err := readOffsetDelta(p.ra, offset+uint64(headerLen))
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		baseOffset := offset - negOffset
		baseType, baseContent, err := p.getAtOffset(baseOffset, visiting)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		deltaRaw, err := inflateAt(p.ra, offset+uint64(headerLen)+uint64(n), size)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		content, err := applyDelta(baseContent, deltaRaw)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		p.store(offset, baseType, content)
		return baseType, content, nil

	case plumbing.REFDeltaObject:
		var rawBase [20]byte
		if err := readAt(p.ra, offset+uint64(headerLen), rawBase[:]); err != nil {
			return plumbing.InvalidObject, nil, err
		}
		baseID := plumbing.Hash(rawBase)
		baseEntry, ok := p.index.Find(baseID)
		if !ok {
			return plumbing.InvalidObject, nil, plumbing.ErrObjectNotFound
		}
		baseType, baseContent, err := p.getAtOffset(baseEntry.Offset, visiting)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		deltaRaw, err := inflateAt(p.ra, offset+uint64(headerLen)+20, size)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		content, err := applyDelta(baseContent, deltaRaw)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		p.store(offset, baseType, content)
		return baseType, content, nil

	default:
		return plumbing.InvalidObject, nil, fmt.Errorf("%w: unknown type %d", ErrInvalidPack, typ)
	}
}

func (p *Pack) store(offset uint64, typ plumbing.ObjectType, content []byte) {
	if p.cache != nil {
		p.cache.Put(offset, typ, content)
	}
}

func readAt(ra io.ReaderAt, offset uint64, buf []byte) error {
	_, err := ra.ReadAt(buf, int64(offset))
	return err
}

// readObjectHeader decodes the variable-length type+size header used by
// every pack entry: the low 4 bits of the first byte are the low bits of
// size, bits 4-6 are the type, bit 7 is a continuation flag; subsequent
// bytes contribute 7 more size bits each, low bit first.
func readObjectHeader(ra io.ReaderAt, offset uint64) (plumbing.ObjectType, int64, int, error) {
	var b [1]byte
	n := 0
	if err := readAt(ra, offset, b[:]); err != nil {
		return plumbing.InvalidObject, 0, 0, err
	}
	n++

	typ := plumbing.ObjectType((b[0] >> 4) & 0x7)
	size := int64(b[0] & 0x0f)
	shift := uint(4)

	for b[0]&0x80 != 0 {
		if err := readAt(ra, offset+uint64(n), b[:]); err != nil {
			return plumbing.InvalidObject, 0, 0, err
		}
		n++
		size |= int64(b[0]&0x7f) << shift
		shift += 7
	}

	return typ, size, n, nil
}

// readOffsetDelta decodes the ofs-delta variable-length negative offset
// encoding: base-128, most significant byte first, with a +1 adjustment
// folded into every continuation byte (git's MSB-first varint variant).
func readOffsetDelta(ra io.ReaderAt, offset uint64) (uint64, int, error) {
	var b [1]byte
	if err := readAt(ra, offset, b[:]); err != nil {
		return 0, 0, err
	}
	n := 1
	result := uint64(b[0] & 0x7f)
	for b[0]&0x80 != 0 {
		if err := readAt(ra, offset+uint64(n), b[:]); err != nil {
			return 0, 0, err
		}
		n++
		result = ((result + 1) << 7) | uint64(b[0]&0x7f)
	}
	return result, n, nil
}

func inflateAt(ra io.ReaderAt, offset uint64, size int64) ([]byte, error) {
	zr, err := zlib.NewReader(&offsetReader{ra: ra, offset: int64(offset)})
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	buf := make([]byte, size)
	if _, err := io.ReadFull(zr, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPack, err)
	}
	return buf, nil
}

type offsetReader struct {
	ra     io.ReaderAt
	offset int64
}

func (r *offsetReader) Read(p []byte) (int, error) {
	n, err := r.ra.ReadAt(p, r.offset)
	r.offset += int64(n)
	return n, err
}

// applyDelta reconstructs content by replaying a delta instruction
// stream against base: a header pair of variable-length "source size" and
// "target size" integers (7 bits per byte, low bit first, continuation in
// the high bit), followed by copy (0x80-flagged, offset+length operand
// bytes) and insert (literal run) opcodes.
func applyDelta(base, delta []byte) ([]byte, error) {
	r := bytes.NewReader(delta)

	srcSize, err := readDeltaSize(r)
	if err != nil {
		return nil, err
	}
	if srcSize != uint64(len(base)) {
		return nil, fmt.Errorf("%w: delta base size mismatch", ErrInvalidPack)
	}

	targetSize, err := readDeltaSize(r)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, targetSize)
	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		if op&0x80 != 0 {
			var cpOffset, cpLen uint64
			for i := uint(0); i < 4; i++ {
				if op&(1<<i) != 0 {
					b, err := r.ReadByte()
					if err != nil {
						return nil, err
					}
					cpOffset |= uint64(b) << (8 * i)
				}
			}
			for i := uint(0); i < 3; i++ {
				if op&(1<<(4+i)) != 0 {
					b, err := r.ReadByte()
					if err != nil {
						return nil, err
					}
					cpLen |= uint64(b) << (8 * i)
				}
			}
			if cpLen == 0 {
				cpLen = 0x10000
			}
			if cpOffset+cpLen > uint64(len(base)) {
				return nil, fmt.Errorf("%w: delta copy out of range", ErrInvalidPack)
			}
			out = append(out, base[cpOffset:cpOffset+cpLen]...)
		} else if op != 0 {
			lit := make([]byte, op)
			if _, err := io.ReadFull(r, lit); err != nil {
				return nil, err
			}
			out = append(out, lit...)
		} else {
			return nil, fmt.Errorf("%w: reserved delta opcode 0", ErrInvalidPack)
		}
	}

	if uint64(len(out)) != targetSize {
		return nil, fmt.Errorf("%w: delta target size mismatch", ErrInvalidPack)
	}
	return out, nil
}

func readDeltaSize(r *bytes.Reader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	return result, nil
}

// ReadHeader validates the pack file's 12-byte header ("PACK", version,
// object count) and returns the declared object count.
func ReadHeader(r io.Reader) (version, count uint32, err error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, fmt.Errorf("%w: short pack header", ErrInvalidPack)
	}
	if string(hdr[:4]) != packMagic {
		return 0, 0, fmt.Errorf("%w: bad pack magic", ErrInvalidPack)
	}
	version = binary.BigEndian.Uint32(hdr[4:8])
	count = binary.BigEndian.Uint32(hdr[8:12])
	return version, count, nil
}

// Package idxfile reads pack index files, versions 1 and 2: the fanout
// table used to bound a binary search, the sorted object ID table, and
// the offset table(s) used to seek into the companion .pack file.
package idxfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"sort"

	"github.com/srchound/gitkernel/plumbing"
)

// ErrInvalidIndex is returned when the fanout table is not monotonic, or
// does not sum to the declared entry count, or the header is malformed.
var ErrInvalidIndex = errors.New("invalid_index")

const (
	idxV2Magic = "\xfftOc"
)

// Entry is one object's location within the pack.
type Entry struct {
	Hash   plumbing.Hash
	Offset uint64
	CRC32  uint32 // zero for v1, which carries no CRC table
}

// Index is a fully loaded pack index: every entry, sorted by Hash.
type Index struct {
	Version uint32
	Entries []Entry
}

// Decode reads a complete v1 or v2 index from r.
func Decode(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	peek, err := br.Peek(4)
	if err != nil {
		return nil, ErrInvalidIndex
	}

	if string(peek) == idxV2Magic {
		return decodeV2(br)
	}
	return decodeV1(br)
}

func readFanout(r io.Reader) ([256]uint32, int, error) {
	var fanout [256]uint32
	var raw [256 * 4]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return fanout, 0, ErrInvalidIndex
	}
	prev := uint32(0)
	for i := 0; i < 256; i++ {
		v := binary.BigEndian.Uint32(raw[i*4 : i*4+4])
		if v < prev {
			return fanout, 0, ErrInvalidIndex
		}
		fanout[i] = v
		prev = v
	}
	return fanout, int(fanout[255]), nil
}

func decodeV1(r io.Reader) (*Index, error) {
	_, count, err := readFanout(r)
	if err != nil {
		return nil, err
	}

	idx := &Index{Version: 1, Entries: make([]Entry, count)}
	for i := 0; i < count; i++ {
		var buf [4 + 20]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, ErrInvalidIndex
		}
		offset := binary.BigEndian.Uint32(buf[:4])
		var h [20]byte
		copy(h[:], buf[4:])
		idx.Entries[i] = Entry{Hash: plumbing.Hash(h), Offset: uint64(offset)}
	}

	if !sort.SliceIsSorted(idx.Entries, func(i, j int) bool {
		return idx.Entries[i].Hash.Compare(idx.Entries[j].Hash[:]) < 0
	}) {
		return nil, ErrInvalidIndex
	}

	return idx, nil
}

func decodeV2(r io.Reader) (*Index, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, ErrInvalidIndex
	}
	if string(hdr[:4]) != idxV2Magic {
		return nil, ErrInvalidIndex
	}
	version := binary.BigEndian.Uint32(hdr[4:8])
	if version != 2 {
		return nil, ErrInvalidIndex
	}

	_, count, err := readFanout(r)
	if err != nil {
		return nil, err
	}

	hashes := make([][20]byte, count)
	for i := range hashes {
		if _, err := io.ReadFull(r, hashes[i][:]); err != nil {
			return nil, ErrInvalidIndex
		}
	}

	crcs := make([]uint32, count)
	for i := range crcs {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, ErrInvalidIndex
		}
		crcs[i] = binary.BigEndian.Uint32(b[:])
	}

	small := make([]uint32, count)
	var needLarge int
	for i := range small {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, ErrInvalidIndex
		}
		small[i] = binary.BigEndian.Uint32(b[:])
		if small[i]&0x80000000 != 0 {
			idx := int(small[i] &^ 0x80000000)
			if idx+1 > needLarge {
				needLarge = idx + 1
			}
		}
	}

	large := make([]uint64, needLarge)
	for i := range large {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, ErrInvalidIndex
		}
		large[i] = binary.BigEndian.Uint64(b[:])
	}

	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		var offset uint64
		if small[i]&0x80000000 != 0 {
			offset = large[int(small[i]&^0x80000000)]
		} else {
			offset = uint64(small[i])
		}
		entries[i] = Entry{Hash: plumbing.Hash(hashes[i]), Offset: offset, CRC32: crcs[i]}
	}

	return &Index{Version: 2, Entries: entries}, nil
}

// Find performs a binary search over all of idx.Entries for h, returning
// the matching Entry. ok is false if h is absent. The fanout table is
// validated on decode but not kept, so it does not narrow the search.
func (idx *Index) Find(h plumbing.Hash) (Entry, bool) {
	i := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].Hash.Compare(h[:]) >= 0
	})
	if i < len(idx.Entries) && idx.Entries[i].Hash == h {
		return idx.Entries[i], true
	}
	return Entry{}, false
}

// Has reports whether h is present in the index.
func (idx *Index) Has(h plumbing.Hash) bool {
	_, ok := idx.Find(h)
	return ok
}

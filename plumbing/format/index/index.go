// Package index implements the binary dir-cache/index file format
// version 2: the staging area between the working tree and commits.
// Decode and Encode operate on the content bytes
// sandwiched between the trailing SHA-1 (handled by internal/trailer)
// and the caller.
package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/filemode"
)

const (
	magic         = "DIRC"
	version2      = 2
	maxEntries    = 100000
	fixedEntryLen = 40 + 20 + 2 // timestamps/dev/ino/mode/uid/gid/size + id + flags
)

var (
	// ErrUnsupportedVersion is returned for any dir-cache version other
	// than 2.
	ErrUnsupportedVersion = errors.New("unsupported_version")
	// ErrTooManyEntries is returned when the declared entry count
	// exceeds maxEntries.
	ErrTooManyEntries = errors.New("too_many_entries")
	// ErrInvalidEntry is returned for a structurally invalid entry: bad
	// magic, a zero object ID, or a malformed padded name.
	ErrInvalidEntry = errors.New("invalid_entry")
)

const (
	flagAssumeValid = 1 << 15
	flagExtended    = 1 << 14
	flagStageShift  = 12
	flagStageMask   = 0x3
	flagNameMask    = 0x0FFF
	flagNameMax     = 0x0FFF
)

// Stage is a dir-cache entry's merge state: 0 normal, 1 base, 2 ours, 3
// theirs.
type Stage uint8

// Entry is one dir-cache record.
type Entry struct {
	CTime       uint32
	CTimeNanos  uint32
	MTime       uint32
	MTimeNanos  uint32
	Dev         uint32
	Inode       uint32
	Mode        filemode.FileMode
	UID         uint32
	GID         uint32
	Size        uint32
	Hash        plumbing.Hash
	Stage       Stage
	AssumeValid bool
	Extended    bool
	Name        string
}

// Index is the decoded dir-cache: version 2, entries sorted by (name
// ascending, stage ascending).
type Index struct {
	Version uint32
	Entries []Entry
}

func key(e Entry) (string, Stage) { return e.Name, e.Stage }

// Sort orders entries by (name, stage) ascending, the invariant dir-cache
// readers and writers both rely on.
func (idx *Index) Sort() {
	sort.Slice(idx.Entries, func(i, j int) bool {
		a, b := idx.Entries[i], idx.Entries[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Stage < b.Stage
	})
}

// FullyMerged reports whether every entry is at stage 0.
func (idx *Index) FullyMerged() bool {
	for _, e := range idx.Entries {
		if e.Stage != 0 {
			return false
		}
	}
	return true
}

// Add merges entries into idx, replacing any existing entry that shares
// its (name, stage) with an incoming one, then re-sorts.
func (idx *Index) Add(entries []Entry) {
	byKey := make(map[string]int, len(idx.Entries))
	for i, e := range idx.Entries {
		n, s := key(e)
		byKey[fmt.Sprintf("%s\x00%d", n, s)] = i
	}

	for _, e := range entries {
		n, s := key(e)
		k := fmt.Sprintf("%s\x00%d", n, s)
		if i, ok := byKey[k]; ok {
			idx.Entries[i] = e
			continue
		}
		idx.Entries = append(idx.Entries, e)
		byKey[k] = len(idx.Entries) - 1
	}
	idx.Sort()
}

// StageAll is the sentinel passed to Remove to match any stage.
const StageAll Stage = 255

// Remove deletes entries matching (path, stage) for each target; a
// target with stage StageAll matches any stage at that path.
func (idx *Index) Remove(paths []string, stage Stage) {
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}

	out := idx.Entries[:0]
	for _, e := range idx.Entries {
		if drop[e.Name] && (stage == StageAll || e.Stage == stage) {
			continue
		}
		out = append(out, e)
	}
	idx.Entries = out
}

// Decode parses dir-cache content (magic through the last entry, NOT
// including the trailing SHA-1, which the caller strips via
// internal/trailer before calling this).
func Decode(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var hdr [12]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrInvalidEntry)
	}
	if string(hdr[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidEntry)
	}

	version := binary.BigEndian.Uint32(hdr[4:8])
	if version != version2 {
		return nil, ErrUnsupportedVersion
	}

	count := binary.BigEndian.Uint32(hdr[8:12])
	if count > maxEntries {
		return nil, ErrTooManyEntries
	}

	idx := &Index{Version: version}
	for i := uint32(0); i < count; i++ {
		e, consumed, err := decodeEntry(br)
		if err != nil {
			return nil, err
		}
		_ = consumed
		idx.Entries = append(idx.Entries, e)
	}

	return idx, nil
}

func decodeEntry(br *bufio.Reader) (Entry, int, error) {
	var fixed [62]byte
	if _, err := io.ReadFull(br, fixed[:]); err != nil {
		return Entry{}, 0, fmt.Errorf("%w: short entry", ErrInvalidEntry)
	}

	var e Entry
	e.CTime = binary.BigEndian.Uint32(fixed[0:4])
	e.CTimeNanos = binary.BigEndian.Uint32(fixed[4:8])
	e.MTime = binary.BigEndian.Uint32(fixed[8:12])
	e.MTimeNanos = binary.BigEndian.Uint32(fixed[12:16])
	e.Dev = binary.BigEndian.Uint32(fixed[16:20])
	e.Inode = binary.BigEndian.Uint32(fixed[20:24])
	e.Mode = filemode.FileMode(binary.BigEndian.Uint32(fixed[24:28]))
	e.UID = binary.BigEndian.Uint32(fixed[28:32])
	e.GID = binary.BigEndian.Uint32(fixed[32:36])
	e.Size = binary.BigEndian.Uint32(fixed[36:40])

	var rawHash [20]byte
	copy(rawHash[:], fixed[40:60])
	e.Hash = plumbing.Hash(rawHash)
	if e.Hash.IsZero() {
		return Entry{}, 0, fmt.Errorf("%w: zero object id", ErrInvalidEntry)
	}

	flags := binary.BigEndian.Uint16(fixed[60:62])
	e.AssumeValid = flags&flagAssumeValid != 0
	e.Extended = flags&flagExtended != 0
	e.Stage = Stage((flags >> flagStageShift) & flagStageMask)
	nameLen := int(flags & flagNameMask)

	consumed := 62

	var nameBuf bytes.Buffer
	if nameLen < flagNameMax {
		for i := 0; i < nameLen; i++ {
			b, err := br.ReadByte()
			if err != nil {
				return Entry{}, 0, fmt.Errorf("%w: short name", ErrInvalidEntry)
			}
			nameBuf.WriteByte(b)
			consumed++
		}
	} else {
		for {
			b, err := br.ReadByte()
			if err != nil {
				return Entry{}, 0, fmt.Errorf("%w: unterminated name", ErrInvalidEntry)
			}
			if b == 0 {
				// the NUL just read is the first pad byte; account for
				// it below instead of here.
				if err := br.UnreadByte(); err != nil {
					return Entry{}, 0, err
				}
				break
			}
			consumed++
			nameBuf.WriteByte(b)
		}
	}
	e.Name = nameBuf.String()

	padTo := ((consumed + 8) / 8) * 8
	pad := padTo - consumed
	for i := 0; i < pad; i++ {
		b, err := br.ReadByte()
		if err != nil {
			return Entry{}, 0, fmt.Errorf("%w: short padding", ErrInvalidEntry)
		}
		if b != 0 {
			return Entry{}, 0, fmt.Errorf("%w: non-zero padding", ErrInvalidEntry)
		}
		consumed++
	}

	return e, consumed, nil
}

// Encode renders idx (version must be 2) to dir-cache content, NOT
// including the trailing SHA-1 (the caller appends that via
// internal/trailer). idx must be structurally valid: entries sorted,
// unique (name, stage), and none may set AssumeValid-incompatible
// extended-only flags (skip_worktree/intent_to_add require version >= 3,
// which this encoder never emits).
func Encode(w io.Writer, idx *Index) error {
	if idx.Version != version2 {
		return ErrUnsupportedVersion
	}
	if err := validate(idx); err != nil {
		return err
	}

	var hdr [12]byte
	copy(hdr[0:4], magic)
	binary.BigEndian.PutUint32(hdr[4:8], version2)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(idx.Entries)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	for _, e := range idx.Entries {
		if err := encodeEntry(w, e); err != nil {
			return err
		}
	}
	return nil
}

func validate(idx *Index) error {
	seen := make(map[string]bool, len(idx.Entries))
	for i, e := range idx.Entries {
		if e.Hash.IsZero() {
			return fmt.Errorf("%w: entry %q has zero object id", ErrInvalidEntry, e.Name)
		}
		k := fmt.Sprintf("%s\x00%d", e.Name, e.Stage)
		if seen[k] {
			return fmt.Errorf("%w: duplicate (name, stage) %q/%d", ErrInvalidEntry, e.Name, e.Stage)
		}
		seen[k] = true
		if i > 0 {
			prev := idx.Entries[i-1]
			if prev.Name > e.Name || (prev.Name == e.Name && prev.Stage > e.Stage) {
				return fmt.Errorf("%w: entries not sorted", ErrInvalidEntry)
			}
		}
	}
	return nil
}

func encodeEntry(w io.Writer, e Entry) error {
	var fixed [62]byte
	binary.BigEndian.PutUint32(fixed[0:4], e.CTime)
	binary.BigEndian.PutUint32(fixed[4:8], e.CTimeNanos)
	binary.BigEndian.PutUint32(fixed[8:12], e.MTime)
	binary.BigEndian.PutUint32(fixed[12:16], e.MTimeNanos)
	binary.BigEndian.PutUint32(fixed[16:20], e.Dev)
	binary.BigEndian.PutUint32(fixed[20:24], e.Inode)
	binary.BigEndian.PutUint32(fixed[24:28], uint32(e.Mode))
	binary.BigEndian.PutUint32(fixed[28:32], e.UID)
	binary.BigEndian.PutUint32(fixed[32:36], e.GID)
	binary.BigEndian.PutUint32(fixed[36:40], e.Size)

	rawHash := e.Hash.Bytes()
	copy(fixed[40:60], rawHash)

	nameLen := len(e.Name)
	flagLen := nameLen
	if flagLen > flagNameMax {
		flagLen = flagNameMax
	}
	var flags uint16
	if e.AssumeValid {
		flags |= flagAssumeValid
	}
	if e.Extended {
		flags |= flagExtended
	}
	flags |= uint16(e.Stage&flagStageMask) << flagStageShift
	flags |= uint16(flagLen)
	binary.BigEndian.PutUint16(fixed[60:62], flags)

	if _, err := w.Write(fixed[:]); err != nil {
		return err
	}
	if _, err := io.WriteString(w, e.Name); err != nil {
		return err
	}

	consumed := 62 + nameLen
	padTo := ((consumed + 8) / 8) * 8
	pad := make([]byte, padTo-consumed)
	_, err := w.Write(pad)
	return err
}

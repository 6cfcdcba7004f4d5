package index

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/filemode"
)

type IndexSuite struct {
	suite.Suite
}

func TestIndexSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(IndexSuite))
}

func entry(name string, stage Stage) Entry {
	return Entry{
		Mode:  filemode.Regular,
		Hash:  plumbing.NewHash("18832d35117ef2f013c4009f5b2128dfaeff354f"),
		Stage: stage,
		Name:  name,
	}
}

func (s *IndexSuite) TestEncodeEmpty() {
	idx := &Index{Version: 2}
	var buf bytes.Buffer
	s.NoError(Encode(&buf, idx))

	expect := []byte{'D', 'I', 'R', 'C', 0, 0, 0, 2, 0, 0, 0, 0}
	s.Equal(expect, buf.Bytes())
}

func (s *IndexSuite) TestRoundTripIsByteExact() {
	idx := &Index{Version: 2, Entries: []Entry{
		{
			CTime: 1000, CTimeNanos: 1, MTime: 2000, MTimeNanos: 2,
			Dev: 3, Inode: 4, Mode: filemode.Regular, UID: 5, GID: 6, Size: 13,
			Hash: plumbing.NewHash("d670460b4b4aece5915caf5c68d12f560a9fe3e4"),
			Name: "hello.txt",
		},
		entry("zebra/deep/path.go", 0),
	}}
	idx.Sort()

	var first bytes.Buffer
	s.NoError(Encode(&first, idx))

	decoded, err := Decode(bytes.NewReader(first.Bytes()))
	s.NoError(err)
	s.Equal(idx.Entries, decoded.Entries)

	var second bytes.Buffer
	s.NoError(Encode(&second, decoded))
	s.Equal(first.Bytes(), second.Bytes())
}

func (s *IndexSuite) TestEntryPaddingIsMultipleOfEight() {
	// 62 fixed bytes + name, padded with 1-8 NULs to a multiple of 8.
	for _, name := range []string{"a", "ab", "abcdef", "exactly8", "longer-name.txt"} {
		idx := &Index{Version: 2, Entries: []Entry{entry(name, 0)}}
		var buf bytes.Buffer
		s.NoError(Encode(&buf, idx))

		entryLen := buf.Len() - 12
		s.Zero(entryLen%8, name)
		s.Greater(entryLen, 62+len(name), name)
	}
}

func (s *IndexSuite) TestDecodeRejectsBadMagic() {
	_, err := Decode(strings.NewReader("JUNK\x00\x00\x00\x02\x00\x00\x00\x00"))
	s.ErrorIs(err, ErrInvalidEntry)
}

func (s *IndexSuite) TestDecodeRejectsVersion3() {
	var buf bytes.Buffer
	buf.WriteString(magic)
	binary.Write(&buf, binary.BigEndian, uint32(3))
	binary.Write(&buf, binary.BigEndian, uint32(0))

	_, err := Decode(&buf)
	s.ErrorIs(err, ErrUnsupportedVersion)
}

func (s *IndexSuite) TestDecodeRejectsTooManyEntries() {
	var buf bytes.Buffer
	buf.WriteString(magic)
	binary.Write(&buf, binary.BigEndian, uint32(2))
	binary.Write(&buf, binary.BigEndian, uint32(100001))

	_, err := Decode(&buf)
	s.ErrorIs(err, ErrTooManyEntries)
}

func (s *IndexSuite) TestDecodeRejectsZeroObjectID() {
	idx := &Index{Version: 2, Entries: []Entry{entry("a.txt", 0)}}
	var buf bytes.Buffer
	s.NoError(Encode(&buf, idx))

	raw := buf.Bytes()
	// zero out the hash field of the first (only) entry
	for i := 12 + 40; i < 12+60; i++ {
		raw[i] = 0
	}

	_, err := Decode(bytes.NewReader(raw))
	s.ErrorIs(err, ErrInvalidEntry)
}

func (s *IndexSuite) TestEncodeRejectsUnsorted() {
	idx := &Index{Version: 2, Entries: []Entry{entry("b.txt", 0), entry("a.txt", 0)}}
	var buf bytes.Buffer
	s.ErrorIs(Encode(&buf, idx), ErrInvalidEntry)
}

func (s *IndexSuite) TestEncodeRejectsDuplicateNameStage() {
	idx := &Index{Version: 2, Entries: []Entry{entry("a.txt", 0), entry("a.txt", 0)}}
	var buf bytes.Buffer
	s.ErrorIs(Encode(&buf, idx), ErrInvalidEntry)
}

func (s *IndexSuite) TestStagesOrderWithinName() {
	idx := &Index{Version: 2, Entries: []Entry{
		entry("a.txt", 2),
		entry("a.txt", 1),
		entry("a.txt", 3),
	}}
	idx.Sort()

	s.Equal(Stage(1), idx.Entries[0].Stage)
	s.Equal(Stage(2), idx.Entries[1].Stage)
	s.Equal(Stage(3), idx.Entries[2].Stage)
	s.False(idx.FullyMerged())

	var buf bytes.Buffer
	s.NoError(Encode(&buf, idx))

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	s.NoError(err)
	s.Equal(idx.Entries, decoded.Entries)
}

func (s *IndexSuite) TestFlagsRoundTrip() {
	e := entry("flagged.txt", 0)
	e.AssumeValid = true
	idx := &Index{Version: 2, Entries: []Entry{e}}

	var buf bytes.Buffer
	s.NoError(Encode(&buf, idx))

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	s.NoError(err)
	s.True(decoded.Entries[0].AssumeValid)
	s.False(decoded.Entries[0].Extended)
}

func (s *IndexSuite) TestLongNameUsesNulScan() {
	name := strings.Repeat("d/", 2100) + "leaf" // > 4095 bytes
	s.Greater(len(name), 4095)

	idx := &Index{Version: 2, Entries: []Entry{entry(name, 0)}}
	var buf bytes.Buffer
	s.NoError(Encode(&buf, idx))

	// the flag field carries the 0xFFF sentinel
	flags := binary.BigEndian.Uint16(buf.Bytes()[12+60 : 12+62])
	s.Equal(uint16(0x0FFF), flags&0x0FFF)

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	s.NoError(err)
	s.Equal(name, decoded.Entries[0].Name)
}

func (s *IndexSuite) TestNameLengthExactly4095() {
	name := strings.Repeat("x", 4095)
	idx := &Index{Version: 2, Entries: []Entry{entry(name, 0)}}

	var buf bytes.Buffer
	s.NoError(Encode(&buf, idx))

	flags := binary.BigEndian.Uint16(buf.Bytes()[12+60 : 12+62])
	s.Equal(uint16(0x0FFF), flags&0x0FFF)

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	s.NoError(err)
	s.Equal(name, decoded.Entries[0].Name)
}

func (s *IndexSuite) TestAddReplacesCollidingKey() {
	idx := &Index{Version: 2, Entries: []Entry{entry("a.txt", 0)}}

	replacement := entry("a.txt", 0)
	replacement.Size = 99
	idx.Add([]Entry{replacement, entry("b.txt", 0)})

	s.Len(idx.Entries, 2)
	s.Equal(uint32(99), idx.Entries[0].Size)
	s.Equal("b.txt", idx.Entries[1].Name)
}

func (s *IndexSuite) TestRemoveByStage() {
	idx := &Index{Version: 2, Entries: []Entry{
		entry("a.txt", 1),
		entry("a.txt", 2),
		entry("b.txt", 0),
	}}

	idx.Remove([]string{"a.txt"}, 1)
	s.Len(idx.Entries, 2)
	s.Equal(Stage(2), idx.Entries[0].Stage)
}

func (s *IndexSuite) TestRemoveAllStages() {
	idx := &Index{Version: 2, Entries: []Entry{
		entry("a.txt", 1),
		entry("a.txt", 2),
		entry("b.txt", 0),
	}}

	idx.Remove([]string{"a.txt"}, StageAll)
	s.Len(idx.Entries, 1)
	s.Equal("b.txt", idx.Entries[0].Name)
}

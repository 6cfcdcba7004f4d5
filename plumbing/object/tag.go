package object

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/srchound/gitkernel/plumbing"
)

// ErrMalformedTag is returned when a tag's raw body cannot be parsed, or
// when one of the required object/type/tag headers is absent.
var ErrMalformedTag = errors.New("invalid_tag")

// Tag is the decoded form of a git annotated tag object. Tagger is
// optional; a tag without one decodes with HasTagger false and encodes
// without a tagger line.
type Tag struct {
	Target       plumbing.Hash
	TargetType   plumbing.ObjectType
	Name         string
	Tagger       Signature
	HasTagger    bool
	Message      string
	PGPSignature string
}

func (t *Tag) Type() plumbing.ObjectType { return plumbing.TagObject }

// Valid reports whether the tag passes the stricter post-parse check: the
// liberal tagger parse accepts anomalous lines as long as they carry an
// <email>, but a tag whose tagger ended up with an empty name is not
// considered valid.
func (t *Tag) Valid() bool {
	if t.Name == "" || !t.TargetType.Valid() {
		return false
	}
	if t.HasTagger && t.Tagger.Name == "" {
		return false
	}
	return true
}

func (t *Tag) Decode(r io.Reader) error {
	br := bufio.NewReader(r)

	var haveObject, haveType, haveTag bool
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if line == "\n" || (line == "" && err == io.EOF) {
			break
		}
		line = trimNewline(line)

		switch {
		case hasPrefixField(line, "object "):
			t.Target = plumbing.NewHash(line[len("object "):])
			haveObject = true
		case hasPrefixField(line, "type "):
			ot, perr := plumbing.ParseObjectType(line[len("type "):])
			if perr != nil {
				return ErrMalformedTag
			}
			t.TargetType = ot
			haveType = true
		case hasPrefixField(line, "tag "):
			t.Name = line[len("tag "):]
			haveTag = true
		case hasPrefixField(line, "tagger "):
			t.Tagger.Decode([]byte(line[len("tagger "):]))
			t.HasTagger = true
		}

		if err == io.EOF {
			break
		}
	}

	if !haveObject || !haveType || !haveTag {
		return ErrMalformedTag
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return err
	}

	if idx := bytes.Index(rest, []byte("\n-----BEGIN PGP SIGNATURE-----")); idx >= 0 {
		t.Message = string(rest[:idx+1])
		t.PGPSignature = string(rest[idx+1:])
	} else {
		t.Message = string(rest)
	}
	return nil
}

func (t *Tag) Encode(w io.Writer) error {
	var buf bytes.Buffer

	buf.WriteString("object ")
	buf.WriteString(t.Target.String())
	buf.WriteByte('\n')

	buf.WriteString("type ")
	buf.WriteString(t.TargetType.String())
	buf.WriteByte('\n')

	buf.WriteString("tag ")
	buf.WriteString(t.Name)
	buf.WriteByte('\n')

	if t.HasTagger {
		buf.WriteString("tagger ")
		t.Tagger.Encode(&buf)
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	buf.WriteString(t.PGPSignature)

	_, err := w.Write(buf.Bytes())
	return err
}

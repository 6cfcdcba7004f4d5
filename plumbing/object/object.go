// Package object implements the decoded forms of the four addressable git
// object types — blob, tree, commit and tag — and their encode/decode
// to and from the raw content a loose object store or pack reader hands
// back.
package object

import (
	"bytes"
	"errors"
	"io"

	"github.com/srchound/gitkernel/plumbing"
)

// ErrUnsupportedObject is returned by DecodeObject for a type it does not
// know how to decode.
var ErrUnsupportedObject = errors.New("unsupported object type")

// Object is any of the four decoded object kinds.
type Object interface {
	// Type returns the object's kind.
	Type() plumbing.ObjectType
	// Decode populates the receiver from raw object content.
	Decode(r io.Reader) error
	// Encode writes the object's canonical on-disk body.
	Encode(w io.Writer) error
}

// New returns a zero-value Object of the given type, ready for Decode.
func New(t plumbing.ObjectType) (Object, error) {
	switch t {
	case plumbing.BlobObject:
		return &Blob{}, nil
	case plumbing.TreeObject:
		return &Tree{}, nil
	case plumbing.CommitObject:
		return &Commit{}, nil
	case plumbing.TagObject:
		return &Tag{}, nil
	default:
		return nil, ErrUnsupportedObject
	}
}

// Encoded renders o to its canonical body and computes its Hash.
func Encoded(o Object) (plumbing.Hash, []byte, error) {
	var buf bytes.Buffer
	if err := o.Encode(&buf); err != nil {
		return plumbing.ZeroHash, nil, err
	}
	return plumbing.ComputeHash(o.Type(), buf.Bytes()), buf.Bytes(), nil
}

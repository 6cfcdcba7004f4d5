// Package plumbing holds the core value types shared by every storage
// component: object hashes, object types and reference names. Higher level
// packages (object, storer, storage/...) build on top of these.
package plumbing

import (
	"encoding/hex"
	"fmt"
	"hash"
	"sort"

	"github.com/pjbgf/sha1cd"
)

const (
	// HashSize is the length in bytes of a Hash.
	HashSize = 20
	// HexSize is the length of the hexadecimal representation of a Hash.
	HexSize = HashSize * 2
)

// ZeroHash is a Hash with all bytes set to zero, used to represent an
// absent or invalid object ID.
var ZeroHash Hash

// Hash is the SHA-1 object ID of a git object.
type Hash [HashSize]byte

// NewHash returns a new Hash from its hexadecimal representation. Input
// that is not valid hex results in the zero hash; a shorter valid input
// fills only the leading bytes (the rest stay zero), and bytes beyond
// HashSize are ignored.
func NewHash(s string) Hash {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h
	}

	copy(h[:], b)
	return h
}

// IsHash reports whether s is the hexadecimal representation of a Hash.
func IsHash(s string) bool {
	if len(s) != HexSize {
		return false
	}

	_, err := hex.DecodeString(s)
	return err == nil
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the lowercase hexadecimal representation of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the raw hash bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Compare returns -1, 0 or 1 depending on whether h sorts before, equal
// to, or after b, treated as raw big-endian byte strings.
func (h Hash) Compare(b []byte) int {
	var other Hash
	copy(other[:], b)
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// HashesSort sorts a slice of Hash in increasing order.
func HashesSort(a []Hash) {
	sort.Slice(a, func(i, j int) bool { return a[i].Compare(a[j][:]) < 0 })
}

// Hasher computes the SHA-1 object ID of a git object: the hash of its
// type/size header followed by its raw content. It uses sha1cd, a
// collision-detecting SHA-1 implementation, the same guard git itself
// adopted after the SHAttered attack.
type Hasher struct {
	hash.Hash
}

// NewHasher returns a Hasher primed with the object header for t and size.
func NewHasher(t ObjectType, size int64) Hasher {
	h := Hasher{Hash: sha1cd.New()}
	h.Reset(t, size)
	return h
}

// Reset reinitialises the hasher with a new object header.
func (h Hasher) Reset(t ObjectType, size int64) {
	h.Hash.Reset()
	fmt.Fprintf(h.Hash, "%s %d\x00", t, size)
}

// Sum returns the computed Hash.
func (h Hasher) Sum() (result Hash) {
	h.Hash.Sum(result[:0])
	return
}

// ComputeHash is a convenience wrapper that hashes content in one call.
func ComputeHash(t ObjectType, content []byte) Hash {
	h := NewHasher(t, int64(len(content)))
	h.Write(content)
	return h.Sum()
}

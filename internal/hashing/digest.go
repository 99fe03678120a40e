// Package hashing provides the 64-bit digest mixer and proof-of-work
// predicate used across the DAG, MPT, and transaction layers. The digest
// itself is treated as an opaque collision-resistant function: callers
// build a canonical, order-sensitive byte stream and hash it with
// xxhash, the 64-bit hash already pulled in by the rest of this
// dependency tree.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Builder accumulates a canonical field-order byte stream for digesting.
// Every append method is length-prefixed where the payload isn't fixed size,
// so that e.g. two adjacent variable-length fields can't be confused for
// one another.
type Builder struct {
	d   *xxhash.Digest
	buf bytes.Buffer
}

// NewBuilder returns an empty canonical-field builder.
func NewBuilder() *Builder {
	return &Builder{d: xxhash.New()}
}

func (b *Builder) write(p []byte) {
	b.d.Write(p)
	b.buf.Write(p)
}

// Uint64 appends a little-endian u64 field.
func (b *Builder) Uint64(v uint64) *Builder {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.write(buf[:])
	return b
}

// Uint32 appends a little-endian u32 field.
func (b *Builder) Uint32(v uint32) *Builder {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.write(buf[:])
	return b
}

// Byte appends a single byte field (used for small tags/discriminants).
func (b *Builder) Byte(v byte) *Builder {
	b.write([]byte{v})
	return b
}

// Bytes appends a length-prefixed byte slice.
func (b *Builder) Bytes(v []byte) *Builder {
	b.Uint64(uint64(len(v)))
	b.write(v)
	return b
}

// String appends a length-prefixed string.
func (b *Builder) String(v string) *Builder {
	return b.Bytes([]byte(v))
}

// Sum returns the accumulated 64-bit digest.
func (b *Builder) Sum() uint64 {
	return b.d.Sum64()
}

// Sum256 returns a 32-byte SHA-256 digest over the same canonical byte
// stream, for contexts (e.g. the signature oracle) that need a wider digest
// than the 64-bit identity hash.
func (b *Builder) Sum256() [32]byte {
	return sha256.Sum256(b.buf.Bytes())
}

// Canonical is implemented by any record that can serialize itself into a
// Builder in a stable field order for digesting.
type Canonical interface {
	Canonicalize(b *Builder)
}

// Digest hashes a Canonical record's field order into a single u64.
func Digest(c Canonical) uint64 {
	b := NewBuilder()
	c.Canonicalize(b)
	return b.Sum()
}

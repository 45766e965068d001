// Package ids generates the opaque lowercase Base32 identifiers spec.md §3
// requires: entity ids are 128-bit random values encoded as 26 characters,
// content ids are the Base32 encoding of a blob's SHA-256 digest.
package ids

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"strings"
)

// rfc4648 is the unpadded lowercase RFC 4648 Base32 alphabet spec.md §3
// restricts identifiers to ([a-z2-7]+).
var rfc4648 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// New generates a fresh 128-bit entity id, 26 Base32 characters.
func New() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("ids: crypto/rand unavailable: " + err.Error())
	}
	return rfc4648.EncodeToString(b[:])
}

// Token generates an opaque 128-bit access token, same shape as an entity id
// but kept as a distinct constructor since tokens and entity ids are never
// interchangeable.
func Token() string {
	return New()
}

// CID returns the content id for blob bytes: Base32(SHA-256(bytes)).
func CID(blob []byte) string {
	sum := sha256.Sum256(blob)
	return rfc4648.EncodeToString(sum[:])
}

// Valid reports whether s matches the [a-z2-7]+ identifier alphabet.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !strings.ContainsRune("abcdefghijklmnopqrstuvwxyz234567", r)
	}) == -1
}

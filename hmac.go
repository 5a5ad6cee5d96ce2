package acp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"hash"
)

// Component B (spec.md §4.B): SHA-256/HMAC-SHA256 with 16-byte truncation
// and constant-time comparison. This mirrors the teacher's own choice to
// reach for stdlib crypto primitives directly (internal/bfd/auth.go uses
// crypto/md5, crypto/sha1, crypto/subtle; other_examples/
// 4e0d2757_jchadwick-xbslink-ng__internal-protocol-protocol.go.go uses
// crypto/hmac + crypto/sha256 the same way) rather than a third-party
// crypto package — no pack example imports one for symmetric MAC work.

// HMACSHA256 computes the full 32-byte HMAC-SHA256 digest of data under
// key (spec.md §4.B, one-shot form). Truncate the result to TagSize for
// the wire tag.
func HMACSHA256(key, data []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data) //nolint:errcheck // hash.Hash.Write never returns an error
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// HMACTag computes the ACP wire tag: the first TagSize bytes of
// HMAC-SHA256(key, data) (spec.md §4.B "Truncation").
func HMACTag(key, data []byte) [TagSize]byte {
	full := HMACSHA256(key, data)
	var tag [TagSize]byte
	copy(tag[:], full[:TagSize])
	return tag
}

// NewHMACSHA256 returns a streaming HMAC-SHA256 hash.Hash for callers that
// want init/update/final control instead of the one-shot form (spec.md
// §4.B "streaming init/update/final").
func NewHMACSHA256(key []byte) hash.Hash {
	return hmac.New(sha256.New, key)
}

// CTEqual is the constant-time comparison required by spec.md §4.B: it
// XOR-accumulates every byte of equal-length inputs and never
// short-circuits. Unequal lengths are reported unequal without comparing
// contents. This wraps crypto/subtle.ConstantTimeCompare, the exact
// primitive the teacher uses for password/digest comparison
// (internal/bfd/auth.go verifyPassword, verifyAndUpdateSeq).
func CTEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// VerifyTag reports whether tag matches the HMAC-SHA256 tag of data under
// key, using a constant-time comparison (spec.md §4.B, §4.F decode policy).
func VerifyTag(key, data []byte, tag [TagSize]byte) bool {
	expected := HMACTag(key, data)
	return CTEqual(expected[:], tag[:])
}

// Zeroize overwrites buf with zeroes. Used on session rotation and
// termination to scrub key material (spec.md §4.B "Secure zero").
//
// Go's compiler does not currently eliminate writes to a byte slice whose
// backing array escapes to the heap (as Session's key field does, being
// part of a caller-owned struct), so a straightforward loop is sufficient
// here; there is no portable "optimizer barrier" primitive in the standard
// library to reach for instead.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

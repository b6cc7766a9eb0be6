// Package objects defines the repository's content-addressed data model:
// Checksum, the four Object kinds (Commit, DirTree, DirMeta, File), and
// their canonical binary serialization (spec §3, §6).
//
// The serialization here is a from-scratch deterministic encoding, not
// libostree's GVariant wire format: commit, dirtree and dirmeta objects
// written by this engine are not byte-compatible with upstream ostree's,
// and upstream objects cannot be decoded by it.
package objects

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// Checksum is a 256-bit content digest.
type Checksum [sha256.Size]byte

// Zero is the zero-value checksum, used to mean "no parent commit".
var Zero Checksum

// String renders the checksum as 64 lowercase hex characters.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether c is the zero checksum.
func (c Checksum) IsZero() bool {
	return c == Zero
}

// ParseChecksum parses a 64-character hex string into a Checksum.
func ParseChecksum(s string) (Checksum, error) {
	var c Checksum
	if len(s) != hex.EncodedLen(len(c)) {
		return c, fmt.Errorf("%w: checksum %q: wrong length", ostreeerr.ErrInvalidArgument, s)
	}
	n, err := hex.Decode(c[:], []byte(s))
	if err != nil || n != len(c) {
		return c, fmt.Errorf("%w: checksum %q: not hex", ostreeerr.ErrInvalidArgument, s)
	}
	return c, nil
}

// LooksLikeChecksum reports whether s is a plausible checksum prefix: 1..64
// hex characters. Used by ref resolution's partial-prefix matching (§4.3).
func LooksLikeChecksum(s string) bool {
	if len(s) == 0 || len(s) > hex.EncodedLen(len(Checksum{})) {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

// Sum computes the Checksum of a canonical object serialization.
func Sum(canonical []byte) Checksum {
	return sha256.Sum256(canonical)
}

// Package hashcodec provides the content hashing and node combining functions
// used to commit certificates into the credential index.
package hashcodec

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Size is the width of every hash value in bytes.
const Size = 32

// Hash is a fixed-width digest. Hashes double as node identifiers in the
// Merkle index, so they are comparable values.
type Hash [Size]byte

// Zero is the all-zero sentinel used as the root of an empty index.
var Zero Hash

// ErrInvalidHash indicates a hex string that does not decode to a Hash.
var ErrInvalidHash = errors.New("hashcodec: invalid hash")

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the empty sentinel.
func (h Hash) IsZero() bool {
	return h == Zero
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if len(b) != Size {
		return h, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidHash, Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// FromBytes copies b into a Hash. b must be exactly Size bytes long.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidHash, Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Codec hashes content and combines two child hashes into a parent.
// Combine(l, r) must equal Hash(l || r); implementations may not reorder
// the inputs, since left/right position is significant.
type Codec interface {
	Name() string
	Hash(data []byte) Hash
	Combine(left, right Hash) Hash
}

// Algorithm names accepted by ByName.
const (
	AlgorithmSHA256  = "sha256"
	AlgorithmBLAKE2b = "blake2b"
	AlgorithmXORFold = "xorfold"
)

// ByName resolves a codec from its configured algorithm name.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgorithmSHA256, "sha-256":
		return SHA256{}, nil
	case AlgorithmBLAKE2b, "blake2b-256":
		return BLAKE2b{}, nil
	case AlgorithmXORFold:
		return XORFold{}, nil
	default:
		return nil, fmt.Errorf("hashcodec: unknown algorithm %q", name)
	}
}

// Default returns the codec used when none is configured.
func Default() Codec {
	return SHA256{}
}

func combineWith(c Codec, left, right Hash) Hash {
	buf := make([]byte, 0, 2*Size)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return c.Hash(buf)
}

// SHA256 hashes with SHA-256.
type SHA256 struct{}

func (SHA256) Name() string { return AlgorithmSHA256 }

func (SHA256) Hash(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

func (c SHA256) Combine(left, right Hash) Hash {
	return combineWith(c, left, right)
}

// BLAKE2b hashes with BLAKE2b-256.
type BLAKE2b struct{}

func (BLAKE2b) Name() string { return AlgorithmBLAKE2b }

func (BLAKE2b) Hash(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

func (c BLAKE2b) Combine(left, right Hash) Hash {
	return combineWith(c, left, right)
}

// XORFold is the legacy placeholder mixing function. Each input byte is
// folded into a 32-byte accumulator slot after rotating the slot, so the
// output depends on input order. It is NOT collision resistant and exists
// only to reproduce roots computed by older deployments.
type XORFold struct{}

func (XORFold) Name() string { return AlgorithmXORFold }

func (XORFold) Hash(data []byte) Hash {
	var acc Hash
	for i, b := range data {
		slot := i % Size
		acc[slot] = bits.RotateLeft8(acc[slot], 3) ^ b
	}
	return acc
}

func (c XORFold) Combine(left, right Hash) Hash {
	return combineWith(c, left, right)
}

package merkle

import "errors"

// Merkle index errors
var (
	// ErrInvalidProofData indicates corrupted or truncated proof bytes.
	ErrInvalidProofData = errors.New("merkle: invalid proof data")

	// ErrLeafNotFound indicates a leaf hash that is not committed in the tree.
	ErrLeafNotFound = errors.New("merkle: leaf not found")

	// ErrInvalidProof indicates a proof that does not reproduce its root.
	ErrInvalidProof = errors.New("merkle: invalid proof")

	// ErrRootMismatch indicates a proof built against a different root.
	ErrRootMismatch = errors.New("merkle: root mismatch")
)

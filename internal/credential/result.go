package credential

import (
	"credledger/internal/hashcodec"
	"credledger/internal/merkle"
)

// Verification messages.
const (
	MessageValid        = "valid"
	MessageNotFound     = "not found"
	MessageRevoked      = "revoked"
	MessageHashMismatch = "hash mismatch - tampering suspected"
)

// VerificationResult is the answer to "is this certificate valid".
type VerificationResult struct {
	IsValid      bool                  `json:"is_valid"`
	Certificate  *Certificate          `json:"certificate,omitempty"`
	VerifiedHash hashcodec.Hash        `json:"verified_hash"`
	MerkleProof  []merkle.ProofElement `json:"merkle_proof"`
	MerkleRoot   hashcodec.Hash        `json:"merkle_root"`
	Message      string                `json:"message"`
}

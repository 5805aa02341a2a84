// Package verify answers whether an issued certificate is valid, by
// recomputing its content hash and proving its inclusion in the index.
package verify

import (
	"credledger/internal/credential"
	"credledger/internal/hashcodec"
	"credledger/internal/merkle"
)

// MessageNotCommitted is reported when a certificate's hash checks out but
// the tree it was evaluated against does not contain it.
const MessageNotCommitted = "not included in current root"

// Snapshotter returns a copy of the certificate with the given id together
// with the tree it must be judged against, both read at the same instant. A
// missing certificate is reported as nil.
type Snapshotter interface {
	Snapshot(id string) (*credential.Certificate, *merkle.Tree)
}

// Service verifies certificates served by a Snapshotter. It never mutates
// its source.
type Service struct {
	codec  hashcodec.Codec
	source Snapshotter
}

// NewService creates a verification service.
func NewService(codec hashcodec.Codec, source Snapshotter) *Service {
	if codec == nil {
		codec = hashcodec.Default()
	}
	return &Service{codec: codec, source: source}
}

// Verify evaluates the certificate with the given id against the tree
// captured with it.
func (s *Service) Verify(id string) credential.VerificationResult {
	cert, tree := s.source.Snapshot(id)
	return Evaluate(s.codec, cert, tree)
}

// Evaluate decides validity for cert against tree. A nil cert is "not found".
//
//   - revoked certificates short-circuit without a tree check
//   - a recomputed hash that differs from the stored one is a tamper signal;
//     the proof for the stored hash is still returned for inspection
//   - otherwise the certificate is valid if its hash is a leaf of tree
func Evaluate(codec hashcodec.Codec, cert *credential.Certificate, tree *merkle.Tree) credential.VerificationResult {
	result := credential.VerificationResult{
		MerkleProof: []merkle.ProofElement{},
	}
	if tree != nil {
		result.MerkleRoot = tree.Root()
	}

	if cert == nil {
		result.Message = credential.MessageNotFound
		return result
	}
	result.Certificate = cert.Clone()

	if cert.Revoked {
		result.VerifiedHash = cert.ContentHash
		result.Message = credential.MessageRevoked
		return result
	}

	computed := cert.ComputeHash(codec)
	result.VerifiedHash = computed

	var proof []merkle.ProofElement
	found := false
	if tree != nil {
		proof, found = tree.Proof(cert.ContentHash)
		result.MerkleProof = proof
	}

	if computed != cert.ContentHash {
		result.Message = credential.MessageHashMismatch
		return result
	}

	if !found {
		result.Message = MessageNotCommitted
		return result
	}

	result.IsValid = true
	result.Message = credential.MessageValid
	return result
}

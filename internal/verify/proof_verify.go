package verify

import (
	"errors"

	"credledger/internal/credential"
	"credledger/internal/hashcodec"
	"credledger/internal/merkle"
)

// Proof verification errors
var (
	ErrInvalidLeafHash = errors.New("verify: leaf hash does not match certificate")
	ErrInvalidRootHash = errors.New("verify: computed root does not match expected")
	ErrEmptyProof      = errors.New("verify: empty proof")
)

// ProofVerificationResult contains detailed proof verification results.
type ProofVerificationResult struct {
	Valid          bool             `json:"valid"`
	Algorithm      string           `json:"algorithm"`
	LeafHash       string           `json:"leaf_hash"`
	ComputedRoot   string           `json:"computed_root"`
	ExpectedRoot   string           `json:"expected_root"`
	LeafCount      uint64           `json:"leaf_count"`
	PathLength     int              `json:"path_length"`
	Error          string           `json:"error,omitempty"`
	PathValidation []PathStepResult `json:"path_validation,omitempty"`
}

// PathStepResult contains validation info for each proof step.
type PathStepResult struct {
	Step        int    `json:"step"`
	SiblingHash string `json:"sibling_hash"`
	IsLeft      bool   `json:"is_left"`
	ResultHash  string `json:"result_hash"`
}

// ProofVerifier checks exported inclusion proofs offline.
type ProofVerifier struct {
	collectPathDetails bool
}

// NewProofVerifier creates a new proof verifier.
func NewProofVerifier() *ProofVerifier {
	return &ProofVerifier{}
}

// WithPathDetails enables per-step reporting.
func (v *ProofVerifier) WithPathDetails() *ProofVerifier {
	v.collectPathDetails = true
	return v
}

// VerifyInclusionProof folds the proof and compares it with its root.
func (v *ProofVerifier) VerifyInclusionProof(proof *merkle.InclusionProof) (*ProofVerificationResult, error) {
	if proof == nil {
		return nil, ErrEmptyProof
	}

	result := &ProofVerificationResult{
		Algorithm:    proof.Algorithm,
		LeafHash:     proof.LeafHash.String(),
		ExpectedRoot: proof.Root.String(),
		LeafCount:    proof.LeafCount,
		PathLength:   len(proof.Path),
	}

	codec, err := hashcodec.ByName(proof.Algorithm)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	current := proof.LeafHash
	if v.collectPathDetails {
		result.PathValidation = make([]PathStepResult, 0, len(proof.Path))
	}

	for i, elem := range proof.Path {
		current = merkle.ComputeRoot(codec, current, []merkle.ProofElement{elem})

		if v.collectPathDetails {
			result.PathValidation = append(result.PathValidation, PathStepResult{
				Step:        i,
				SiblingHash: elem.Hash.String(),
				IsLeft:      elem.IsLeft,
				ResultHash:  current.String(),
			})
		}
	}

	result.ComputedRoot = current.String()

	if current != proof.Root {
		result.Error = "computed root does not match expected root"
		return result, ErrInvalidRootHash
	}

	result.Valid = true
	return result, nil
}

// VerifyCertificateProof additionally checks that the proof's leaf is the
// content hash of cert.
func (v *ProofVerifier) VerifyCertificateProof(cert *credential.Certificate, proof *merkle.InclusionProof) (*ProofVerificationResult, error) {
	if proof == nil {
		return nil, ErrEmptyProof
	}

	codec, err := hashcodec.ByName(proof.Algorithm)
	if err != nil {
		return nil, err
	}

	if cert.ComputeHash(codec) != proof.LeafHash {
		return &ProofVerificationResult{
			Algorithm:    proof.Algorithm,
			LeafHash:     proof.LeafHash.String(),
			ExpectedRoot: proof.Root.String(),
			Error:        "certificate content does not hash to proof leaf",
		}, ErrInvalidLeafHash
	}

	return v.VerifyInclusionProof(proof)
}

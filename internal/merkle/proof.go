package merkle

import (
	"encoding/binary"
	"fmt"

	"credledger/internal/hashcodec"
)

// ProofElement is one sibling hash on the path from a leaf to the root.
// IsLeft is true when the sibling sits to the left of the running hash.
type ProofElement struct {
	Hash   hashcodec.Hash `json:"hash"`
	IsLeft bool           `json:"is_left"`
}

// ComputeRoot folds proof over leaf, leaf-to-root, and returns the result.
func ComputeRoot(codec hashcodec.Codec, leaf hashcodec.Hash, proof []ProofElement) hashcodec.Hash {
	acc := leaf
	for _, elem := range proof {
		if elem.IsLeft {
			acc = codec.Combine(elem.Hash, acc)
		} else {
			acc = codec.Combine(acc, elem.Hash)
		}
	}
	return acc
}

// Verify reports whether proof reproduces root from leaf. It needs no tree,
// so a party that never saw the certificate set can run it.
func Verify(codec hashcodec.Codec, leaf hashcodec.Hash, proof []ProofElement, root hashcodec.Hash) bool {
	return ComputeRoot(codec, leaf, proof) == root
}

// InclusionProof bundles everything an offline verifier needs.
type InclusionProof struct {
	Algorithm string         `json:"algorithm"`
	LeafHash  hashcodec.Hash `json:"leaf_hash"`
	Path      []ProofElement `json:"path"`
	Root      hashcodec.Hash `json:"root"`
	LeafCount uint64         `json:"leaf_count"`
}

// Verify checks the proof against its own root using the named codec.
func (p *InclusionProof) Verify() error {
	codec, err := hashcodec.ByName(p.Algorithm)
	if err != nil {
		return err
	}
	if !Verify(codec, p.LeafHash, p.Path, p.Root) {
		return ErrInvalidProof
	}
	return nil
}

// VerifyAgainst checks the proof and that it was built for root.
func (p *InclusionProof) VerifyAgainst(root hashcodec.Hash) error {
	if p.Root != root {
		return ErrRootMismatch
	}
	return p.Verify()
}

// Proof serialization format version
const proofFormatVersion = 1

const proofTypeInclusion byte = 0x01

// Serialize converts an InclusionProof to a compact binary format.
// Format:
//
//	[1 byte version][1 byte type][1 byte AlgLen][AlgLen bytes Algorithm]
//	[32 bytes LeafHash][2 bytes PathLen][PathLen * 33 bytes (32 hash + 1 isLeft)]
//	[8 bytes LeafCount][32 bytes Root]
func (p *InclusionProof) Serialize() []byte {
	alg := []byte(p.Algorithm)
	if len(alg) > 255 {
		alg = alg[:255]
	}

	totalSize := 1 + 1 + 1 + len(alg) + 32 + 2 + len(p.Path)*33 + 8 + 32
	buf := make([]byte, totalSize)
	offset := 0

	buf[offset] = proofFormatVersion
	offset++
	buf[offset] = proofTypeInclusion
	offset++

	buf[offset] = byte(len(alg))
	offset++
	copy(buf[offset:], alg)
	offset += len(alg)

	copy(buf[offset:], p.LeafHash[:])
	offset += 32

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(p.Path)))
	offset += 2
	for _, elem := range p.Path {
		copy(buf[offset:], elem.Hash[:])
		offset += 32
		if elem.IsLeft {
			buf[offset] = 1
		}
		offset++
	}

	binary.BigEndian.PutUint64(buf[offset:], p.LeafCount)
	offset += 8

	copy(buf[offset:], p.Root[:])

	return buf
}

// DeserializeInclusionProof reconstructs an InclusionProof from binary data.
func DeserializeInclusionProof(data []byte) (*InclusionProof, error) {
	// version + type + algLen + leaf + pathLen + leafCount + root
	if len(data) < 1+1+1+32+2+8+32 {
		return nil, ErrInvalidProofData
	}

	offset := 0

	version := data[offset]
	offset++
	if version != proofFormatVersion {
		return nil, fmt.Errorf("merkle: unsupported proof version: %d", version)
	}

	proofType := data[offset]
	offset++
	if proofType != proofTypeInclusion {
		return nil, fmt.Errorf("merkle: expected inclusion proof, got type %d", proofType)
	}

	p := &InclusionProof{}

	algLen := int(data[offset])
	offset++
	if offset+algLen+32+2 > len(data) {
		return nil, ErrInvalidProofData
	}
	p.Algorithm = string(data[offset : offset+algLen])
	offset += algLen

	copy(p.LeafHash[:], data[offset:offset+32])
	offset += 32

	pathLen := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2

	if offset+pathLen*33+8+32 > len(data) {
		return nil, ErrInvalidProofData
	}
	p.Path = make([]ProofElement, pathLen)
	for i := 0; i < pathLen; i++ {
		copy(p.Path[i].Hash[:], data[offset:offset+32])
		offset += 32
		p.Path[i].IsLeft = data[offset] == 1
		offset++
	}

	p.LeafCount = binary.BigEndian.Uint64(data[offset:])
	offset += 8

	copy(p.Root[:], data[offset:offset+32])

	return p, nil
}

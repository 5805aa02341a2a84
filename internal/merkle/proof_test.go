package merkle

import (
	"encoding/json"
	"errors"
	"testing"

	"credledger/internal/hashcodec"
)

func TestInclusionProofVerify(t *testing.T) {
	codec := hashcodec.BLAKE2b{}
	leaves := leafHashes(codec, 9)
	tree := Build(codec, leaves)

	p, err := tree.InclusionProof(leaves[8])
	if err != nil {
		t.Fatalf("InclusionProof failed: %v", err)
	}
	if p.Algorithm != hashcodec.AlgorithmBLAKE2b {
		t.Errorf("expected algorithm blake2b, got %s", p.Algorithm)
	}
	if p.LeafCount != 9 {
		t.Errorf("expected leaf count 9, got %d", p.LeafCount)
	}
	if err := p.Verify(); err != nil {
		t.Errorf("proof should verify: %v", err)
	}
	if err := p.VerifyAgainst(tree.Root()); err != nil {
		t.Errorf("proof should verify against tree root: %v", err)
	}
	if err := p.VerifyAgainst(hashcodec.Zero); !errors.Is(err, ErrRootMismatch) {
		t.Errorf("expected ErrRootMismatch, got %v", err)
	}
}

func TestInclusionProofUnknownLeaf(t *testing.T) {
	codec := hashcodec.SHA256{}
	tree := Build(codec, leafHashes(codec, 3))

	_, err := tree.InclusionProof(codec.Hash([]byte("missing")))
	if !errors.Is(err, ErrLeafNotFound) {
		t.Errorf("expected ErrLeafNotFound, got %v", err)
	}
}

func TestInclusionProofTampered(t *testing.T) {
	codec := hashcodec.SHA256{}
	leaves := leafHashes(codec, 5)
	tree := Build(codec, leaves)

	p, _ := tree.InclusionProof(leaves[1])
	p.Path[0].Hash[0] ^= 0xff

	if err := p.Verify(); !errors.Is(err, ErrInvalidProof) {
		t.Errorf("expected ErrInvalidProof, got %v", err)
	}
}

func TestInclusionProofSerialize(t *testing.T) {
	codec := hashcodec.SHA256{}
	leaves := leafHashes(codec, 11)
	tree := Build(codec, leaves)

	p, _ := tree.InclusionProof(leaves[10])
	data := p.Serialize()

	restored, err := DeserializeInclusionProof(data)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if restored.Algorithm != p.Algorithm || restored.LeafHash != p.LeafHash ||
		restored.Root != p.Root || restored.LeafCount != p.LeafCount {
		t.Error("header mismatch after round-trip")
	}
	if len(restored.Path) != len(p.Path) {
		t.Fatalf("path length mismatch: %d vs %d", len(restored.Path), len(p.Path))
	}
	if err := restored.Verify(); err != nil {
		t.Errorf("restored proof should verify: %v", err)
	}
}

func TestDeserializeInclusionProofErrors(t *testing.T) {
	if _, err := DeserializeInclusionProof([]byte{1, 1}); !errors.Is(err, ErrInvalidProofData) {
		t.Errorf("expected ErrInvalidProofData for short data, got %v", err)
	}

	codec := hashcodec.SHA256{}
	leaves := leafHashes(codec, 4)
	p, _ := Build(codec, leaves).InclusionProof(leaves[0])
	data := p.Serialize()

	bad := append([]byte(nil), data...)
	bad[0] = 9
	if _, err := DeserializeInclusionProof(bad); err == nil {
		t.Error("expected error for bad version")
	}

	if _, err := DeserializeInclusionProof(data[:len(data)-10]); !errors.Is(err, ErrInvalidProofData) {
		t.Errorf("expected ErrInvalidProofData for truncated data, got %v", err)
	}
}

func TestInclusionProofJSON(t *testing.T) {
	codec := hashcodec.SHA256{}
	leaves := leafHashes(codec, 7)
	p, _ := Build(codec, leaves).InclusionProof(leaves[3])

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var restored InclusionProof
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := restored.Verify(); err != nil {
		t.Errorf("JSON round-tripped proof should verify: %v", err)
	}
}

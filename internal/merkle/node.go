// Package merkle implements the binary hash tree that commits the certificate
// set to a single root and yields logarithmic inclusion proofs.
package merkle

import "credledger/internal/hashcodec"

// Node is a single node of the tree. Hashes double as node identifiers.
// Leaves have no children; the root has no parent; a node promoted without
// a partner keeps a nil sibling until it is paired at a higher level.
type Node struct {
	Hash    hashcodec.Hash
	Left    *hashcodec.Hash
	Right   *hashcodec.Hash
	Parent  *hashcodec.Hash
	Sibling *hashcodec.Hash
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

func ref(h hashcodec.Hash) *hashcodec.Hash {
	return &h
}

func deref(h *hashcodec.Hash) hashcodec.Hash {
	if h == nil {
		return hashcodec.Zero
	}
	return *h
}

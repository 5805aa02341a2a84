package merkle

import (
	"math/bits"

	"credledger/internal/hashcodec"
)

// Tree is an immutable snapshot of the index built over one ordered leaf
// sequence. A Tree is never modified after Build returns, so it is safe for
// concurrent readers without locking.
type Tree struct {
	codec  hashcodec.Codec
	root   hashcodec.Hash
	leaves []hashcodec.Hash
	nodes  map[hashcodec.Hash]*Node
}

// Build constructs the tree bottom-up over leaves in the order given.
// Pairing is positional: (0,1), (2,3), ... and an unpaired trailing element
// is promoted unchanged to the next level. An empty leaf set yields the
// all-zero root; a single leaf is its own root.
func Build(codec hashcodec.Codec, leaves []hashcodec.Hash) *Tree {
	if codec == nil {
		codec = hashcodec.Default()
	}

	t := &Tree{
		codec:  codec,
		leaves: append([]hashcodec.Hash(nil), leaves...),
		nodes:  make(map[hashcodec.Hash]*Node, 2*len(leaves)),
	}

	if len(leaves) == 0 {
		t.root = hashcodec.Zero
		return t
	}

	for _, h := range t.leaves {
		if _, ok := t.nodes[h]; !ok {
			t.nodes[h] = &Node{Hash: h}
		}
	}

	level := append([]hashcodec.Hash(nil), t.leaves...)
	for len(level) > 1 {
		next := make([]hashcodec.Hash, 0, (len(level)+1)/2)

		for i := 0; i+1 < len(level); i += 2 {
			a, b := level[i], level[i+1]
			parent := codec.Combine(a, b)

			t.nodes[parent] = &Node{
				Hash:  parent,
				Left:  ref(a),
				Right: ref(b),
			}

			left, right := t.nodes[a], t.nodes[b]
			left.Parent, left.Sibling = ref(parent), ref(b)
			right.Parent, right.Sibling = ref(parent), ref(a)

			next = append(next, parent)
		}

		// Odd node out is promoted as-is.
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}

		level = next
	}

	t.root = level[0]
	return t
}

// Root returns the root hash.
func (t *Tree) Root() hashcodec.Hash {
	return t.root
}

// Codec returns the codec the tree was built with.
func (t *Tree) Codec() hashcodec.Codec {
	return t.codec
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.leaves)
}

// Size returns the number of distinct nodes, leaves included.
func (t *Tree) Size() int {
	return len(t.nodes)
}

// Height returns the number of levels above the leaves.
func (t *Tree) Height() int {
	if len(t.leaves) <= 1 {
		return 0
	}
	return bits.Len(uint(len(t.leaves) - 1))
}

// Leaves returns a copy of the leaf sequence in build order.
func (t *Tree) Leaves() []hashcodec.Hash {
	return append([]hashcodec.Hash(nil), t.leaves...)
}

// Contains reports whether h is a leaf of the tree.
func (t *Tree) Contains(h hashcodec.Hash) bool {
	n, ok := t.nodes[h]
	return ok && n.IsLeaf()
}

// Node returns a copy of the node identified by h.
func (t *Tree) Node(h hashcodec.Hash) (Node, bool) {
	n, ok := t.nodes[h]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Proof walks the back-links from leaf to root collecting each sibling.
// It returns false, with an empty proof, when leaf is not in the tree.
// A single-leaf tree yields an empty proof and true.
func (t *Tree) Proof(leaf hashcodec.Hash) ([]ProofElement, bool) {
	node, ok := t.nodes[leaf]
	if !ok || !node.IsLeaf() {
		return []ProofElement{}, false
	}

	proof := make([]ProofElement, 0, t.Height())

	// Bounded by node count so a hash collision can never loop forever.
	for steps := 0; node.Parent != nil && steps < len(t.nodes); steps++ {
		parent, ok := t.nodes[*node.Parent]
		if !ok {
			break
		}
		if node.Sibling != nil {
			proof = append(proof, ProofElement{
				Hash:   *node.Sibling,
				IsLeft: deref(parent.Right) == node.Hash,
			})
		}
		node = parent
	}

	return proof, true
}

// InclusionProof returns a self-contained proof for leaf.
func (t *Tree) InclusionProof(leaf hashcodec.Hash) (*InclusionProof, error) {
	path, ok := t.Proof(leaf)
	if !ok {
		return nil, ErrLeafNotFound
	}
	return &InclusionProof{
		Algorithm: t.codec.Name(),
		LeafHash:  leaf,
		Path:      path,
		Root:      t.root,
		LeafCount: uint64(len(t.leaves)),
	}, nil
}

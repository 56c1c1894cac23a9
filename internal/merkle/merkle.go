// Package merkle implements the hash tree committing a record's field leaves.
// Certifier and verifier both use this package; the root is only reproducible
// when both sides pair nodes identically, so the odd-level policy lives here
// and nowhere else: a level with an odd node count duplicates its last node.
package merkle

import (
	"crypto/sha256"
	"errors"
)

// HashSize is the size of a node hash in bytes.
const HashSize = sha256.Size

var (
	ErrNoLeaves      = errors.New("merkle: tree requires at least one leaf")
	ErrIndexRange    = errors.New("merkle: leaf index out of range")
	ErrProofMismatch = errors.New("merkle: proof does not reproduce the committed root")
)

// Hash is a single node digest.
type Hash [HashSize]byte

// LeafHash hashes raw leaf bytes into a node digest.
func LeafHash(data []byte) Hash {
	return sha256.Sum256(data)
}

// ProofStep is one sibling on the path from a leaf to the root. Right is true
// when the sibling sits to the right of the running hash.
type ProofStep struct {
	Right bool `json:"right"`
	Hash  Hash `json:"hash"`
}

// Proof is an inclusion proof for a single leaf.
type Proof struct {
	LeafIndex int         `json:"leaf_index"`
	Steps     []ProofStep `json:"steps"`
}

// Tree is an immutable Merkle tree over a fixed leaf sequence.
type Tree struct {
	levels [][]Hash // levels[0] = leaves, last level has exactly one node
}

// New builds the tree bottom-up, pairing adjacent nodes left to right and
// duplicating the last node of any odd-sized level.
func New(leaves []Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	level := make([]Hash, len(leaves))
	copy(level, leaves)
	levels := [][]Hash{level}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}, nil
}

// Root returns the single hash committing to the leaf sequence.
func (t *Tree) Root() Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// LeafCount returns the number of original leaves.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Proof returns the inclusion proof for the leaf at index.
func (t *Tree) Proof(index int) (Proof, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return Proof{}, ErrIndexRange
	}

	proof := Proof{LeafIndex: index}
	pos := index
	for _, level := range t.levels[:len(t.levels)-1] {
		siblingPos := pos ^ 1
		var sibling Hash
		if siblingPos < len(level) {
			sibling = level[siblingPos]
		} else {
			// Odd level: the last node was paired with its own duplicate.
			sibling = level[pos]
		}
		proof.Steps = append(proof.Steps, ProofStep{
			Right: siblingPos > pos,
			Hash:  sibling,
		})
		pos /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the root from a leaf and its proof and compares it to
// the committed root.
func VerifyProof(leaf Hash, proof Proof, root Hash) bool {
	current := leaf
	for _, step := range proof.Steps {
		if step.Right {
			current = hashPair(current, step.Hash)
		} else {
			current = hashPair(step.Hash, current)
		}
	}
	return current == root
}

func hashPair(left, right Hash) Hash {
	buf := make([]byte, 0, 2*HashSize)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

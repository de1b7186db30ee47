// Package merkle computes the transactions_merkle_root and
// rejected_merkle_root carried in a block header (§3), via
// github.com/cbergoon/merkletree.
package merkle

import (
	"github.com/cbergoon/merkletree"

	"github.com/hyperledger/iroha-sub011/common"
)

// leaf adapts a precomputed common.Hash to merkletree.Content. Transaction
// identity is already a hash (§3), so the leaf "hashes" by returning its
// bytes unchanged rather than re-hashing the transaction.
type leaf struct {
	hash common.Hash
}

func (l leaf) CalculateHash() ([]byte, error) { return l.hash.Bytes(), nil }

func (l leaf) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(leaf)
	if !ok {
		return false, nil
	}
	return l.hash == o.hash, nil
}

// Root computes the Merkle root over an ordered list of transaction hashes.
// An empty list roots to the zero hash, matching Kura's genesis block,
// which carries no rejected transactions.
func Root(hashes []common.Hash) (common.Hash, error) {
	if len(hashes) == 0 {
		return common.Hash{}, nil
	}
	contents := make([]merkletree.Content, len(hashes))
	for i, h := range hashes {
		contents[i] = leaf{hash: h}
	}
	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(tree.MerkleRoot()), nil
}

package types

import (
	"github.com/hyperledger/iroha-sub011/common"
)

// BlockHeader is the signed, hashable summary of a block (§3). Identity is
// HashOf<BlockHeader> — the hash of this struct's canonical encoding, never
// including the peer signature set, since the signature set is what
// *attests to* the header, not part of what's being attested.
type BlockHeader struct {
	Height                  uint64
	PrevBlockHash           common.Hash // zero for the genesis block (height 0)
	TransactionsMerkleRoot  common.Hash
	RejectedMerkleRoot      common.Hash
	CreationTimeMs          int64
	ViewChangeIndex         uint64
	ConsensusEstimationMs   int64
}

func (h BlockHeader) Encode() []byte {
	e := newEncoder()
	e.writeUint64(h.Height)
	e.buf = append(e.buf, h.PrevBlockHash.Bytes()...)
	e.buf = append(e.buf, h.TransactionsMerkleRoot.Bytes()...)
	e.buf = append(e.buf, h.RejectedMerkleRoot.Bytes()...)
	e.writeInt64(h.CreationTimeMs)
	e.writeUint64(h.ViewChangeIndex)
	e.writeInt64(h.ConsensusEstimationMs)
	return e.bytes()
}

func (h BlockHeader) Hash() common.Hash {
	return common.HashOf(h.Encode())
}

func (h BlockHeader) IsGenesis() bool { return h.Height == 0 }

// Block is a header plus its ordered, verdict-annotated transactions and
// the peer signature set gathered during consensus (§3, §4.5 step 3-4).
type Block struct {
	Header       BlockHeader
	Transactions []TransactionWithVerdict
	Signatures   []Signature // over Header.Hash(); quorum is checked by the caller
}

func (b *Block) Hash() common.Hash { return b.Header.Hash() }

// Approved returns the hashes of transactions this block recorded as
// Approved, in block order — the set WSV.has_transaction must answer true
// for after Apply (§3, §8 "After applying block b ... WSV.has_transaction").
func (b *Block) Approved() []common.Hash {
	out := make([]common.Hash, 0, len(b.Transactions))
	for _, twv := range b.Transactions {
		if twv.Verdict.Kind == Approved {
			tx := twv.Transaction
			out = append(out, tx.Hash())
		}
	}
	return out
}

// SignerSet returns the distinct public keys that signed this block, used
// for quorum counting (§4.5 step 3: "≥2f+1 distinct valid signatures").
func (b *Block) SignerSet() map[common.PublicKey]struct{} {
	set := make(map[common.PublicKey]struct{}, len(b.Signatures))
	for _, s := range b.Signatures {
		set[s.PublicKey] = struct{}{}
	}
	return set
}

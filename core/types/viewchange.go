package types

import (
	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
)

// ViewChangeProof is the object peers sign and gossip to agree on a view
// change (§3, §4.5 "View change"). PeerSetHash pins the proof to the
// trusted-peer set it was signed against (§9 "View-change safety"): a peer
// must refuse a proof whose PeerSetHash differs from its current one, which
// prevents replaying a stale proof after a peer-set reconfiguration.
type ViewChangeProof struct {
	ViewChangeIndex uint64
	Reason          xerrors.ViewChangeReason
	BlockHeight     uint64 // height this proof applies at; proofs are invalid once that height commits
	PeerSetHash     common.Hash
	Signatures      []Signature
}

// Key identifies the (index, reason, height, peer-set) tuple that
// signatures must agree on to count toward the same quorum (§8 "Soft-fork
// law" / "on collecting ≥2f+1 signatures on the same (index, reason)").
type ViewChangeKey struct {
	ViewChangeIndex uint64
	Reason          xerrors.ViewChangeReason
	BlockHeight     uint64
	PeerSetHash     common.Hash
}

func (p ViewChangeProof) Key() ViewChangeKey {
	return ViewChangeKey{
		ViewChangeIndex: p.ViewChangeIndex,
		Reason:          p.Reason,
		BlockHeight:     p.BlockHeight,
		PeerSetHash:     p.PeerSetHash,
	}
}

func (k ViewChangeKey) Encode() []byte {
	e := newEncoder()
	e.writeUint64(k.ViewChangeIndex)
	e.writeUvarint(uint64(k.Reason))
	e.writeUint64(k.BlockHeight)
	e.buf = append(e.buf, k.PeerSetHash.Bytes()...)
	return e.bytes()
}

func (k ViewChangeKey) Hash() common.Hash { return common.HashOf(k.Encode()) }

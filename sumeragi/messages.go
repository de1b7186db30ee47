package sumeragi

import (
	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
)

// BlockCreated is the leader's proposal (§4.5 normal path step 1).
type BlockCreated struct {
	Block *types.Block
}

// BlockSigned is a validating peer's (or the leader's own) signature sent to
// the proxy_tail (§4.5 normal path step 2).
type BlockSigned struct {
	Height     uint64
	ViewIndex  uint64
	HeaderHash common.Hash
	Signature  types.Signature
}

// BlockCommitted is the proxy_tail's announcement once quorum is reached
// (§4.5 normal path step 3), carrying the full signature set every peer
// verifies and applies.
type BlockCommitted struct {
	Block *types.Block
}

// ViewChangeProof is one peer's signed claim that the current view should
// advance (§4.5 "View change", §3 glossary). PeerSetHash pins the proof to
// the peer set it was formed under, so it cannot be replayed after a
// reconfiguration (§9 "View-change safety").
type ViewChangeProof struct {
	Index       uint64
	Reason      xerrors.ViewChangeReason
	PeerSetHash common.Hash
	Signer      common.PublicKey
	Signature   common.Signature
}

func (p ViewChangeProof) key() viewChangeKey {
	return viewChangeKey{index: p.Index, reason: p.Reason, peerSetHash: p.PeerSetHash}
}

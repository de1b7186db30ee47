package sumeragi

import (
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
)

// AcceptSyncedBlock feeds a block fetched by blocksync through the same
// verification and commit path a consensus-committed block takes (§4.6
// "fed to the same commit path as consensus"): height must be the next one,
// and its signature set must meet quorum against the peer set given (the
// known peer set at the block's committing view, per the caller).
func (s *Sumeragi) AcceptSyncedBlock(b *types.Block, peers types.PeerSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Header.Height != s.wsv.Height()+1 {
		if b.Header.Height <= s.wsv.Height() {
			return nil
		}
		return xerrors.New(xerrors.Protocol, "sumeragi: synced block at unexpected height")
	}
	if local := s.blockAt(s.wsv.Height()); local != nil && b.Header.PrevBlockHash != local.Header.Hash() {
		return xerrors.New(xerrors.Protocol, "sumeragi: synced block's prev_hash does not match local top")
	}
	if countValidSignatures(b, peers) < peers.Quorum() {
		return xerrors.New(xerrors.Protocol, "sumeragi: synced block lacks quorum signatures")
	}
	return s.commitLocked(b)
}

package sumeragi

import (
	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/common/merkle"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
)

// SignHeaderFunc produces this peer's signature over a block header.
type SignHeaderFunc func(types.BlockHeader) common.Signature

// ProposeBlock runs the leader's step of the normal path (§4.5 step 1):
// drain the queue, compute merkle roots, sign, and send BlockCreated to
// every other peer in the set, observers included. Only valid when this
// peer currently holds RoleLeader.
func (s *Sumeragi) ProposeBlock(sign SignHeaderFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roleLocked() != types.RoleLeader {
		return xerrors.New(xerrors.Protocol, "sumeragi: only the leader proposes")
	}
	if s.inFlight != nil {
		return xerrors.New(xerrors.Protocol, "sumeragi: a proposal is already in flight")
	}

	txs := s.queue.PopBatch(s.cfg.MaxTransactionsInBlock)
	if len(txs) == 0 {
		return nil
	}
	verdicts := s.wsv.ValidateCandidate(txs)

	b := &types.Block{
		Header: types.BlockHeader{
			Height:          s.wsv.Height() + 1,
			ViewChangeIndex: s.viewChangeIndex,
		},
	}
	if prev := s.blockAt(s.wsv.Height()); prev != nil {
		b.Header.PrevBlockHash = prev.Header.Hash()
	}
	var allHashes, rejectedHashes []common.Hash
	for i, tx := range txs {
		b.Transactions = append(b.Transactions, types.TransactionWithVerdict{Transaction: *tx, Verdict: verdicts[i]})
		h := tx.Hash()
		allHashes = append(allHashes, h)
		if verdicts[i].Kind == types.Rejected {
			rejectedHashes = append(rejectedHashes, h)
		}
	}
	txRoot, err := merkle.Root(allHashes)
	if err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "sumeragi: computing transactions merkle root")
	}
	rejectedRoot, err := merkle.Root(rejectedHashes)
	if err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "sumeragi: computing rejected merkle root")
	}
	b.Header.TransactionsMerkleRoot = txRoot
	b.Header.RejectedMerkleRoot = rejectedRoot

	sig := sign(b.Header)
	b.Signatures = []types.Signature{{PublicKey: s.cfg.Self.PublicKey, Sig: sig}}

	s.inFlight = &candidate{
		block:      b,
		signatures: map[common.PublicKey]types.Signature{s.cfg.Self.PublicKey: {PublicKey: s.cfg.Self.PublicKey, Sig: sig}},
	}

	msg := BlockCreated{Block: b}
	for _, p := range s.peers.Peers() {
		if p.Equal(s.cfg.Self) {
			continue
		}
		if err := s.net.SendBlockCreated(p, msg); err != nil {
			s.logger.Warn("sumeragi: sending BlockCreated failed", "peer", p, "err", err)
		}
	}

	// In a lone-peer network the leader is also its own proxy_tail and there
	// is nobody to send BlockCreated to, so nothing would ever drive
	// aggregation. Aggregate the leader's own signature directly instead of
	// waiting on a round trip that can never happen (§4.5 degenerate case
	// n=1).
	if proxyTail, ok := s.peers.ProxyTailAt(s.viewChangeIndex); ok && proxyTail.Equal(s.cfg.Self) {
		signedMsg := BlockSigned{Height: b.Header.Height, ViewIndex: s.viewChangeIndex, HeaderHash: b.Header.Hash(), Signature: b.Signatures[0]}
		return s.handleBlockSignedLocked(signedMsg)
	}
	return nil
}

// HandleBlockCreated runs a validating peer's (or proxy_tail's) step of the
// normal path (§4.5 step 2): check prev_hash, re-execute against a scratch
// snapshot, and either sign (forwarding to proxy_tail) or reject (raising a
// view change).
func (s *Sumeragi) HandleBlockCreated(from common.PeerID, msg BlockCreated, sign SignHeaderFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := msg.Block
	if b.Header.Height != s.wsv.Height()+1 {
		return xerrors.New(xerrors.Protocol, "sumeragi: proposal at unexpected height")
	}
	if local := s.blockAt(s.wsv.Height()); local != nil && b.Header.PrevBlockHash != local.Header.Hash() {
		return xerrors.New(xerrors.Protocol, "sumeragi: proposal's prev_hash does not match local top")
	}

	txs := make([]*types.Transaction, len(b.Transactions))
	for i := range b.Transactions {
		txs[i] = &b.Transactions[i].Transaction
	}
	verdicts := s.wsv.ValidateCandidate(txs)
	for i, v := range verdicts {
		if v.Kind != b.Transactions[i].Verdict.Kind {
			return xerrors.New(xerrors.Protocol, "sumeragi: verdict mismatch with leader, proposal rejected")
		}
	}

	sig := sign(b.Header)
	s.inFlight = &candidate{block: b, signatures: map[common.PublicKey]types.Signature{s.cfg.Self.PublicKey: {PublicKey: s.cfg.Self.PublicKey, Sig: sig}}}

	proxyTail, ok := s.peers.ProxyTailAt(s.viewChangeIndex)
	if !ok {
		return xerrors.New(xerrors.Protocol, "sumeragi: no proxy_tail in the current view")
	}
	signedMsg := BlockSigned{Height: b.Header.Height, ViewIndex: s.viewChangeIndex, HeaderHash: b.Header.Hash(), Signature: types.Signature{PublicKey: s.cfg.Self.PublicKey, Sig: sig}}
	if proxyTail.Equal(s.cfg.Self) {
		// This peer doubles as proxy_tail (common in small peer sets, and
		// always true for n=1): aggregate locally instead of round-tripping
		// a message to ourselves over the network.
		return s.handleBlockSignedLocked(signedMsg)
	}
	return s.net.SendBlockSigned(proxyTail, signedMsg)
}

// HandleBlockSigned runs the proxy_tail's aggregation step (§4.5 step 3):
// collect signatures until quorum, then broadcast BlockCommitted.
func (s *Sumeragi) HandleBlockSigned(from common.PeerID, msg BlockSigned) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handleBlockSignedLocked(msg)
}

func (s *Sumeragi) handleBlockSignedLocked(msg BlockSigned) error {
	// Compare against ProxyTailAt rather than roleLocked(): for n=1 the sole
	// peer reports RoleLeader from Role() (§4.5 degenerate case) but is still
	// its own proxy_tail for aggregation purposes.
	if proxyTail, ok := s.peers.ProxyTailAt(s.viewChangeIndex); !ok || !proxyTail.Equal(s.cfg.Self) {
		return xerrors.New(xerrors.Protocol, "sumeragi: only the proxy_tail aggregates signatures")
	}
	if s.inFlight == nil || s.inFlight.block.Header.Hash() != msg.HeaderHash {
		return xerrors.New(xerrors.Protocol, "sumeragi: signature for unknown or stale proposal")
	}
	s.inFlight.signatures[msg.Signature.PublicKey] = msg.Signature

	if len(s.inFlight.signatures) < s.peers.Quorum() {
		return nil
	}

	b := s.inFlight.block
	b.Signatures = b.Signatures[:0]
	for _, sig := range s.inFlight.signatures {
		b.Signatures = append(b.Signatures, sig)
	}
	if err := xerrors.Aggregate(s.net.BroadcastBlockCommitted(BlockCommitted{Block: b})); err != nil {
		s.logger.Warn("sumeragi: broadcasting BlockCommitted failed", "err", err)
	}
	return s.commitLocked(b)
}

// HandleBlockCommitted runs every peer's final normal-path step (§4.5 step
// 4): verify the signature quorum against the current trusted peer set,
// then append and apply.
func (s *Sumeragi) HandleBlockCommitted(from common.PeerID, msg BlockCommitted) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := msg.Block
	if b.Header.Height != s.wsv.Height()+1 {
		if b.Header.Height <= s.wsv.Height() {
			return nil // already committed locally, nothing to do
		}
		return xerrors.New(xerrors.Protocol, "sumeragi: committed block at unexpected height")
	}
	if countValidSignatures(b, s.peers) < s.peers.Quorum() {
		return xerrors.New(xerrors.Protocol, "sumeragi: committed block lacks quorum signatures")
	}
	return s.commitLocked(b)
}

package sumeragi

import (
	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/event"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
)

type viewChangeKey struct {
	index       uint64
	reason      xerrors.ViewChangeReason
	peerSetHash common.Hash
}

// proofCollector gathers signed ViewChangeProofs per (index, reason,
// peer-set) key (§4.5 "on collecting ≥2f+1 signatures on the same (index,
// reason)"). Pinning on PeerSetHash too means a proof can never be replayed
// across a peer-set reconfiguration (§9 "View-change safety").
type proofCollector struct {
	bySignerPerKey map[viewChangeKey]map[common.PublicKey]ViewChangeProof
}

func newProofCollector() *proofCollector {
	return &proofCollector{bySignerPerKey: map[viewChangeKey]map[common.PublicKey]ViewChangeProof{}}
}

// add records proof and reports the current distinct-signer count for its key.
func (c *proofCollector) add(proof ViewChangeProof) int {
	key := proof.key()
	set, ok := c.bySignerPerKey[key]
	if !ok {
		set = map[common.PublicKey]ViewChangeProof{}
		c.bySignerPerKey[key] = set
	}
	set[proof.Signer] = proof
	return len(set)
}

func (c *proofCollector) reset() {
	c.bySignerPerKey = map[viewChangeKey]map[common.PublicKey]ViewChangeProof{}
}

// RaiseViewChange forms and broadcasts this peer's own ViewChangeProof for
// the given reason at the current index, then folds it into the local
// collector as any received proof would be (§4.5 "View change").
func (s *Sumeragi) RaiseViewChange(reason xerrors.ViewChangeReason, sign func(common.Hash) common.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proof := ViewChangeProof{
		Index:       s.viewChangeIndex,
		Reason:      reason,
		PeerSetHash: s.peers.Hash(),
		Signer:      s.cfg.Self.PublicKey,
	}
	proof.Signature = sign(proofDigest(proof))

	s.applyProofLocked(proof)
	if err := xerrors.Aggregate(s.net.BroadcastViewChangeProof(proof)); err != nil {
		s.logger.Warn("sumeragi: broadcasting view-change proof failed", "err", err)
	}
	return nil
}

// HandleViewChangeProof folds an inbound proof into the collector and
// advances the view once quorum is reached on one (index, reason) pair.
// Proofs pinned to another peer set or to a past view are rejected. Proofs
// collected so far are discarded when a block commits, but a proof carries
// no height, so one that arrives after that commit is counted toward the
// next height.
func (s *Sumeragi) HandleViewChangeProof(from common.PeerID, proof ViewChangeProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if proof.PeerSetHash != s.peers.Hash() {
		return xerrors.New(xerrors.Protocol, "sumeragi: view-change proof pinned to a stale peer set")
	}
	if proof.Index < s.viewChangeIndex {
		return xerrors.New(xerrors.Protocol, "sumeragi: view-change proof for a past view")
	}
	s.applyProofLocked(proof)
	return nil
}

func (s *Sumeragi) applyProofLocked(proof ViewChangeProof) {
	count := s.proofs.add(proof)
	if count >= s.peers.Quorum() && proof.Index >= s.viewChangeIndex {
		s.advanceViewLocked(proof.Index+1, proof.Reason)
	}
}

// advanceViewLocked bumps the view-change index, discards any in-flight
// proposal, and clears accumulated proofs so the next round starts clean
// (§4.5 "recomputes roles, discards any in-flight proposal").
func (s *Sumeragi) advanceViewLocked(newIndex uint64, reason xerrors.ViewChangeReason) {
	if newIndex <= s.viewChangeIndex {
		return
	}
	s.viewChangeIndex = newIndex
	s.inFlight = nil
	s.proofs.reset()
	s.logger.Info("sumeragi: view changed", "new_index", newIndex, "role", s.roleLocked())
	if s.events != nil {
		s.events.ViewChanges.Send(event.ViewChanged{NewIndex: newIndex, Reason: reason})
	}
}

func proofDigest(p ViewChangeProof) common.Hash {
	buf := make([]byte, 0, 8+8+32)
	buf = appendUint64(buf, p.Index)
	buf = appendUint64(buf, uint64(p.Reason))
	buf = append(buf, p.PeerSetHash.Bytes()...)
	return common.HashOf(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 7; i >= 0; i-- {
		tmp[i] = byte(v)
		v >>= 8
	}
	return append(buf, tmp[:]...)
}

// ViewChangeReason re-exports xerrors.ViewChangeReason so callers don't need
// to import internal/xerrors just to name a reason.
type ViewChangeReason = xerrors.ViewChangeReason

const (
	ReasonProxyTailTimeout = xerrors.ReasonProxyTailTimeout
	ReasonLeaderTimeout    = xerrors.ReasonLeaderTimeout
	ReasonCommitTimeout    = xerrors.ReasonCommitTimeout
)

// Package sumeragi implements the leader-based BFT consensus state machine
// (§4.5): role rotation, block proposal/signing/commit, view-change on
// timeout or semantic rejection, genesis handling, and soft-fork recovery.
// Grounded on the preprepare/prepare/commit shape of
// consensus/istanbul/core, generalized from Ethereum's single validator-set
// model to Iroha's rotating leader/proxy-tail/validator/observer roles.
package sumeragi

import (
	"sync"
	"time"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/common/mclock"
	"github.com/hyperledger/iroha-sub011/common/merkle"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/event"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
	"github.com/hyperledger/iroha-sub011/log"
)

// Queue is the slice of *txqueue.Queue a leader needs to build a candidate
// block.
type Queue interface {
	PopBatch(n int) []*types.Transaction
	Remove(hash common.Hash)
}

// WorldState is the slice of *wsv.WSV Sumeragi needs: commit path application,
// scratch re-execution for proposal validation, and the rollback primitive
// soft-fork recovery uses to bring the view back in step with a truncated
// Kura before re-applying the replacement block.
type WorldState interface {
	Height() uint64
	Apply(b *types.Block) error
	ValidateCandidate(txs []*types.Transaction) []types.Verdict
	Rollback(height uint64) error
}

// BlockStore is the slice of *kura.Store Sumeragi needs to persist a
// committed block and to support soft-fork truncation.
type BlockStore interface {
	Append(b *types.Block) error
	Get(height uint64) (*types.Block, error)
	TruncateTo(height uint64) error
}

// Network is what Sumeragi needs from p2p: broadcasting proposals,
// signatures, commits and view-change proofs to specific roles or everyone.
type Network interface {
	SendBlockCreated(to common.PeerID, msg BlockCreated) error
	SendBlockSigned(to common.PeerID, msg BlockSigned) error
	BroadcastBlockCommitted(msg BlockCommitted) []error
	BroadcastViewChangeProof(msg ViewChangeProof) []error
}

// Config holds the chain-wide consensus timeouts (§4.5 "Timings").
type Config struct {
	Self                   common.PeerID
	MaxTransactionsInBlock int
	BlockTime              time.Duration
	CommitTime             time.Duration
	TxReceiptTime          time.Duration
	GenesisPublicKey       common.PublicKey
	IsGenesisSubmitter     bool
}

// Sumeragi drives one peer's consensus participation. Every exported method
// takes mu, so Handle* calls and the watchdog goroutines that raise view
// changes may arrive from several goroutines; they are applied one at a time.
type Sumeragi struct {
	cfg    Config
	queue  Queue
	wsv    WorldState
	blocks BlockStore
	net    Network
	clock  mclock.Clock
	logger log.Logger

	mu sync.Mutex

	peers           types.PeerSet
	viewChangeIndex uint64

	// inFlight is the candidate block this peer is currently
	// proposing/validating/aggregating at the current height, discarded on
	// any view change (§4.5 "discards any in-flight proposal").
	inFlight *candidate

	proofs *proofCollector

	// events is nil unless SetEvents is called; every firing site checks
	// for nil so tests and callers that don't care about the event bus
	// don't need to construct one.
	events *event.Bus
}

// SetEvents attaches the bus commit/reject/view-change events are fired
// on. Optional: a Sumeragi with no bus attached simply fires nothing.
func (s *Sumeragi) SetEvents(bus *event.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = bus
}

type candidate struct {
	block      *types.Block
	signatures map[common.PublicKey]types.Signature
}

func New(cfg Config, peers types.PeerSet, queue Queue, wsv WorldState, blocks BlockStore, net Network, clock mclock.Clock, logger log.Logger) *Sumeragi {
	if clock == nil {
		clock = mclock.System{}
	}
	if logger == nil {
		logger = log.Root
	}
	return &Sumeragi{
		cfg: cfg, peers: peers, queue: queue, wsv: wsv, blocks: blocks, net: net, clock: clock, logger: logger,
		proofs: newProofCollector(),
	}
}

// Role returns this peer's role in the current view.
func (s *Sumeragi) Role() types.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roleLocked()
}

func (s *Sumeragi) roleLocked() types.Role {
	idx := s.peers.IndexOf(s.cfg.Self.PublicKey)
	if idx < 0 {
		return types.RoleObservingPeer
	}
	return s.peers.RoleAt(idx, s.viewChangeIndex)
}

// StartGenesis constructs and commits block 0 unilaterally, as only the
// designated genesis submitter may (§4.5 "Genesis"). Callers must check
// cfg.IsGenesisSubmitter before invoking this, but StartGenesis itself
// re-checks height to stay idempotent.
func (s *Sumeragi) StartGenesis(instructions []types.Instruction, key common.PublicKey, signHeader func(types.BlockHeader) common.Signature) (*types.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.IsGenesisSubmitter {
		return nil, xerrors.New(xerrors.Protocol, "sumeragi: this peer is not the genesis submitter")
	}
	if s.wsv.Height() != 0 || s.blockAt(0) != nil {
		return nil, xerrors.New(xerrors.Protocol, "sumeragi: genesis already committed")
	}

	tx := &types.Transaction{Payload: types.Payload{
		ChainID:        "genesis",
		Instructions:   instructions,
		CreationTimeMs: time.Now().UnixMilli(),
	}}
	verdicts := s.wsv.ValidateCandidate([]*types.Transaction{tx})

	txRoot, err := merkle.Root([]common.Hash{tx.Hash()})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Fatal, err, "sumeragi: computing genesis transactions merkle root")
	}
	var rejectedRoot common.Hash
	if verdicts[0].Kind == types.Rejected {
		rejectedRoot, err = merkle.Root([]common.Hash{tx.Hash()})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Fatal, err, "sumeragi: computing genesis rejected merkle root")
		}
	}

	b := &types.Block{
		Header: types.BlockHeader{
			Height:                 0,
			CreationTimeMs:         time.Now().UnixMilli(),
			TransactionsMerkleRoot: txRoot,
			RejectedMerkleRoot:     rejectedRoot,
		},
	}
	b.Transactions = []types.TransactionWithVerdict{{Transaction: *tx, Verdict: verdicts[0]}}
	sig := signHeader(b.Header)
	b.Signatures = []types.Signature{{PublicKey: key, Sig: sig}}

	return b, s.commitLocked(b)
}

func (s *Sumeragi) blockAt(height uint64) *types.Block {
	b, _ := s.blocks.Get(height)
	return b
}

// commitLocked persists and applies a block, assuming mu is held.
func (s *Sumeragi) commitLocked(b *types.Block) error {
	if err := s.blocks.Append(b); err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "sumeragi: appending committed block to kura")
	}
	if err := s.wsv.Apply(b); err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "sumeragi: applying committed block to wsv")
	}
	for _, twv := range b.Transactions {
		s.queue.Remove(twv.Transaction.Hash())
		if s.events != nil && twv.Verdict.Kind == types.Rejected {
			s.events.Rejections.Send(event.TransactionRejected{
				Height: b.Header.Height,
				Hash:   twv.Transaction.Hash(),
				Kind:   twv.Verdict.Kind,
				Reason: twv.Verdict.Reason,
			})
		}
	}
	s.inFlight = nil
	s.viewChangeIndex = 0
	s.proofs.reset()
	s.logger.Info("sumeragi: committed block", "height", b.Header.Height, "txs", len(b.Transactions))
	if s.events != nil {
		s.events.Commits.Send(event.BlockCommitted{Height: b.Header.Height, Hash: b.Header.Hash()})
	}
	return nil
}

// AcceptForeignBlock implements the soft-fork recovery path (§4.5
// "Soft-fork handling"): if the local block at b.Header.Height lacks 2f+1
// signatures from the peer set of b's view, truncate and replace it.
func (s *Sumeragi) AcceptForeignBlock(b *types.Block, newViewPeers types.PeerSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := s.blockAt(b.Header.Height)
	if local == nil {
		return xerrors.New(xerrors.Protocol, "sumeragi: no local block at that height to soft-fork")
	}
	if countValidSignatures(local, newViewPeers) >= newViewPeers.Quorum() {
		return xerrors.New(xerrors.Protocol, "sumeragi: local block already has quorum under the new view; refusing to fork")
	}
	if countValidSignatures(b, newViewPeers) < newViewPeers.Quorum() {
		return xerrors.New(xerrors.Protocol, "sumeragi: foreign block lacks quorum under the new view")
	}
	if err := s.blocks.TruncateTo(b.Header.Height - 1); err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "sumeragi: truncating kura for soft fork")
	}
	if err := s.wsv.Rollback(b.Header.Height - 1); err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "sumeragi: rolling back wsv for soft fork")
	}
	return s.commitLocked(b)
}

// countValidSignatures reports how many of b's signatures belong to
// distinct members of peers. It does not itself verify cryptographic
// validity — that happens before a signature is ever appended to a block —
// it counts membership, which is what the quorum check in §9 needs.
func countValidSignatures(b *types.Block, peers types.PeerSet) int {
	seen := map[common.PublicKey]struct{}{}
	count := 0
	for _, sig := range b.Signatures {
		if peers.IndexOf(sig.PublicKey) < 0 {
			continue
		}
		if _, dup := seen[sig.PublicKey]; dup {
			continue
		}
		seen[sig.PublicKey] = struct{}{}
		count++
	}
	return count
}

// Package blocksync implements the catch-up protocol (§4.6): periodic
// height/top-hash announcement, range-fetch on detecting a lagging local
// chain, and quorum-verified application of the fetched blocks through the
// same commit path consensus uses. Grounded on the request/response and
// peer-bookkeeping shape of eth/downloader's synchroniser, adapted from
// Ethereum's single canonical-chain download to Iroha's quorum-gated block
// application.
package blocksync

import (
	"math/rand"
	"time"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/common/mclock"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/log"
	"github.com/hyperledger/iroha-sub011/p2p"
)

// BlockSource is the slice of *kura.Store blocksync needs to serve
// range-fetch requests and to read its own current top hash.
type BlockSource interface {
	Get(height uint64) (*types.Block, error)
}

// WorldState reports the locally applied height, used both to decide
// whether an announcement indicates we're lagging and to build our own.
type WorldState interface {
	Height() uint64
}

// Committer is the narrow slice of *sumeragi.Sumeragi blocksync feeds
// synced blocks through, so a fetched block is verified and applied exactly
// the way a consensus-committed one would be (§4.6 "fed to the same commit
// path as consensus").
type Committer interface {
	AcceptSyncedBlock(b *types.Block, peers types.PeerSet) error
}

// Transport is what blocksync needs from the networking layer. p2p.Host
// satisfies this via SendBytes/Peers; tests use an in-memory fake.
type Transport interface {
	Peers() []common.PeerID
	SendBytes(to common.PeerID, kind p2p.Kind, body []byte) error
}

// Config controls announcement cadence and fetch sizing (§4.6).
type Config struct {
	Period    int64 // milliseconds between announcement rounds
	FanOut    int   // peers announced to per round
	BatchSize int   // max blocks requested per range-fetch
}

func DefaultConfig() Config {
	return Config{Period: 5000, FanOut: 3, BatchSize: 128}
}

// Syncer drives periodic announcement and handles inbound announcements,
// range requests, and range responses.
type Syncer struct {
	cfg    Config
	blocks BlockSource
	wsv    WorldState
	peers  types.PeerSet
	commit Committer
	trans  Transport
	clock  mclock.Clock
	logger log.Logger

	stop chan struct{}
	done chan struct{}
}

func New(cfg Config, blocks BlockSource, wsv WorldState, peers types.PeerSet, commit Committer, trans Transport, clock mclock.Clock, logger log.Logger) *Syncer {
	if clock == nil {
		clock = mclock.System{}
	}
	if logger == nil {
		logger = log.Root
	}
	return &Syncer{
		cfg: cfg, blocks: blocks, wsv: wsv, peers: peers, commit: commit, trans: trans, clock: clock, logger: logger,
		stop: make(chan struct{}), done: make(chan struct{}),
	}
}

func (s *Syncer) Start() { go s.loop() }

func (s *Syncer) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Syncer) loop() {
	defer close(s.done)
	period := time.Duration(s.cfg.Period) * time.Millisecond
	timer := s.clock.NewTimer(period)
	for {
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C():
			s.RunOnce()
			timer.Reset(period)
		}
	}
}

// RunOnce announces this peer's current tip to a random fan-out subset,
// exported for deterministic test/simulation drivers.
func (s *Syncer) RunOnce() {
	peers := s.trans.Peers()
	if len(peers) == 0 {
		return
	}
	ann := Announcement{Height: s.wsv.Height()}
	if top, err := s.blocks.Get(s.wsv.Height()); err == nil && top != nil {
		ann.TopHash = top.Header.Hash()
	}
	body := frame(subAnnouncement, encodeAnnouncement(ann))
	for _, p := range sampleFanOut(peers, s.cfg.FanOut) {
		if err := s.trans.SendBytes(p, p2p.KindBlockSync, body); err != nil {
			s.logger.Warn("blocksync: sending announcement failed", "peer", p, "err", err)
		}
	}
}

// Receive dispatches one inbound block-sync frame. Wired to
// p2p.Host.Handle(p2p.KindBlockSync, ...) by the caller assembling the
// node.
func (s *Syncer) Receive(from common.PeerID, body []byte) {
	kind, rest, err := unframe(body)
	if err != nil {
		s.logger.Debug("blocksync: dropping malformed frame", "from", from, "err", err)
		return
	}
	switch kind {
	case subAnnouncement:
		s.handleAnnouncement(from, rest)
	case subRangeRequest:
		s.handleRangeRequest(from, rest)
	case subRangeResponse:
		s.handleRangeResponse(from, rest)
	default:
		s.logger.Debug("blocksync: unknown sub-kind", "from", from, "kind", kind)
	}
}

func (s *Syncer) handleAnnouncement(from common.PeerID, body []byte) {
	ann, err := decodeAnnouncement(body)
	if err != nil {
		s.logger.Debug("blocksync: malformed announcement", "from", from, "err", err)
		return
	}
	local := s.wsv.Height()
	if ann.Height <= local {
		return
	}
	req := rangeRequest{Start: local + 1, Count: uint32(s.cfg.BatchSize)}
	if err := s.trans.SendBytes(from, p2p.KindBlockSync, frame(subRangeRequest, encodeRangeRequest(req))); err != nil {
		s.logger.Warn("blocksync: requesting range failed", "peer", from, "err", err)
	}
}

func (s *Syncer) handleRangeRequest(from common.PeerID, body []byte) {
	req, err := decodeRangeRequest(body)
	if err != nil {
		s.logger.Debug("blocksync: malformed range request", "from", from, "err", err)
		return
	}
	var out []*types.Block
	for h := req.Start; h < req.Start+uint64(req.Count); h++ {
		b, err := s.blocks.Get(h)
		if err != nil || b == nil {
			break
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return
	}
	if err := s.trans.SendBytes(from, p2p.KindBlockSync, frame(subRangeResponse, encodeBlockBatch(out))); err != nil {
		s.logger.Warn("blocksync: sending range response failed", "peer", from, "err", err)
	}
}

// handleRangeResponse verifies and applies each block in order (§4.6
// "verified (hash chain, signature quorum ... ) and fed to the same commit
// path"). It stops at the first failure rather than skipping ahead: a gap
// would leave WSV/Kura at a non-contiguous height, which nothing in this
// system tolerates (§9 "ascending height" invariant).
func (s *Syncer) handleRangeResponse(from common.PeerID, body []byte) {
	blocks, err := decodeBlockBatch(body)
	if err != nil {
		s.logger.Debug("blocksync: malformed range response", "from", from, "err", err)
		return
	}
	for _, b := range blocks {
		if b.Header.Height != s.wsv.Height()+1 {
			continue // stale or out-of-order; a later announcement will retrigger the right range
		}
		if err := s.commit.AcceptSyncedBlock(b, s.peers); err != nil {
			s.logger.Warn("blocksync: rejecting synced block; peer set may be partitioned or Byzantine",
				"from", from, "height", b.Header.Height, "err", err)
			return
		}
	}
}

func sampleFanOut(peers []common.PeerID, fanOut int) []common.PeerID {
	if fanOut >= len(peers) {
		out := make([]common.PeerID, len(peers))
		copy(out, peers)
		return out
	}
	perm := rand.Perm(len(peers))[:fanOut]
	out := make([]common.PeerID, fanOut)
	for i, idx := range perm {
		out[i] = peers[idx]
	}
	return out
}

// Package gossiper implements periodic transaction and peer-list flooding
// (§4.4): every period P, each peer sends a random batch of up to B of its
// queued transactions to a random subset of peers, re-validating before
// forwarding so stale or already-committed transactions never amplify.
package gossiper

import (
	"math/rand"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/common/mclock"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/log"
)

// Queue is the subset of *txqueue.Queue the gossiper needs: it reads a
// random sample to flood out, and folds in transactions received from
// peers.
type Queue interface {
	RandomSubset(n int) []*types.Transaction
	Push(tx *types.Transaction) error
	Has(hash common.Hash) bool
}

// CommittedIndex lets the gossiper silently drop transactions that were
// committed since they were queued, instead of re-gossiping dead traffic.
type CommittedIndex interface {
	HasTransaction(hash common.Hash) bool
}

// Transport is what the gossiper needs from the networking layer: the
// current peer list and a way to unicast a batch to one of them. p2p.Host
// satisfies this; tests use an in-memory fake.
type Transport interface {
	Peers() []common.PeerID
	SendTransactions(to common.PeerID, txs []*types.Transaction) error
}

// Config controls gossip cadence (§4.4).
type Config struct {
	Period      int64 // milliseconds between rounds
	BatchSize   int   // B: transactions sampled per round
	FanOut      int   // number of peers each round targets
	DedupWindow int   // capacity of the per-peer echo-suppression cache
}

func DefaultConfig() Config {
	return Config{Period: 1000, BatchSize: 500, FanOut: 4, DedupWindow: 8192}
}

// echoKey pairs a peer with a transaction hash so the dedup cache can
// answer "has this peer already sent us this transaction" rather than
// just "have we seen this transaction at all".
type echoKey struct {
	peer common.PeerID
	hash common.Hash
}

// Gossiper drives the periodic flood. Start runs it in its own goroutine
// until Stop is called; RunOnce triggers a single round.
type Gossiper struct {
	cfg    Config
	queue  Queue
	index  CommittedIndex
	trans  Transport
	clock  mclock.Clock
	logger log.Logger

	// echoed tracks which peer most recently sent us which transaction, so
	// a round never re-broadcasts a transaction back to the peer that just
	// gossiped it to us (§4.4 "this is flooding, not pull", generalized
	// with a bounded recency window rather than unbounded amplification).
	echoed *lru.Cache[echoKey, struct{}]

	stop chan struct{}
	done chan struct{}
}

func New(cfg Config, queue Queue, index CommittedIndex, trans Transport, clock mclock.Clock, logger log.Logger) *Gossiper {
	if clock == nil {
		clock = mclock.System{}
	}
	if logger == nil {
		logger = log.Root
	}
	window := cfg.DedupWindow
	if window <= 0 {
		window = DefaultConfig().DedupWindow
	}
	echoed, _ := lru.New[echoKey, struct{}](window)
	return &Gossiper{
		cfg: cfg, queue: queue, index: index, trans: trans, clock: clock, logger: logger,
		echoed: echoed,
		stop:   make(chan struct{}), done: make(chan struct{}),
	}
}

// Start runs the gossip loop in its own goroutine until Stop is called.
func (g *Gossiper) Start() {
	go g.loop()
}

func (g *Gossiper) Stop() {
	close(g.stop)
	<-g.done
}

func (g *Gossiper) loop() {
	defer close(g.done)
	period := time.Duration(g.cfg.Period) * time.Millisecond
	timer := g.clock.NewTimer(period)
	for {
		select {
		case <-g.stop:
			timer.Stop()
			return
		case <-timer.C():
			g.round()
			timer.Reset(period)
		}
	}
}

// round performs one gossip cycle: sample the queue, pick fan-out peers,
// send. Exported as RunOnce so tests and a deterministic simulation driver
// can trigger rounds without waiting on the timer.
func (g *Gossiper) RunOnce() { g.round() }

func (g *Gossiper) round() {
	batch := g.queue.RandomSubset(g.cfg.BatchSize)
	if len(batch) == 0 {
		return
	}
	peers := g.trans.Peers()
	if len(peers) == 0 {
		return
	}
	targets := sampleFanOut(peers, g.cfg.FanOut)
	for _, p := range targets {
		toSend := g.dropAlreadyEchoed(p, batch)
		if len(toSend) == 0 {
			continue
		}
		if err := g.trans.SendTransactions(p, toSend); err != nil {
			g.logger.Warn("gossiper: send failed", "peer", p, "err", err)
		}
	}
}

// dropAlreadyEchoed filters out any transaction p itself gossiped to us
// recently, since sending it straight back would only waste bandwidth.
func (g *Gossiper) dropAlreadyEchoed(p common.PeerID, batch []*types.Transaction) []*types.Transaction {
	out := make([]*types.Transaction, 0, len(batch))
	for _, tx := range batch {
		if g.echoed.Contains(echoKey{peer: p, hash: tx.Hash()}) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Receive handles a batch of transactions gossiped in from a peer,
// re-validating each before admitting it to the local queue: already-
// committed or already-queued transactions are silently dropped rather than
// forwarded again, which is what keeps the flood from amplifying forever
// (§4.4 "re-validation ... silent drop").
func (g *Gossiper) Receive(from common.PeerID, txs []*types.Transaction) {
	for _, tx := range txs {
		hash := tx.Hash()
		g.echoed.Add(echoKey{peer: from, hash: hash}, struct{}{})
		if g.queue.Has(hash) {
			continue
		}
		if g.index != nil && g.index.HasTransaction(hash) {
			continue
		}
		if err := g.queue.Push(tx); err != nil {
			g.logger.Debug("gossiper: rejected inbound transaction", "from", from, "hash", hash, "err", err)
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

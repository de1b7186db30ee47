package api

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hyperledger/iroha-sub011/config"
	"github.com/hyperledger/iroha-sub011/core/kura"
	"github.com/hyperledger/iroha-sub011/core/txqueue"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/core/wsv"
	"github.com/hyperledger/iroha-sub011/event"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
)

// Peers is the slice of *p2p.Host a Node needs to report status without
// importing p2p's connection-management internals.
type Peers interface {
	Peers() []PeerID
}

// Node wires kura, wsv, the transaction queue, and the peer host into one
// value that satisfies every interface in this package. Torii (or any
// other gateway process) is expected to hold a Node behind these narrower
// interfaces rather than the concrete type, so swapping the gateway never
// requires touching the core.
type Node struct {
	queue  *txqueue.Queue
	blocks *kura.Store
	wsv    *wsv.WSV
	peers  Peers
	cfg    *config.Config
	bus    *event.Bus

	startedAt time.Time

	txsAccepted atomic.Uint64
	txsRejected atomic.Uint64
	viewChanges atomic.Uint64
}

// NewNode wires a Node and starts the background goroutine that keeps its
// status counters current by subscribing to the event bus, the same
// translation cmd/iroha's feedMetrics performs for Prometheus.
func NewNode(queue *txqueue.Queue, blocks *kura.Store, worldState *wsv.WSV, peers Peers, cfg *config.Config, bus *event.Bus) *Node {
	n := &Node{queue: queue, blocks: blocks, wsv: worldState, peers: peers, cfg: cfg, bus: bus, startedAt: time.Now()}
	go n.countEvents()
	return n
}

func (n *Node) countEvents() {
	commits := make(chan event.BlockCommitted, 16)
	rejections := make(chan event.TransactionRejected, 16)
	viewChanges := make(chan event.ViewChanged, 16)
	n.bus.Commits.Subscribe(commits)
	n.bus.Rejections.Subscribe(rejections)
	n.bus.ViewChanges.Subscribe(viewChanges)
	for {
		select {
		case <-commits:
			n.txsAccepted.Add(1)
		case <-rejections:
			n.txsRejected.Add(1)
		case <-viewChanges:
			n.viewChanges.Add(1)
		}
	}
}

func (n *Node) Submit(tx *types.Transaction) error {
	return n.queue.Push(tx)
}

func (n *Node) Query(ctx context.Context, signedQuery []byte) (QueryResult, error) {
	return QueryResult{}, xerrors.New(xerrors.Protocol, "api: query interpretation belongs to the instruction schema, which this component does not implement")
}

func (n *Node) SubscribeCommits(ch chan<- event.BlockCommitted) event.Subscription {
	return n.bus.Commits.Subscribe(ch)
}

func (n *Node) SubscribeRejections(ch chan<- event.TransactionRejected) event.Subscription {
	return n.bus.Rejections.Subscribe(ch)
}

func (n *Node) SubscribeViewChanges(ch chan<- event.ViewChanged) event.Subscription {
	return n.bus.ViewChanges.Subscribe(ch)
}

func (n *Node) BlockRange(from, to uint64) ([]*types.Block, error) {
	if to < from {
		return nil, xerrors.New(xerrors.Protocol, "api: block range end precedes start")
	}
	return n.blocks.GetRange(from, int(to-from)+1)
}

func (n *Node) Status() Status {
	return Status{
		Peers:       len(n.peers.Peers()),
		Blocks:      n.blocks.Height(),
		TxsAccepted: n.txsAccepted.Load(),
		TxsRejected: n.txsRejected.Load(),
		UptimeMs:    time.Since(n.startedAt).Milliseconds(),
		QueueSize:   n.queue.Len(),
		ViewChanges: n.viewChanges.Load(),
	}
}

func (n *Node) Healthy() error {
	if n.blocks.Height() == 0 && !n.cfg.GenesisSubmitter {
		return xerrors.New(xerrors.Protocol, "api: awaiting genesis from the designated submitter")
	}
	return nil
}

func (n *Node) Current() config.Hot {
	return n.cfg.Hot
}

func (n *Node) Reload(h config.Hot) error {
	n.cfg.ApplyHot(h)
	return nil
}

var (
	_ TransactionSubmitter = (*Node)(nil)
	_ QueryService         = (*Node)(nil)
	_ EventSubscriber      = (*Node)(nil)
	_ BlockStreamer        = (*Node)(nil)
	_ StatusProvider       = (*Node)(nil)
	_ HealthChecker        = (*Node)(nil)
	_ ConfigurationService = (*Node)(nil)
)

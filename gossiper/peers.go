package gossiper

import (
	"time"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/common/mclock"
	"github.com/hyperledger/iroha-sub011/log"
)

// PeerTransport is the networking surface PeersGossiper needs: the locally
// known peer list, and a way to broadcast it plus receive others' lists.
// Distinct from Transport above since peer-list gossip and transaction
// gossip run on independent schedules (§9 supplemented feature: the
// distilled spec treats peer discovery as the transport's concern, but the
// original implementation runs it as its own periodic gossip, same shape as
// transaction flooding).
type PeerTransport interface {
	Peers() []common.PeerID
	SendPeerList(to common.PeerID, peers []common.PeerID) error
}

// PeerSink receives peers discovered via gossip so they can be merged into
// whatever holds the authoritative set (WSV's peer table, for a registered
// peer; a local known-peers cache, for bootstrap).
type PeerSink interface {
	AddPeer(common.PeerID)
}

// PeersGossiper periodically floods the locally known peer list to a random
// sample of peers, and merges in whatever peers it's told about, so a
// freshly joined node discovers the network without needing a full static
// peer list configured up front.
type PeersGossiper struct {
	period time.Duration
	fanOut int
	trans  PeerTransport
	sink   PeerSink
	clock  mclock.Clock
	logger log.Logger

	stop chan struct{}
	done chan struct{}
}

func NewPeersGossiper(period time.Duration, fanOut int, trans PeerTransport, sink PeerSink, clock mclock.Clock, logger log.Logger) *PeersGossiper {
	if clock == nil {
		clock = mclock.System{}
	}
	if logger == nil {
		logger = log.Root
	}
	return &PeersGossiper{
		period: period, fanOut: fanOut, trans: trans, sink: sink, clock: clock, logger: logger,
		stop: make(chan struct{}), done: make(chan struct{}),
	}
}

func (g *PeersGossiper) Start() { go g.loop() }

func (g *PeersGossiper) Stop() {
	close(g.stop)
	<-g.done
}

func (g *PeersGossiper) loop() {
	defer close(g.done)
	timer := g.clock.NewTimer(g.period)
	for {
		select {
		case <-g.stop:
			timer.Stop()
			return
		case <-timer.C():
			g.RunOnce()
			timer.Reset(g.period)
		}
	}
}

func (g *PeersGossiper) RunOnce() {
	peers := g.trans.Peers()
	if len(peers) == 0 {
		return
	}
	for _, target := range sampleFanOut(peers, g.fanOut) {
		if err := g.trans.SendPeerList(target, peers); err != nil {
			g.logger.Warn("peers_gossiper: send failed", "peer", target, "err", err)
		}
	}
}

// Receive merges an inbound peer list into the sink.
func (g *PeersGossiper) Receive(from common.PeerID, peers []common.PeerID) {
	for _, p := range peers {
		if p.Equal(from) {
			continue
		}
		g.sink.AddPeer(p)
	}
}

package gossiper

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
)

type fakeQueue struct {
	mu     sync.Mutex
	txs    map[common.Hash]*types.Transaction
	pushed []*types.Transaction
}

func newFakeQueue() *fakeQueue { return &fakeQueue{txs: map[common.Hash]*types.Transaction{}} }

func (q *fakeQueue) RandomSubset(n int) []*types.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*types.Transaction, 0, n)
	for _, tx := range q.txs {
		if len(out) >= n {
			break
		}
		out = append(out, tx)
	}
	return out
}

func (q *fakeQueue) Push(tx *types.Transaction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.txs[tx.Hash()] = tx
	q.pushed = append(q.pushed, tx)
	return nil
}

func (q *fakeQueue) Has(hash common.Hash) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.txs[hash]
	return ok
}

type fakeIndex struct{ committed map[common.Hash]bool }

func (f *fakeIndex) HasTransaction(h common.Hash) bool { return f.committed[h] }

type fakeTransport struct {
	peers []common.PeerID
	sent  map[common.PeerID][]*types.Transaction
}

func (t *fakeTransport) Peers() []common.PeerID { return t.peers }

func (t *fakeTransport) SendTransactions(to common.PeerID, txs []*types.Transaction) error {
	if t.sent == nil {
		t.sent = map[common.PeerID][]*types.Transaction{}
	}
	t.sent[to] = append(t.sent[to], txs...)
	return nil
}

func testTx(nonce uint64) *types.Transaction {
	return &types.Transaction{Payload: types.Payload{ChainID: "test", Nonce: nonce}}
}

func TestRunOnceFloodsToPeers(t *testing.T) {
	q := newFakeQueue()
	require.NoError(t, q.Push(testTx(1)))
	require.NoError(t, q.Push(testTx(2)))

	peer := common.PeerID{Address: "peer1", PublicKey: common.PublicKey{1}}
	trans := &fakeTransport{peers: []common.PeerID{peer}}

	g := New(Config{Period: 1000, BatchSize: 10, FanOut: 1}, q, &fakeIndex{committed: map[common.Hash]bool{}}, trans, nil, nil)
	g.RunOnce()

	require.Len(t, trans.sent[peer], 2)
}

func TestRunOnceNoPeersIsNoop(t *testing.T) {
	q := newFakeQueue()
	require.NoError(t, q.Push(testTx(1)))
	trans := &fakeTransport{}
	g := New(DefaultConfig(), q, nil, trans, nil, nil)
	g.RunOnce() // must not panic
}

func TestReceiveDropsAlreadyCommitted(t *testing.T) {
	q := newFakeQueue()
	idx := &fakeIndex{committed: map[common.Hash]bool{}}
	tx := testTx(3)
	idx.committed[tx.Hash()] = true

	g := New(DefaultConfig(), q, idx, &fakeTransport{}, nil, nil)
	g.Receive(common.PeerID{}, []*types.Transaction{tx})

	require.False(t, q.Has(tx.Hash()), "already-committed transactions must not be re-admitted")
}

func TestRunOnceSkipsPeerThatJustEchoedTheTransaction(t *testing.T) {
	q := newFakeQueue()
	tx := testTx(5)
	require.NoError(t, q.Push(tx))

	peer := common.PeerID{Address: "peer1", PublicKey: common.PublicKey{1}}
	trans := &fakeTransport{peers: []common.PeerID{peer}}

	g := New(Config{Period: 1000, BatchSize: 10, FanOut: 1}, q, &fakeIndex{committed: map[common.Hash]bool{}}, trans, nil, nil)
	g.Receive(peer, []*types.Transaction{tx})

	g.RunOnce()

	require.Empty(t, trans.sent[peer], "must not re-broadcast a transaction back to the peer that just gossiped it in")
}

func TestReceiveAdmitsNewTransaction(t *testing.T) {
	q := newFakeQueue()
	g := New(DefaultConfig(), q, &fakeIndex{committed: map[common.Hash]bool{}}, &fakeTransport{}, nil, nil)

	tx := testTx(4)
	g.Receive(common.PeerID{}, []*types.Transaction{tx})

	require.True(t, q.Has(tx.Hash()))
}

type fakePeerTransport struct {
	peers []common.PeerID
	sent  map[common.PeerID][][]common.PeerID
}

func (t *fakePeerTransport) Peers() []common.PeerID { return t.peers }

func (t *fakePeerTransport) SendPeerList(to common.PeerID, peers []common.PeerID) error {
	if t.sent == nil {
		t.sent = map[common.PeerID][][]common.PeerID{}
	}
	t.sent[to] = append(t.sent[to], peers)
	return nil
}

type fakeSink struct{ added []common.PeerID }

func (s *fakeSink) AddPeer(p common.PeerID) { s.added = append(s.added, p) }

func TestPeersGossiperRunOnceBroadcasts(t *testing.T) {
	peer := common.PeerID{Address: "p1", PublicKey: common.PublicKey{1}}
	trans := &fakePeerTransport{peers: []common.PeerID{peer}}
	sink := &fakeSink{}

	g := NewPeersGossiper(0, 1, trans, sink, nil, nil)
	g.RunOnce()

	require.Len(t, trans.sent[peer], 1)
}

func TestPeersGossiperReceiveSkipsSelf(t *testing.T) {
	sink := &fakeSink{}
	g := NewPeersGossiper(0, 1, &fakePeerTransport{}, sink, nil, nil)

	self := common.PeerID{Address: "self", PublicKey: common.PublicKey{9}}
	other := common.PeerID{Address: "other", PublicKey: common.PublicKey{2}}
	g.Receive(self, []common.PeerID{self, other})

	require.Len(t, sink.added, 1)
	require.Equal(t, other, sink.added[0])
}

package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/config"
	"github.com/hyperledger/iroha-sub011/core/kura"
	"github.com/hyperledger/iroha-sub011/core/txqueue"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/core/wsv"
	"github.com/hyperledger/iroha-sub011/event"
)

type fakeIndex struct{}

func (fakeIndex) HasTransaction(common.Hash) bool { return false }

type fakePeers struct{ ids []PeerID }

func (f fakePeers) Peers() []PeerID { return f.ids }

func newTestNode(t *testing.T) (*Node, *event.Bus) {
	t.Helper()
	dir := t.TempDir()
	store, _, err := kura.Init(dir, 10, kura.Fast, nil, nil)
	require.NoError(t, err)

	w, err := wsv.Open("", store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	q := txqueue.New(txqueue.DefaultConfig(), fakeIndex{}, nil)
	cfg := &config.Config{ChainID: "test"}
	bus := &event.Bus{}

	n := NewNode(q, store, w, fakePeers{}, cfg, bus)
	return n, bus
}

func TestNodeSubmitAddsToQueue(t *testing.T) {
	n, _ := newTestNode(t)
	tx := &types.Transaction{Payload: types.Payload{
		ChainID:        "test",
		Authority:      common.AccountID{Name: "alice", Domain: "wonderland"},
		CreationTimeMs: time.Now().UnixMilli(),
		TTLMs:          time.Hour.Milliseconds(),
	}}

	require.NoError(t, n.Submit(tx))
	require.Equal(t, 1, n.Status().QueueSize)
}

func TestNodeStatusCountsEvents(t *testing.T) {
	n, bus := newTestNode(t)

	done := make(chan struct{})
	go func() {
		bus.Commits.Send(event.BlockCommitted{Height: 1})
		bus.Rejections.Send(event.TransactionRejected{Height: 1})
		bus.ViewChanges.Send(event.ViewChanged{NewIndex: 1})
		close(done)
	}()
	<-done

	require.Eventually(t, func() bool {
		s := n.Status()
		return s.TxsAccepted == 1 && s.TxsRejected == 1 && s.ViewChanges == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNodeHealthyBeforeGenesisWithoutSubmitterRole(t *testing.T) {
	n, _ := newTestNode(t)
	require.Error(t, n.Healthy())
}

func TestNodeConfigurationReload(t *testing.T) {
	n, _ := newTestNode(t)
	newHot := config.Hot{LogLevel: "debug"}
	require.NoError(t, n.Reload(newHot))
	require.Equal(t, "debug", n.Current().LogLevel)
}

package blocksync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/p2p"
)

type fakeBlocks struct {
	byHeight map[uint64]*types.Block
}

func (b *fakeBlocks) Get(height uint64) (*types.Block, error) { return b.byHeight[height], nil }

type fakeWSV struct{ height uint64 }

func (w *fakeWSV) Height() uint64 { return w.height }

type fakeCommitter struct {
	wsv     *fakeWSV
	applied []*types.Block
	rejects int
}

func (c *fakeCommitter) AcceptSyncedBlock(b *types.Block, peers types.PeerSet) error {
	quorum := peers.Quorum()
	count := 0
	seen := map[common.PublicKey]bool{}
	for _, sig := range b.Signatures {
		if !seen[sig.PublicKey] {
			seen[sig.PublicKey] = true
			count++
		}
	}
	if count < quorum {
		c.rejects++
		return assertErr("insufficient signatures")
	}
	c.applied = append(c.applied, b)
	c.wsv.height = b.Header.Height
	return nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type sentMsg struct {
	to   common.PeerID
	kind p2p.Kind
	body []byte
}

type fakeTransport struct {
	peers []common.PeerID
	sent  []sentMsg
}

func (t *fakeTransport) Peers() []common.PeerID { return t.peers }

func (t *fakeTransport) SendBytes(to common.PeerID, kind p2p.Kind, body []byte) error {
	t.sent = append(t.sent, sentMsg{to: to, kind: kind, body: body})
	return nil
}

func peerID(b byte) common.PeerID {
	return common.PeerID{Address: "peer", PublicKey: common.PublicKey{b}}
}

func signedBlock(height uint64, signers ...byte) *types.Block {
	b := &types.Block{Header: types.BlockHeader{Height: height}}
	for _, s := range signers {
		b.Signatures = append(b.Signatures, types.Signature{PublicKey: common.PublicKey{s}})
	}
	return b
}

func TestRunOnceAnnouncesToFanOutPeers(t *testing.T) {
	blocks := &fakeBlocks{byHeight: map[uint64]*types.Block{0: signedBlock(0, 1)}}
	wsv := &fakeWSV{height: 0}
	peers := types.NewPeerSet([]common.PeerID{peerID(1), peerID(2), peerID(3), peerID(4)})
	trans := &fakeTransport{peers: []common.PeerID{peerID(2), peerID(3), peerID(4)}}
	commit := &fakeCommitter{wsv: wsv}

	s := New(Config{FanOut: 2, BatchSize: 16}, blocks, wsv, peers, commit, trans, nil, nil)
	s.RunOnce()

	require.Len(t, trans.sent, 2)
	for _, m := range trans.sent {
		require.Equal(t, p2p.KindBlockSync, m.kind)
	}
}

func TestReceiveAnnouncementHigherHeightRequestsRange(t *testing.T) {
	blocks := &fakeBlocks{byHeight: map[uint64]*types.Block{}}
	wsv := &fakeWSV{height: 2}
	peers := types.NewPeerSet([]common.PeerID{peerID(1)})
	trans := &fakeTransport{}
	commit := &fakeCommitter{wsv: wsv}

	s := New(Config{BatchSize: 10}, blocks, wsv, peers, commit, trans, nil, nil)

	ann := Announcement{Height: 5}
	s.Receive(peerID(9), frame(subAnnouncement, encodeAnnouncement(ann)))

	require.Len(t, trans.sent, 1)
	req, err := decodeRangeRequest(mustUnframe(t, trans.sent[0].body))
	require.NoError(t, err)
	require.Equal(t, uint64(3), req.Start)
	require.Equal(t, uint32(10), req.Count)
}

func TestReceiveAnnouncementNotAheadIsIgnored(t *testing.T) {
	wsv := &fakeWSV{height: 5}
	trans := &fakeTransport{}
	s := New(Config{}, &fakeBlocks{}, wsv, types.PeerSet{}, &fakeCommitter{wsv: wsv}, trans, nil, nil)

	s.Receive(peerID(9), frame(subAnnouncement, encodeAnnouncement(Announcement{Height: 5})))
	require.Empty(t, trans.sent, "a peer at the same height triggers no range request")
}

func TestReceiveRangeRequestServesAvailableBlocks(t *testing.T) {
	blocks := &fakeBlocks{byHeight: map[uint64]*types.Block{
		1: signedBlock(1, 1), 2: signedBlock(2, 1), 3: signedBlock(3, 1),
	}}
	wsv := &fakeWSV{height: 3}
	trans := &fakeTransport{}
	s := New(Config{}, blocks, wsv, types.PeerSet{}, &fakeCommitter{wsv: wsv}, trans, nil, nil)

	s.Receive(peerID(9), frame(subRangeRequest, encodeRangeRequest(rangeRequest{Start: 1, Count: 10})))

	require.Len(t, trans.sent, 1)
	got, err := decodeBlockBatch(mustUnframe(t, trans.sent[0].body))
	require.NoError(t, err)
	require.Len(t, got, 3, "must stop at the first missing height rather than padding the batch")
}

func TestReceiveRangeResponseAppliesInOrderViaCommitter(t *testing.T) {
	wsv := &fakeWSV{height: 0}
	peers := types.NewPeerSet([]common.PeerID{peerID(1), peerID(2), peerID(3)})
	commit := &fakeCommitter{wsv: wsv}
	trans := &fakeTransport{}
	s := New(Config{}, &fakeBlocks{}, wsv, peers, commit, trans, nil, nil)

	batch := []*types.Block{
		signedBlock(1, 1, 2),
		signedBlock(2, 1, 2),
	}
	s.Receive(peerID(9), frame(subRangeResponse, encodeBlockBatch(batch)))

	require.Len(t, commit.applied, 2)
	require.Equal(t, uint64(2), wsv.height)
}

func TestReceiveRangeResponseStopsOnQuorumFailure(t *testing.T) {
	wsv := &fakeWSV{height: 0}
	peers := types.NewPeerSet([]common.PeerID{peerID(1), peerID(2), peerID(3), peerID(4)}) // quorum = 3
	commit := &fakeCommitter{wsv: wsv}
	trans := &fakeTransport{}
	s := New(Config{}, &fakeBlocks{}, wsv, peers, commit, trans, nil, nil)

	batch := []*types.Block{
		signedBlock(1, 1), // only one signer, quorum is 3: rejected
		signedBlock(2, 1, 2, 3),
	}
	s.Receive(peerID(9), frame(subRangeResponse, encodeBlockBatch(batch)))

	require.Equal(t, 1, commit.rejects)
	require.Empty(t, commit.applied, "the second block must never apply once the first is rejected, to avoid a height gap")
	require.Equal(t, uint64(0), wsv.height)
}

func mustUnframe(t *testing.T, body []byte) []byte {
	t.Helper()
	_, rest, err := unframe(body)
	require.NoError(t, err)
	return rest
}

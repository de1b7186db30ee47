package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
)

func makePeers(n int) []common.PeerID {
	peers := make([]common.PeerID, n)
	for i := range peers {
		peers[i] = common.PeerID{Address: string(rune('a' + i))}
		peers[i].PublicKey[0] = byte(i + 1)
	}
	return peers
}

func TestQuorumMath(t *testing.T) {
	cases := []struct {
		n, f, quorum int
	}{
		{1, 0, 1},
		{4, 1, 3},
		{7, 2, 5},
		{10, 3, 7},
	}
	for _, c := range cases {
		s := NewPeerSet(makePeers(c.n))
		require.Equal(t, c.f, s.F(), "n=%d", c.n)
		require.Equal(t, c.quorum, s.Quorum(), "n=%d", c.n)
	}
}

func TestRoleRotationFourPeers(t *testing.T) {
	s := NewPeerSet(makePeers(4))

	roles0 := []Role{RoleLeader, RoleValidatingPeer, RoleProxyTail, RoleObservingPeer}
	for i, want := range roles0 {
		require.Equal(t, want, s.RoleAt(i, 0), "peer %d at view 0", i)
	}

	// after one view change, roles rotate by one slot
	leader, ok := s.LeaderAt(1)
	require.True(t, ok)
	require.True(t, leader.Equal(s.peers[1]), "leader should rotate to the next peer")
}

func TestRoleRotationSinglePeer(t *testing.T) {
	s := NewPeerSet(makePeers(1))
	require.Equal(t, RoleLeader, s.RoleAt(0, 0))
	require.Equal(t, RoleLeader, s.RoleAt(0, 5))
	tail, ok := s.ProxyTailAt(0)
	require.True(t, ok)
	require.True(t, tail.Equal(s.peers[0]), "sole peer commits unilaterally, filling both roles")
}

func TestRoleRotationTwoPeersHasNoObservers(t *testing.T) {
	s := NewPeerSet(makePeers(2))
	for v := uint64(0); v < 4; v++ {
		seen := map[Role]bool{}
		for i := range s.peers {
			seen[s.RoleAt(i, v)] = true
		}
		require.False(t, seen[RoleObservingPeer], "2-peer network must not produce observers")
	}
}

func TestPeerSetHashStableUnderSameOrder(t *testing.T) {
	peers := makePeers(4)
	a := NewPeerSet(peers)
	b := NewPeerSet(peers)
	require.Equal(t, a.Hash(), b.Hash())
}

func TestPeerSetHashChangesWithMembership(t *testing.T) {
	a := NewPeerSet(makePeers(4))
	b := NewPeerSet(makePeers(5))
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestContainsIgnoresAddress(t *testing.T) {
	peers := makePeers(3)
	s := NewPeerSet(peers)
	moved := peers[0]
	moved.Address = "elsewhere:9999"
	require.True(t, s.Contains(moved))
}

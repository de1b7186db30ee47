package types

import (
	"github.com/hyperledger/iroha-sub011/common"
)

// PeerSet is the ordered, trusted-peer list a view's roles rotate over
// (§4.5). Order matters: role assignment is deterministic in the peer
// list's index order rotated by the view-change index, exactly as
// consensus/istanbul rotates its validator set by round number.
type PeerSet struct {
	peers []common.PeerID
}

func NewPeerSet(peers []common.PeerID) PeerSet {
	cp := make([]common.PeerID, len(peers))
	copy(cp, peers)
	return PeerSet{peers: cp}
}

func (s PeerSet) Len() int { return len(s.peers) }

func (s PeerSet) Peers() []common.PeerID {
	cp := make([]common.PeerID, len(s.peers))
	copy(cp, s.peers)
	return cp
}

// N is the total peer count, conventionally 3f+1 (§4.5).
func (s PeerSet) N() int { return len(s.peers) }

// F is the maximum tolerated Byzantine peer count for this set (§4.5
// "Byzantine bound", §GLOSSARY "Quorum"). For n peers, f = floor((n-1)/3).
func (s PeerSet) F() int {
	if len(s.peers) == 0 {
		return 0
	}
	return (len(s.peers) - 1) / 3
}

// Quorum is 2f+1, the signature count required to commit a block or a
// view-change proof (§GLOSSARY "Quorum").
func (s PeerSet) Quorum() int {
	return 2*s.F() + 1
}

// Hash identifies this exact peer set, used to pin view-change proofs
// against replay after reconfiguration (§9 "View-change safety").
func (s PeerSet) Hash() common.Hash {
	e := newEncoder()
	e.writeUvarint(uint64(len(s.peers)))
	for _, p := range s.peers {
		e.buf = append(e.buf, p.PublicKey.Bytes()...)
	}
	return common.HashOf(e.bytes())
}

// Contains reports whether id's public key is a member of this set.
func (s PeerSet) Contains(id common.PeerID) bool {
	for _, p := range s.peers {
		if p.Equal(id) {
			return true
		}
	}
	return false
}

// IndexOf returns the position of id in the set, or -1.
func (s PeerSet) IndexOf(id common.PublicKey) int {
	for i, p := range s.peers {
		if p.PublicKey == id {
			return i
		}
	}
	return -1
}

// Role is a peer's assignment within the current view (§4.5).
type Role int

const (
	RoleLeader Role = iota
	RoleValidatingPeer
	RoleProxyTail
	RoleObservingPeer
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleValidatingPeer:
		return "validating_peer"
	case RoleProxyTail:
		return "proxy_tail"
	case RoleObservingPeer:
		return "observing_peer"
	default:
		return "unknown"
	}
}

// RoleAt returns the role of the peer at set-index i for view-change index
// viewChangeIndex (§4.5 "Roles per view"), counting slots from the leader
// after rotation: slot 0 leads; for n >= 4, slots 1..2f-1 validate, slot 2f
// is proxy_tail, and every slot beyond 2f observes without voting.
//
// Degenerate cases (§4.5): with n=1 the sole peer is always leader and
// proxy_tail at once; with n in [2,3] there are no observers and the last
// slot is proxy_tail (for n=2 that leaves no validating peer).
func (s PeerSet) RoleAt(peerIndex int, viewChangeIndex uint64) Role {
	n := len(s.peers)
	if n == 0 {
		return RoleObservingPeer
	}
	rotated := (peerIndex - int(viewChangeIndex%uint64(n)) + n) % n

	switch {
	case n == 1:
		return RoleLeader
	case rotated == 0:
		return RoleLeader
	case n <= 3:
		// 2-3 peer networks: no observers, last rotated slot is proxy_tail.
		if rotated == n-1 {
			return RoleProxyTail
		}
		return RoleValidatingPeer
	default:
		quorum := s.Quorum()
		switch {
		case rotated == quorum-1:
			return RoleProxyTail
		case rotated < quorum-1:
			return RoleValidatingPeer
		default:
			return RoleObservingPeer
		}
	}
}

// RolesFor computes the full role assignment for a view, keyed by public key.
func (s PeerSet) RolesFor(viewChangeIndex uint64) map[common.PublicKey]Role {
	out := make(map[common.PublicKey]Role, len(s.peers))
	for i, p := range s.peers {
		out[p.PublicKey] = s.RoleAt(i, viewChangeIndex)
	}
	return out
}

// LeaderAt returns the peer assigned RoleLeader for the given view.
func (s PeerSet) LeaderAt(viewChangeIndex uint64) (common.PeerID, bool) {
	for i, p := range s.peers {
		if s.RoleAt(i, viewChangeIndex) == RoleLeader {
			return p, true
		}
	}
	return common.PeerID{}, false
}

// ProxyTailAt returns the peer assigned RoleProxyTail for the given view.
// In a 1-peer network the sole peer fills both roles (§4.5 degenerate case).
func (s PeerSet) ProxyTailAt(viewChangeIndex uint64) (common.PeerID, bool) {
	for i, p := range s.peers {
		if s.RoleAt(i, viewChangeIndex) == RoleProxyTail {
			return p, true
		}
	}
	if len(s.peers) == 1 {
		return s.peers[0], true
	}
	return common.PeerID{}, false
}

package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesToHash(t *testing.T) {
	h := BytesToHash([]byte{5})
	var want Hash
	want[31] = 5
	require.Equal(t, want, h)
}

func TestHashOfDeterministic(t *testing.T) {
	a := HashOf([]byte("register_domain(wonderland)"))
	b := HashOf([]byte("register_domain(wonderland)"))
	require.Equal(t, a, b)

	c := HashOf([]byte("register_domain(otherland)"))
	require.NotEqual(t, a, c)
}

func TestHashTextRoundTrip(t *testing.T) {
	h := HashOf([]byte("round trip"))
	text, err := h.MarshalText()
	require.NoError(t, err)

	var back Hash
	require.NoError(t, back.UnmarshalText(text))
	require.Equal(t, h, back)
}

func TestPeerIDEqualityIgnoresAddress(t *testing.T) {
	key := PublicKey{1, 2, 3}
	a := PeerID{Address: "10.0.0.1:1337", PublicKey: key}
	b := PeerID{Address: "10.0.0.2:1337", PublicKey: key}
	require.True(t, a.Equal(b), "peers with the same public key must compare equal regardless of address")

	c := PeerID{Address: a.Address, PublicKey: PublicKey{9, 9, 9}}
	require.False(t, a.Equal(c))
}

func TestAccountIDString(t *testing.T) {
	id := AccountID{Name: "alice", Domain: "wonderland"}
	require.Equal(t, "alice@wonderland", id.String())
}

func TestAssetIDString(t *testing.T) {
	id := AssetID{
		Definition: AssetDefinitionID{Name: "rose", Domain: "wonderland"},
		Account:    AccountID{Name: "alice", Domain: "wonderland"},
	}
	require.Equal(t, "rose#wonderland@alice@wonderland", id.String())
}

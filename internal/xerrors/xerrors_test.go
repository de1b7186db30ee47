package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCarriesKind(t *testing.T) {
	err := New(Protocol, "bad signature")
	require.True(t, Is(err, Protocol))
	require.False(t, Is(err, Fatal))
	require.Equal(t, "protocol: bad signature", err.Error())
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.Nil(t, Wrap(Fatal, nil, "anything"))
}

func TestIsUnwrapsThroughFmtErrorf(t *testing.T) {
	base := New(Transient, "dial timed out")
	wrapped := fmt.Errorf("p2p: dialing peer: %w", base)
	require.True(t, Is(wrapped, Transient))
}

func TestAggregateNilWhenAllNil(t *testing.T) {
	require.Nil(t, Aggregate([]error{nil, nil}))
}

func TestAggregateCombinesNonNil(t *testing.T) {
	err := Aggregate([]error{nil, errors.New("peer1 unreachable"), errors.New("peer2 unreachable")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "peer1 unreachable")
	require.Contains(t, err.Error(), "peer2 unreachable")
}

func TestViewChangeReasonString(t *testing.T) {
	require.Equal(t, "proxy_tail_timeout", ReasonProxyTailTimeout.String())
	require.Equal(t, "leader_timeout", ReasonLeaderTimeout.String())
	require.Equal(t, "commit_timeout", ReasonCommitTimeout.String())
}

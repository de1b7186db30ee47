package p2p

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
)

func TestTransactionBatchRoundTrip(t *testing.T) {
	txs := []*types.Transaction{
		{Payload: types.Payload{ChainID: "a", Nonce: 1}},
		{Payload: types.Payload{ChainID: "b", Nonce: 2}},
	}
	encoded := encodeTransactionBatch(txs)
	decoded, err := DecodeTransactionBatch(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	require.Equal(t, txs[0].Hash(), decoded[0].Hash())
	require.Equal(t, txs[1].Hash(), decoded[1].Hash())
}

func TestPeerListRoundTrip(t *testing.T) {
	peers := []common.PeerID{
		{Address: "10.0.0.1:1337", PublicKey: common.PublicKey{1, 2, 3}},
		{Address: "10.0.0.2:1337", PublicKey: common.PublicKey{4, 5, 6}},
	}
	encoded := encodePeerList(peers)
	decoded, err := DecodePeerList(encoded)
	require.NoError(t, err)
	require.Equal(t, peers, decoded)
}

func TestDecodeTransactionBatchRejectsTruncated(t *testing.T) {
	_, err := DecodeTransactionBatch([]byte{0, 0, 0, 1})
	require.Error(t, err)
}

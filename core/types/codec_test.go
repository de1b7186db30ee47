package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
)

func TestTransactionRoundTrip(t *testing.T) {
	tx := newTestTx(7)
	tx.Payload.Metadata = map[string]string{"k": "v"}
	tx.Signatures = []Signature{{PublicKey: common.PublicKey{1, 2}, Sig: common.Signature{3, 4}}}

	encoded := EncodeTransaction(tx)
	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)

	require.Equal(t, tx.Hash(), decoded.Hash())
	require.Equal(t, tx.Signatures, decoded.Signatures)
	require.Equal(t, tx.Payload.Metadata, decoded.Payload.Metadata)
}

func TestBlockRoundTrip(t *testing.T) {
	tx := newTestTx(1)
	block := &Block{
		Header: BlockHeader{
			Height:                1,
			PrevBlockHash:         common.HashOf([]byte("genesis")),
			TransactionsMerkleRoot: common.HashOf([]byte("root")),
			CreationTimeMs:        12345,
			ViewChangeIndex:       2,
		},
		Transactions: []TransactionWithVerdict{
			{Transaction: *tx, Verdict: ApprovedVerdict()},
		},
		Signatures: []Signature{{PublicKey: common.PublicKey{9}, Sig: common.Signature{8}}},
	}

	encoded := EncodeBlock(block)
	decoded, err := DecodeBlock(encoded)
	require.NoError(t, err)

	require.Equal(t, block.Header.Hash(), decoded.Header.Hash())
	require.Len(t, decoded.Transactions, 1)
	require.Equal(t, Approved, decoded.Transactions[0].Verdict.Kind)
	require.Equal(t, block.Signatures, decoded.Signatures)
}

func TestDecodeBlockRejectsTruncatedInput(t *testing.T) {
	block := &Block{Header: BlockHeader{Height: 1}}
	encoded := EncodeBlock(block)
	_, err := DecodeBlock(encoded[:len(encoded)-2])
	require.Error(t, err)
}

package types

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
)

func TestBlockHashChangesWithPrevHash(t *testing.T) {
	b1 := BlockHeader{Height: 1, PrevBlockHash: common.HashOf([]byte("a"))}
	b2 := BlockHeader{Height: 1, PrevBlockHash: common.HashOf([]byte("b"))}
	require.NotEqual(t, b1.Hash(), b2.Hash())
}

func TestGenesisHasNoPrevHash(t *testing.T) {
	genesis := BlockHeader{Height: 0}
	require.True(t, genesis.IsGenesis())
	require.True(t, genesis.PrevBlockHash.IsZero())
}

func TestBlockApprovedOnlyIncludesApproved(t *testing.T) {
	tx1 := newTestTx(1)
	tx2 := newTestTx(2)
	block := &Block{
		Transactions: []TransactionWithVerdict{
			{Transaction: *tx1, Verdict: ApprovedVerdict()},
			{Transaction: *tx2, Verdict: RejectedVerdict("insufficient funds")},
		},
	}
	approved := block.Approved()
	require.Len(t, approved, 1)
	require.Equal(t, tx1.Hash(), approved[0])
}

func TestSignerSetDedupesByPublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var pk common.PublicKey
	copy(pk[:], pub)

	block := &Block{Signatures: []Signature{
		{PublicKey: pk, Sig: common.Signature{1}},
		{PublicKey: pk, Sig: common.Signature{2}},
	}}
	require.Len(t, block.SignerSet(), 1, "signer set must dedupe by public key regardless of signature bytes")
}

func TestSignAndVerifyHeader(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var pk common.PublicKey
	copy(pk[:], pub)

	header := BlockHeader{Height: 1}
	sig := SignHeader(priv, pk, header)
	require.True(t, VerifyHeaderSignature(header, sig))

	other := BlockHeader{Height: 2}
	require.False(t, VerifyHeaderSignature(other, sig), "signature must not verify against a different header")
}

package types

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
)

func newTestTx(nonce uint64) *Transaction {
	return &Transaction{
		Payload: Payload{
			ChainID:        "test",
			Authority:      common.AccountID{Name: "alice", Domain: "wonderland"},
			Instructions:   []Instruction{{Kind: "Mint", Payload: []byte("100 rose")}},
			CreationTimeMs: 1000,
			TTLMs:          86_400_000,
			Nonce:          nonce,
		},
	}
}

func TestTransactionHashExcludesSignatures(t *testing.T) {
	tx1 := newTestTx(1)
	tx2 := newTestTx(1)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var pk common.PublicKey
	copy(pk[:], pub)

	tx2.Signatures = append(tx2.Signatures, Signature{PublicKey: pk, Sig: Sign(priv, tx2.Hash())})

	require.Equal(t, tx1.Hash(), tx2.Hash(), "identity must exclude signatures")
}

func TestTransactionHashSensitiveToContent(t *testing.T) {
	a := newTestTx(1)
	b := newTestTx(2)
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestMetadataEncodingIsOrderIndependent(t *testing.T) {
	p1 := Payload{ChainID: "c", Metadata: map[string]string{"a": "1", "b": "2"}}
	p2 := Payload{ChainID: "c", Metadata: map[string]string{"b": "2", "a": "1"}}
	require.Equal(t, p1.Encode(), p2.Encode(), "map iteration order must not affect canonical encoding")
}

func TestVerdictStrings(t *testing.T) {
	require.Equal(t, "approved", ApprovedVerdict().Kind.String())
	require.Equal(t, "rejected", RejectedVerdict("bad signature").Kind.String())
}

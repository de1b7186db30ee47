package txqueue

import (
	"math/rand"

	"github.com/hyperledger/iroha-sub011/core/types"
)

// shuffleTransactions randomizes txs in place (Fisher-Yates), used by
// RandomSubset so repeated gossip rounds sample different transactions
// instead of always flooding the same queue prefix.
func shuffleTransactions(txs []*types.Transaction) {
	rand.Shuffle(len(txs), func(i, j int) { txs[i], txs[j] = txs[j], txs[i] })
}

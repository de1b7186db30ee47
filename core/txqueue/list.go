package txqueue

import (
	"container/heap"

	"github.com/hyperledger/iroha-sub011/common"
)

// submitterList holds one submitter's pending transactions ordered by
// Nonce (earliest first), mirroring legacypool's per-account nonce-ordered
// list: a submitter's own transactions still drain in submission order even
// though PopBatch round-robins across submitters.
type submitterList struct {
	items []*entry
}

func newSubmitterList() *submitterList {
	return &submitterList{}
}

func (l *submitterList) Len() int { return len(l.items) }

func (l *submitterList) Less(i, j int) bool {
	if l.items[i].tx.Payload.Nonce != l.items[j].tx.Payload.Nonce {
		return l.items[i].tx.Payload.Nonce < l.items[j].tx.Payload.Nonce
	}
	return l.items[i].queuedAt.Before(l.items[j].queuedAt)
}

func (l *submitterList) Swap(i, j int) { l.items[i], l.items[j] = l.items[j], l.items[i] }

func (l *submitterList) Push(x any) { l.items = append(l.items, x.(*entry)) }

func (l *submitterList) Pop() any {
	n := len(l.items)
	e := l.items[n-1]
	l.items = l.items[:n-1]
	return e
}

// removeByHash drops the entry with the given hash while preserving the
// heap invariant for the remaining items, via container/heap's own removal
// rather than a raw slice splice.
func (l *submitterList) removeByHash(hash common.Hash) {
	for i, e := range l.items {
		if e.tx.Hash() == hash {
			heap.Remove(l, i)
			return
		}
	}
}

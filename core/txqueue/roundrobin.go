package txqueue

import "github.com/hyperledger/iroha-sub011/common"

// roundRobin cycles through submitters in insertion order, giving each a
// turn before any repeats (§4.3 fairness). Implemented as a slice plus an
// index map rather than a ring buffer of channels, since the queue already
// holds a mutex for the whole operation.
type roundRobin struct {
	order []common.AccountID
	pos   int
	index map[common.AccountID]int
}

func newRoundRobin() *roundRobin {
	return &roundRobin{index: map[common.AccountID]int{}}
}

func (r *roundRobin) len() int { return len(r.order) }

func (r *roundRobin) add(id common.AccountID) {
	if _, exists := r.index[id]; exists {
		return
	}
	r.index[id] = len(r.order)
	r.order = append(r.order, id)
}

func (r *roundRobin) remove(id common.AccountID) {
	i, ok := r.index[id]
	if !ok {
		return
	}
	last := len(r.order) - 1
	r.order[i] = r.order[last]
	r.index[r.order[i]] = i
	r.order = r.order[:last]
	delete(r.index, id)
	if r.pos > last {
		r.pos = 0
	}
}

// next returns the submitter at the current position and advances, wrapping
// around. Returns false if there are no submitters left.
func (r *roundRobin) next() (common.AccountID, bool) {
	if len(r.order) == 0 {
		return common.AccountID{}, false
	}
	if r.pos >= len(r.order) {
		r.pos = 0
	}
	id := r.order[r.pos]
	r.pos = (r.pos + 1) % len(r.order)
	return id, true
}

// Package txqueue implements the Transaction Queue (§4.3): an in-memory,
// bounded admission buffer between Torii (out of scope) and Sumeragi.
// Accepted transactions sit here, grouped per submitter for fairness, until
// a block-creation round drains a batch or they expire.
package txqueue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
	"github.com/hyperledger/iroha-sub011/log"
)

// CommittedIndex is the dedup oracle the queue consults before admitting a
// transaction (§4.3 "a transaction already present in a committed block is
// rejected, never silently dropped"). *wsv.WSV satisfies this directly.
type CommittedIndex interface {
	HasTransaction(hash common.Hash) bool
}

// Config bounds queue admission (§4.3).
type Config struct {
	Capacity           int           // C: total transactions held across all submitters
	MaxPerSubmitter    int           // Cu: per-submitter cap, enforced independently of Capacity
	TTL                time.Duration // transactions older than CreationTime+TTL are evicted
	FutureThreshold    time.Duration // CreationTime further than this ahead of now is rejected outright
}

func DefaultConfig() Config {
	return Config{
		Capacity:        1 << 16,
		MaxPerSubmitter: 1 << 10,
		TTL:             24 * time.Hour,
		FutureThreshold: 5 * time.Minute,
	}
}

// effectiveTTL computes the deadline a transaction is actually held to:
// min(tx.ttl, chain.max_ttl) per §4.3, so a submitter can shorten but never
// lengthen the chain-wide bound. A tx carrying ttl=0 is held to a zero
// deadline and so never survives past the instant it's queued (§8).
func effectiveTTL(ttlMs int64, chainTTL time.Duration) time.Duration {
	ttl := time.Duration(ttlMs) * time.Millisecond
	if ttl < chainTTL {
		return ttl
	}
	return chainTTL
}

// Queue is the submitter-fair, capacity-bounded admission buffer.
type Queue struct {
	cfg    Config
	index  CommittedIndex
	logger log.Logger
	clock  func() time.Time

	mu        sync.Mutex
	bySubmitter map[common.AccountID]*submitterList
	byHash      map[common.Hash]*entry
	order       *roundRobin // cycles submitters for fair draining
}

type entry struct {
	tx        *types.Transaction
	submitter common.AccountID
	queuedAt  time.Time
}

// New constructs a Queue. index is consulted on every push for dedup against
// already-committed transactions; it may be nil in tests that don't care
// about dedup.
func New(cfg Config, index CommittedIndex, logger log.Logger) *Queue {
	if logger == nil {
		logger = log.Root
	}
	return &Queue{
		cfg:         cfg,
		index:       index,
		logger:      logger,
		clock:       time.Now,
		bySubmitter: map[common.AccountID]*submitterList{},
		byHash:      map[common.Hash]*entry{},
		order:       newRoundRobin(),
	}
}

// Push admits tx, returning an Admission-kind *xerrors.Error on rejection
// (§4.3: full queue, per-submitter cap, duplicate, expired, future-dated,
// already committed — each its own reason so Torii can report it back to
// the submitter distinctly).
func (q *Queue) Push(tx *types.Transaction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	hash := tx.Hash()
	now := q.clock()

	if _, exists := q.byHash[hash]; exists {
		return xerrors.Wrap(xerrors.Admission, xerrors.ErrDuplicate, "duplicate in queue")
	}
	if q.index != nil && q.index.HasTransaction(hash) {
		return xerrors.Wrap(xerrors.Admission, xerrors.ErrInBlockchain, "already committed")
	}
	created := tx.Payload.CreationTime()
	if created.Add(effectiveTTL(tx.Payload.TTLMs, q.cfg.TTL)).Before(now) {
		return xerrors.Wrap(xerrors.Admission, xerrors.ErrExpired, "past TTL")
	}
	if created.After(now.Add(q.cfg.FutureThreshold)) {
		return xerrors.Wrap(xerrors.Admission, xerrors.ErrFutureTransaction, "creation time too far ahead")
	}
	if len(q.byHash) >= q.cfg.Capacity {
		return xerrors.Wrap(xerrors.Admission, xerrors.ErrQueueFull, "queue at capacity")
	}

	submitter := tx.Payload.Authority
	list := q.bySubmitter[submitter]
	if list == nil {
		list = newSubmitterList()
		q.bySubmitter[submitter] = list
		q.order.add(submitter)
	}
	if list.Len() >= q.cfg.MaxPerSubmitter {
		return xerrors.Wrap(xerrors.Admission, xerrors.ErrMaxTransactionsPerUser, "submitter at per-account cap")
	}

	e := &entry{tx: tx, submitter: submitter, queuedAt: now}
	heap.Push(list, e)
	q.byHash[hash] = e
	return nil
}

// PopBatch removes and returns up to n transactions, round-robining across
// submitters so one prolific submitter cannot starve the others (§4.3
// "fairness: no single submitter may monopolize a block"). Expired entries
// and entries already present in the committed index are dropped rather
// than returned, since pop_batch consults wsv (§4.3, §8 "a transaction
// whose hash is in WSV's committed index is never returned from pop_batch
// or random_subset; if discovered during either, it is evicted").
func (q *Queue) PopBatch(n int) []*types.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()
	out := make([]*types.Transaction, 0, n)
	empty := 0
	for len(out) < n && q.order.len() > 0 && empty < q.order.len() {
		submitter, ok := q.order.next()
		if !ok {
			break
		}
		list := q.bySubmitter[submitter]
		if list == nil || list.Len() == 0 {
			empty++
			continue
		}
		e := heap.Pop(list).(*entry)
		delete(q.byHash, e.tx.Hash())
		if list.Len() == 0 {
			delete(q.bySubmitter, submitter)
			q.order.remove(submitter)
		}
		empty = 0
		if q.index != nil && q.index.HasTransaction(e.tx.Hash()) {
			continue // already committed elsewhere; evicted, not returned
		}
		if e.tx.Payload.CreationTime().Add(effectiveTTL(e.tx.Payload.TTLMs, q.cfg.TTL)).Before(now) {
			continue // expired while queued; drop silently, never included in a block
		}
		out = append(out, e.tx)
	}
	return out
}

// RandomSubset returns up to n transactions chosen at random without
// removing them, used by the Gossiper to flood a sample of the local queue
// to peers (§4.4) rather than the whole thing every round. Entries already
// present in the committed index are evicted from the queue rather than
// sampled (§4.3, §8).
func (q *Queue) RandomSubset(n int) []*types.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	all := make([]*types.Transaction, 0, len(q.byHash))
	for hash, e := range q.byHash {
		if q.index != nil && q.index.HasTransaction(hash) {
			q.removeLocked(hash, e)
			continue
		}
		all = append(all, e.tx)
	}
	shuffleTransactions(all)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Len reports the total number of transactions currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byHash)
}

// Has reports whether hash is currently queued (used by the Gossiper to
// avoid re-broadcasting what it just received).
func (q *Queue) Has(hash common.Hash) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byHash[hash]
	return ok
}

// Remove drops hash from the queue unconditionally, used when a peer's
// gossip or block-sync reveals the transaction was already committed
// elsewhere.
func (q *Queue) Remove(hash common.Hash) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byHash[hash]
	if !ok {
		return
	}
	q.removeLocked(hash, e)
}

// removeLocked drops hash's entry from byHash, its submitter's heap, and
// the round-robin order, reconciling all three in one place so
// RandomSubset, Remove, and EvictExpired can't drift out of sync with each
// other (PopBatch pops the heap and updates byHash and order itself).
// Caller must hold q.mu.
func (q *Queue) removeLocked(hash common.Hash, e *entry) {
	delete(q.byHash, hash)
	list := q.bySubmitter[e.submitter]
	if list == nil {
		return
	}
	list.removeByHash(hash)
	if list.Len() == 0 {
		delete(q.bySubmitter, e.submitter)
		q.order.remove(e.submitter)
	}
}

// EvictExpired scans the whole queue and drops every transaction past its
// effective TTL (§4.3 min(tx.ttl, chain.max_ttl)), independent of PopBatch's
// lazy eviction; intended to run periodically so memory is reclaimed even
// when a submitter's transactions never reach the front of the round-robin.
func (q *Queue) EvictExpired() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock()
	evicted := 0
	for hash, e := range q.byHash {
		if e.tx.Payload.CreationTime().Add(effectiveTTL(e.tx.Payload.TTLMs, q.cfg.TTL)).Before(now) {
			q.removeLocked(hash, e)
			evicted++
		}
	}
	if evicted > 0 {
		q.logger.Debug("txqueue: evicted expired transactions", "count", evicted)
	}
	return evicted
}

package txqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
)

type fakeIndex struct {
	committed map[common.Hash]bool
}

func (f *fakeIndex) HasTransaction(h common.Hash) bool { return f.committed[h] }

// testTx builds a transaction with a generous per-tx TTL (a week) so it
// never becomes the binding term in effectiveTTL's min(tx.ttl, chain.ttl):
// tests that care about the chain-wide TTL set cfg.TTL instead, and tests
// that care about the per-tx TTL use testTxWithTTL.
func testTx(submitter string, nonce uint64, createdAt time.Time) *types.Transaction {
	return testTxWithTTL(submitter, nonce, createdAt, 7*24*time.Hour)
}

func testTxWithTTL(submitter string, nonce uint64, createdAt time.Time, ttl time.Duration) *types.Transaction {
	return &types.Transaction{Payload: types.Payload{
		ChainID:        "test",
		Authority:      common.AccountID{Name: submitter, Domain: "wonderland"},
		Nonce:          nonce,
		CreationTimeMs: createdAt.UnixMilli(),
		TTLMs:          ttl.Milliseconds(),
	}}
}

func newTestQueue(cfg Config) *Queue {
	q := New(cfg, &fakeIndex{committed: map[common.Hash]bool{}}, nil)
	return q
}

func TestPushAndPopBatchFIFO(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	now := time.Now()
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, q.Push(testTx("alice", i, now)))
	}
	require.Equal(t, 5, q.Len())

	batch := q.PopBatch(3)
	require.Len(t, batch, 3)
	for i, tx := range batch {
		require.Equal(t, uint64(i), tx.Payload.Nonce, "single submitter drains in nonce order")
	}
	require.Equal(t, 2, q.Len())
}

func TestPopBatchRoundRobinsAcrossSubmitters(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	now := time.Now()
	for i := uint64(0); i < 3; i++ {
		require.NoError(t, q.Push(testTx("alice", i, now)))
	}
	require.NoError(t, q.Push(testTx("bob", 0, now)))

	batch := q.PopBatch(2)
	require.Len(t, batch, 2)
	submitters := map[string]bool{}
	for _, tx := range batch {
		submitters[tx.Payload.Authority.Name] = true
	}
	require.True(t, submitters["alice"] && submitters["bob"],
		"a prolific submitter must not monopolize the batch ahead of others")
}

func TestPushRejectsDuplicate(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	now := time.Now()
	tx := testTx("alice", 0, now)
	require.NoError(t, q.Push(tx))
	err := q.Push(tx)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.Admission))
	require.ErrorIs(t, err, xerrors.ErrDuplicate, "a duplicate push must be tagged as a duplicate, not a decode failure")
}

func TestPushRejectsZeroTTLTransaction(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	tx := testTxWithTTL("alice", 0, time.Now(), 0)
	err := q.Push(tx)
	require.Error(t, err, "a tx with ttl=0 must never be admitted, since it can never appear in pop_batch")
	require.ErrorIs(t, err, xerrors.ErrExpired)
}

func TestPopBatchNeverReturnsZeroTTLTransaction(t *testing.T) {
	cfg := DefaultConfig()
	q := New(cfg, nil, nil)
	now := time.Now()
	// Push with a valid TTL, then zero TTLMs in place to get past Push's own
	// TTL check, the way a transaction admitted under a looser historical TTL
	// might still sit in the queue.
	tx := testTxWithTTL("alice", 0, now, time.Hour)
	require.NoError(t, q.Push(tx))
	q.mu.Lock()
	q.byHash[tx.Hash()].tx.Payload.TTLMs = 0
	q.mu.Unlock()

	batch := q.PopBatch(10)
	require.Empty(t, batch, "ttl=0 must never be returned from pop_batch")
}

func TestPushHonorsPerTxTTLTighterThanChainTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = 24 * time.Hour
	q := newTestQueue(cfg)

	tx := testTxWithTTL("alice", 0, time.Now().Add(-time.Hour), 30*time.Minute)
	err := q.Push(tx)
	require.Error(t, err, "a per-tx ttl tighter than the chain-wide ttl must still be honored")
	require.ErrorIs(t, err, xerrors.ErrExpired)
}

func TestPopBatchEvictsAlreadyCommittedTransaction(t *testing.T) {
	idx := &fakeIndex{committed: map[common.Hash]bool{}}
	q := New(DefaultConfig(), idx, nil)
	tx := testTx("alice", 0, time.Now())
	require.NoError(t, q.Push(tx))

	idx.committed[tx.Hash()] = true

	batch := q.PopBatch(10)
	require.Empty(t, batch, "a transaction committed elsewhere since being queued must be evicted, not returned")
	require.False(t, q.Has(tx.Hash()))
}

func TestRandomSubsetEvictsAlreadyCommittedTransaction(t *testing.T) {
	idx := &fakeIndex{committed: map[common.Hash]bool{}}
	q := New(DefaultConfig(), idx, nil)
	tx := testTx("alice", 0, time.Now())
	require.NoError(t, q.Push(tx))

	idx.committed[tx.Hash()] = true

	subset := q.RandomSubset(10)
	require.Empty(t, subset, "a transaction committed elsewhere since being queued must be evicted, not sampled")
	require.False(t, q.Has(tx.Hash()))
	require.Equal(t, 0, q.Len())
}

func TestPushRejectsAlreadyCommitted(t *testing.T) {
	idx := &fakeIndex{committed: map[common.Hash]bool{}}
	q := New(DefaultConfig(), idx, nil)
	tx := testTx("alice", 0, time.Now())
	idx.committed[tx.Hash()] = true

	err := q.Push(tx)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.Admission))
}

func TestPushRejectsWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 1
	q := newTestQueue(cfg)
	now := time.Now()
	require.NoError(t, q.Push(testTx("alice", 0, now)))
	err := q.Push(testTx("bob", 0, now))
	require.Error(t, err)
}

func TestPushRejectsOverPerSubmitterCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerSubmitter = 1
	q := newTestQueue(cfg)
	now := time.Now()
	require.NoError(t, q.Push(testTx("alice", 0, now)))
	err := q.Push(testTx("alice", 1, now))
	require.Error(t, err)
}

func TestPushRejectsExpiredAndFutureDated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	cfg.FutureThreshold = time.Minute
	q := newTestQueue(cfg)

	expired := testTx("alice", 0, time.Now().Add(-2*time.Hour))
	require.Error(t, q.Push(expired))

	future := testTx("bob", 0, time.Now().Add(time.Hour))
	require.Error(t, q.Push(future))
}

func TestEvictExpiredReclaimsSpace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTL = time.Minute
	q := newTestQueue(cfg)
	require.NoError(t, q.Push(testTx("alice", 0, time.Now())))

	q.mu.Lock()
	for _, e := range q.byHash {
		e.queuedAt = time.Now().Add(-time.Hour)
		e.tx.Payload.CreationTimeMs = time.Now().Add(-time.Hour).UnixMilli()
	}
	q.mu.Unlock()

	evicted := q.EvictExpired()
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, q.Len())
}

func TestRemoveDropsTransaction(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	tx := testTx("alice", 0, time.Now())
	require.NoError(t, q.Push(tx))
	q.Remove(tx.Hash())
	require.False(t, q.Has(tx.Hash()))
	require.Equal(t, 0, q.Len())
}

func TestRandomSubsetNeverExceedsRequestedSize(t *testing.T) {
	q := newTestQueue(DefaultConfig())
	now := time.Now()
	for i := uint64(0); i < 10; i++ {
		require.NoError(t, q.Push(testTx("alice", i, now)))
	}
	subset := q.RandomSubset(4)
	require.Len(t, subset, 4)

	all := q.RandomSubset(100)
	require.Len(t, all, 10)
}

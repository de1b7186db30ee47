// Package wsv implements the World State View: the single materialized,
// in-memory projection of every committed block (§4.2). Exactly one writer
// (Sumeragi's commit path or Block Sync) calls Apply; any number of readers
// call View concurrently without blocking the writer or each other, because
// each View call hands back an immutable snapshot pointer swapped in with a
// single atomic store.
package wsv

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
	"github.com/hyperledger/iroha-sub011/log"
)

// BlockSource is the narrow slice of Kura's API the WSV needs to satisfy
// block_with_tx (§4.2): given a height, return the block stored there. Kura's
// *kura.Store implements this directly, so the WSV never depends on Kura's
// segment/replay internals.
type BlockSource interface {
	Get(height uint64) (*types.Block, error)
}

// state is the immutable value a Snapshot points at. Every field here must
// either be a value type or itself copy-on-write (Domain.clone, below);
// nothing in state is ever mutated after it is published via WSV.cur.Store.
type state struct {
	height      uint64
	initialized bool // false until the genesis block (height 0) has been applied
	domains     map[string]*Domain

	roles      map[string]Role
	peers      types.PeerSet
	parameters map[string]string

	committedAt common.Hash // hash of the last committed block header
}

func emptyState() *state {
	return &state{
		domains:    map[string]*Domain{},
		roles:      map[string]Role{},
		peers:      types.NewPeerSet(nil),
		parameters: map[string]string{},
	}
}

// clone returns a new state sharing no mutable substructure with the
// receiver, so applying a block never reaches back and mutates a state a
// concurrent Snapshot reader still holds (§4.2, "a snapshot is not
// invalidated by subsequent writes").
func (s *state) clone() *state {
	cp := &state{
		height:      s.height,
		initialized: s.initialized,
		domains:     make(map[string]*Domain, len(s.domains)),
		roles:       make(map[string]Role, len(s.roles)),
		peers:       s.peers,
		parameters:  make(map[string]string, len(s.parameters)),
		committedAt: s.committedAt,
	}
	for k, d := range s.domains {
		cp.domains[k] = d.clone()
	}
	for k, v := range s.roles {
		cp.roles[k] = v
	}
	for k, v := range s.parameters {
		cp.parameters[k] = v
	}
	return cp
}

// Role is a named bundle of permission strings assignable to accounts (§9
// supplemented RBAC; the distilled spec leaves role/permission semantics
// opaque, the original Rust implementation does not).
type Role struct {
	Name        string
	Permissions []string
}

// WSV is the World State View. Construct with Open, call Apply once per
// committed block in ascending height order, and call View/Height/
// HasTransaction/BlockWithTx from as many goroutines as needed.
type WSV struct {
	logger   log.Logger
	blocks   BlockSource
	index    *leveldb.DB // durable tx_hash -> block height, backs HasTransaction/BlockWithTx/dedup
	executor *Executor

	cur atomic.Pointer[state]
}

// Snapshot is an immutable, point-in-time read handle returned by View. It
// never changes underfoot: a goroutine holding one sees exactly the state as
// of the Apply call that produced it, even if other Applies happen
// concurrently (§4.2).
type Snapshot struct {
	s *state
}

// Open constructs a WSV backed by indexPath for its durable tx-hash index
// and blocks for replaying block_with_tx lookups. If indexPath is empty, the
// index runs in memory only (used by tests and by ephemeral/simulated
// nodes).
func Open(indexPath string, blocks BlockSource, logger log.Logger) (*WSV, error) {
	if logger == nil {
		logger = log.Root
	}
	var db *leveldb.DB
	var err error
	if indexPath == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(indexPath, nil)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Fatal, err, "wsv: opening tx-hash index")
	}
	w := &WSV{logger: logger, blocks: blocks, index: db}
	w.executor = NewExecutor(w)
	w.cur.Store(emptyState())
	return w, nil
}

func (w *WSV) Close() error {
	if w.index == nil {
		return nil
	}
	return w.index.Close()
}

// View returns the current snapshot. Cheap: one atomic load, no copying.
func (w *WSV) View() Snapshot { return Snapshot{s: w.cur.Load()} }

// Height reports the height of the last block folded into the view, or 0
// before any block has been applied (matching Kura's height semantics: 0
// means "only genesis, if any, applied").
func (w *WSV) Height() uint64 { return w.cur.Load().height }

// Apply folds block b into the view, producing a new immutable snapshot and
// durably recording each transaction's hash against b's height (§4.2:
// "WSV.height = b.height and, for every transaction in b,
// WSV.has_transaction(tx.hash) holds" after Apply returns). Applying the
// same height twice is rejected: the WSV's notion of progress is driven
// entirely by height, the same invariant Kura's Append enforces.
func (w *WSV) Apply(b *types.Block) error {
	cur := w.cur.Load()
	switch {
	case !cur.initialized && !b.Header.IsGenesis():
		return xerrors.New(xerrors.Protocol, "wsv: first block applied must be genesis")
	case cur.initialized && b.Header.Height != cur.height+1:
		if b.Header.Height <= cur.height {
			return xerrors.New(xerrors.Protocol, fmt.Sprintf("wsv: block %d already applied (at height %d)", b.Header.Height, cur.height))
		}
		return xerrors.New(xerrors.Protocol, fmt.Sprintf("wsv: expected block %d, got %d", cur.height+1, b.Header.Height))
	}

	next := cur.clone()
	next.height = b.Header.Height
	next.initialized = true
	next.committedAt = b.Header.Hash()

	batch := new(leveldb.Batch)
	for _, twv := range b.Transactions {
		if twv.Verdict.Kind == types.Approved {
			if err := w.executor.Apply(next, &twv.Transaction); err != nil {
				// A built-in instruction failing post-consensus is a bug in
				// verification upstream, not a reason to abort the whole
				// block (§4.2 "WSV never aborts a block: instruction
				// failures ... are recorded, not retried").
				w.logger.Error("wsv: approved transaction failed to apply", "hash", twv.Transaction.Hash(), "err", err)
			}
		}
		h := twv.Transaction.Hash()
		batch.Put(indexKey(h), heightBytes(b.Header.Height))
	}
	if w.index != nil {
		if err := w.index.Write(batch, nil); err != nil {
			return xerrors.Wrap(xerrors.Fatal, err, "wsv: writing tx-hash index")
		}
	}

	w.cur.Store(next)
	w.logger.Debug("wsv: applied block", "height", b.Header.Height, "txs", len(b.Transactions))
	return nil
}

// Rollback discards the current view and rebuilds it from scratch by
// replaying blocks 0..height from the configured BlockSource. Sumeragi's
// soft-fork recovery (§4.5, §8 "Soft-fork law") calls this after Kura has
// already been truncated to height: Apply's height guard only ever accepts
// cur.height+1, so the view's notion of progress must retreat in lockstep
// with Kura before the replacement block for height+1 can be applied.
func (w *WSV) Rollback(height uint64) error {
	if w.blocks == nil {
		return xerrors.New(xerrors.Fatal, "wsv: no block source configured for rollback")
	}
	fresh := emptyState()
	batch := new(leveldb.Batch)
	for h := uint64(0); h <= height; h++ {
		b, err := w.blocks.Get(h)
		if err != nil {
			return xerrors.Wrap(xerrors.Fatal, err, "wsv: reading block during rollback replay")
		}
		if b == nil {
			if h == 0 {
				break // nothing committed yet; rolling back to an empty chain
			}
			return xerrors.New(xerrors.Fatal, fmt.Sprintf("wsv: missing block %d during rollback replay", h))
		}
		fresh.height = b.Header.Height
		fresh.initialized = true
		fresh.committedAt = b.Header.Hash()
		for _, twv := range b.Transactions {
			if twv.Verdict.Kind == types.Approved {
				if err := w.executor.Apply(fresh, &twv.Transaction); err != nil {
					w.logger.Error("wsv: approved transaction failed to apply during rollback replay", "hash", twv.Transaction.Hash(), "err", err)
				}
			}
			batch.Put(indexKey(twv.Transaction.Hash()), heightBytes(b.Header.Height))
		}
	}
	if w.index != nil {
		if err := w.clearIndex(); err != nil {
			return err
		}
		if err := w.index.Write(batch, nil); err != nil {
			return xerrors.Wrap(xerrors.Fatal, err, "wsv: rewriting tx-hash index after rollback")
		}
	}
	w.cur.Store(fresh)
	w.logger.Warn("wsv: rolled back and replayed state", "height", fresh.height)
	return nil
}

// clearIndex empties the tx-hash index so Rollback's replay starts from a
// blank slate instead of leaving stale entries for transactions that
// belonged to truncated heights.
func (w *WSV) clearIndex() error {
	iter := w.index.NewIterator(nil, nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "wsv: iterating tx-hash index during rollback")
	}
	if err := w.index.Write(batch, nil); err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "wsv: clearing tx-hash index during rollback")
	}
	return nil
}

// ValidateCandidate re-executes txs against a scratch clone of the current
// state without publishing anything, returning the verdict each transaction
// would receive (§4.5 "re-executes every transaction against a scratch WSV
// snapshot, recording verdicts"). A validating peer compares this against
// the leader's claimed verdicts before signing.
func (w *WSV) ValidateCandidate(txs []*types.Transaction) []types.Verdict {
	scratch := w.cur.Load().clone()
	verdicts := make([]types.Verdict, len(txs))
	for i, tx := range txs {
		if err := w.executor.Apply(scratch, tx); err != nil {
			verdicts[i] = types.RejectedVerdict(err.Error())
			continue
		}
		verdicts[i] = types.ApprovedVerdict()
	}
	return verdicts
}

// HasTransaction reports whether hash belongs to any committed block,
// regardless of that transaction's verdict (§4.2, §4.3 dedup contract).
func (w *WSV) HasTransaction(hash common.Hash) bool {
	if w.index == nil {
		return false
	}
	ok, err := w.index.Has(indexKey(hash), nil)
	return err == nil && ok
}

// BlockWithTx returns the block containing hash, or nil if hash was never
// committed (§4.2 block_with_tx).
func (w *WSV) BlockWithTx(hash common.Hash) (*types.Block, error) {
	if w.index == nil {
		return nil, nil
	}
	v, err := w.index.Get(indexKey(hash), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Fatal, err, "wsv: reading tx-hash index")
	}
	height := binary.BigEndian.Uint64(v)
	if w.blocks == nil {
		return nil, xerrors.New(xerrors.Fatal, "wsv: no block source configured")
	}
	return w.blocks.Get(height)
}

func indexKey(h common.Hash) []byte {
	key := make([]byte, 0, len(h)+4)
	key = append(key, []byte("tx:")...)
	key = append(key, h.Bytes()...)
	return key
}

func heightBytes(h uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h)
	return b
}

// --- Snapshot read accessors ---

func (s Snapshot) Height() uint64 { return s.s.height }

func (s Snapshot) Domain(name string) (*Domain, bool) {
	d, ok := s.s.domains[name]
	return d, ok
}

func (s Snapshot) Account(id common.AccountID) (*Account, bool) {
	d, ok := s.s.domains[id.Domain]
	if !ok {
		return nil, false
	}
	a, ok := d.Accounts[id.Name]
	return a, ok
}

func (s Snapshot) AssetBalance(id common.AssetID) uint64 {
	a, ok := s.Account(id.Account)
	if !ok {
		return 0
	}
	return a.Assets[id.Definition.String()]
}

func (s Snapshot) Peers() types.PeerSet { return s.s.peers }

func (s Snapshot) Parameter(key string) (string, bool) {
	v, ok := s.s.parameters[key]
	return v, ok
}

func (s Snapshot) Role(name string) (Role, bool) {
	r, ok := s.s.roles[name]
	return r, ok
}

func (s Snapshot) Domains() []*Domain {
	out := make([]*Domain, 0, len(s.s.domains))
	for _, d := range s.s.domains {
		out = append(out, d)
	}
	return out
}

package kura

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
)

func testBlock(height uint64, prev common.Hash) *types.Block {
	return &types.Block{
		Header: types.BlockHeader{
			Height:        height,
			PrevBlockHash: prev,
			CreationTimeMs: int64(height) * 1000,
		},
	}
}

func TestAppendAndGet(t *testing.T) {
	dir := t.TempDir()
	store, blocks, err := Init(dir, 10, Fast, nil, nil)
	require.NoError(t, err)
	require.Empty(t, blocks)
	defer store.Close()

	genesis := testBlock(0, common.Hash{})
	require.NoError(t, store.Append(genesis))

	b1 := testBlock(1, genesis.Header.Hash())
	require.NoError(t, store.Append(b1))

	require.Equal(t, uint64(1), store.Height())

	got, err := store.Get(1)
	require.NoError(t, err)
	require.Equal(t, b1.Header.Hash(), got.Header.Hash())

	absent, err := store.Get(5)
	require.NoError(t, err)
	require.Nil(t, absent, "get above height must return absent, not an error")
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	store, _, err := Init(dir, 10, Fast, nil, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(testBlock(0, common.Hash{})))
	err = store.Append(testBlock(2, common.Hash{})) // skips height 1
	require.Error(t, err)
}

func TestAppendRejectsNonGenesisFirst(t *testing.T) {
	dir := t.TempDir()
	store, _, err := Init(dir, 10, Fast, nil, nil)
	require.NoError(t, err)
	defer store.Close()

	err = store.Append(testBlock(1, common.Hash{}))
	require.Error(t, err)
}

func TestReplayAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	store, _, err := Init(dir, 2, Fast, nil, nil)
	require.NoError(t, err)

	var prev common.Hash
	for h := uint64(0); h < 5; h++ {
		b := testBlock(h, prev)
		require.NoError(t, store.Append(b))
		prev = b.Header.Hash()
	}
	require.NoError(t, store.Close())

	store2, blocks, err := Init(dir, 2, Strict, nil, nil)
	require.NoError(t, err)
	defer store2.Close()

	require.Len(t, blocks, 5)
	require.Equal(t, uint64(4), store2.Height())
	for i, b := range blocks {
		require.Equal(t, uint64(i), b.Header.Height)
	}
}

func TestStrictModeDetectsHashChainMismatch(t *testing.T) {
	dir := t.TempDir()
	store, _, err := Init(dir, 10, Fast, nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.Append(testBlock(0, common.Hash{})))
	// height 1's prev hash does not match height 0's actual hash.
	require.NoError(t, store.Append(testBlock(1, common.HashOf([]byte("wrong")))))
	require.NoError(t, store.Close())

	_, _, err = Init(dir, 10, Strict, nil, nil)
	require.Error(t, err)
}

func TestGetRangeStopsAtHeight(t *testing.T) {
	dir := t.TempDir()
	store, _, err := Init(dir, 10, Fast, nil, nil)
	require.NoError(t, err)
	defer store.Close()

	var prev common.Hash
	for h := uint64(0); h < 3; h++ {
		b := testBlock(h, prev)
		require.NoError(t, store.Append(b))
		prev = b.Header.Hash()
	}

	blocks, err := store.GetRange(0, 100)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
}

func TestTruncateToForSoftFork(t *testing.T) {
	dir := t.TempDir()
	store, _, err := Init(dir, 10, Fast, nil, nil)
	require.NoError(t, err)
	defer store.Close()

	var prev common.Hash
	for h := uint64(0); h < 4; h++ {
		b := testBlock(h, prev)
		require.NoError(t, store.Append(b))
		prev = b.Header.Hash()
	}

	require.NoError(t, store.TruncateTo(1))
	require.Equal(t, uint64(1), store.Height())

	absent, err := store.Get(2)
	require.NoError(t, err)
	require.Nil(t, absent)

	replacement := testBlock(2, store.Height2Hash(t))
	require.NoError(t, store.Append(replacement))
}

// Height2Hash is a tiny test helper that fetches the current top block's
// hash, since the production API only exposes Get/Height.
func (s *Store) Height2Hash(t *testing.T) common.Hash {
	t.Helper()
	b, err := s.Get(s.Height())
	require.NoError(t, err)
	return b.Header.Hash()
}

func TestTruncatesPartialTrailingFrameOnReplay(t *testing.T) {
	dir := t.TempDir()
	store, _, err := Init(dir, 10, Fast, nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(testBlock(0, common.Hash{})))
	require.NoError(t, store.Close())

	// Corrupt the segment by appending a torn trailing frame (claims more
	// bytes than actually follow).
	path := segmentPath(dir, 0)
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	tornLen := make([]byte, 8)
	tornLen[0] = 0xFF // length 255 (little-endian), payload won't follow
	_, err = f.WriteAt(tornLen, info.Size())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	store2, blocks, err := Init(dir, 10, Fast, nil, nil)
	require.NoError(t, err)
	defer store2.Close()
	require.Len(t, blocks, 1, "torn trailing frame must be truncated, not surfaced as data")
}

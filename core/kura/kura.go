// Package kura is the write-ahead block store (§4.1). Committed blocks are
// packed into bounded segment files under the store's directory; each block
// is framed as [len_u64_le][snappy-compressed encoded block][hash_u256] so a crash mid-
// write leaves a truncatable, detectable partial frame rather than silent
// corruption.
package kura

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
	"github.com/hyperledger/iroha-sub011/log"
)

// Mode selects how Init verifies on-disk blocks before replay (§4.1).
type Mode int

const (
	// Strict verifies every stored block's hash chain and signature set on
	// startup, failing fatally on mismatch.
	Strict Mode = iota
	// Fast skips verification and trusts the on-disk log.
	Fast
)

// VerifyFunc checks a block's signature set against the trusted-peer set
// known at the time it committed. Kura is agnostic to how signatures are
// validated — the caller of Init (cmd/iroha's verifyBlock) supplies this so
// Kura does not need to know about peer sets or quorum math.
type VerifyFunc func(b *types.Block) error

// Store is the single on-disk writer for this peer's block log. One writer
// (the commit path) appends; readers (block-sync responses, query-by-hash)
// take the read lock concurrently (§5).
type Store struct {
	mu  sync.RWMutex
	dir string
	log log.Logger

	blocksPerFile int
	fileLock      *flock.Flock

	segments []*segment // ordered, oldest first
	height   uint64      // height of the last appended block; 0 with no blocks means "only genesis may append next"
	hasBlocks bool
}

// Init opens (creating if absent) the block store at dir, replays the
// existing segments according to mode, and returns the store plus a stream
// of the blocks found on disk in height order, for WSV to replay (§4.1
// "emits the stream for WSV replay").
func Init(dir string, blocksPerFile int, mode Mode, verify VerifyFunc, logger log.Logger) (*Store, []*types.Block, error) {
	if logger == nil {
		logger = log.Root
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, xerrors.Wrap(xerrors.Fatal, err, "kura: creating store directory")
	}

	fl := flock.New(filepath.Join(dir, ".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.Fatal, err, "kura: acquiring store lock")
	}
	if !locked {
		return nil, nil, xerrors.New(xerrors.Fatal, "kura: store directory is locked by another process")
	}

	s := &Store{dir: dir, blocksPerFile: blocksPerFile, fileLock: fl, log: logger}

	segs, err := discoverSegments(dir)
	if err != nil {
		fl.Unlock()
		return nil, nil, xerrors.Wrap(xerrors.Fatal, err, "kura: discovering segments")
	}
	s.segments = segs

	blocks, err := s.replay(mode, verify)
	if err != nil {
		fl.Unlock()
		return nil, nil, err
	}
	return s, blocks, nil
}

func (s *Store) replay(mode Mode, verify VerifyFunc) ([]*types.Block, error) {
	var out []*types.Block
	var prevHash common.Hash
	var height uint64

	for _, seg := range s.segments {
		blocks, truncatedTo, err := seg.readAll()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Fatal, err, "kura: reading segment "+seg.path)
		}
		if truncatedTo >= 0 {
			s.log.Warn("kura: truncating partially written trailing frame", "segment", seg.path, "valid_bytes", truncatedTo)
			if err := seg.truncate(truncatedTo); err != nil {
				return nil, xerrors.Wrap(xerrors.Fatal, err, "kura: truncating segment")
			}
		}

		for _, b := range blocks {
			if mode == Strict {
				if b.Header.Height > 0 && b.Header.PrevBlockHash != prevHash {
					return nil, xerrors.New(xerrors.Fatal, fmt.Sprintf(
						"kura: hash chain mismatch at height %d: prev_block_hash does not match stored predecessor", b.Header.Height))
				}
				if verify != nil {
					if err := verify(b); err != nil {
						return nil, xerrors.Wrap(xerrors.Fatal, err, fmt.Sprintf("kura: signature verification failed at height %d", b.Header.Height))
					}
				}
			}
			prevHash = b.Header.Hash()
			height = b.Header.Height
			out = append(out, b)
		}
	}
	s.hasBlocks = len(out) > 0
	s.height = height
	return out, nil
}

// Height returns the height of the highest stored block, per §4.1. Before
// any block is appended this returns 0, same as after genesis — callers
// that need to distinguish "empty" from "only genesis" should use HasBlocks.
func (s *Store) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height
}

func (s *Store) HasBlocks() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasBlocks
}

// Append durably writes block, which must be the immediate successor of the
// current top (§4.1 "Atomic w.r.t. process crash"). I/O failure is always
// fatal (§4.1, §7): this process cannot guarantee durability going forward.
func (s *Store) Append(b *types.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasBlocks && b.Header.Height != s.height+1 {
		return xerrors.New(xerrors.Protocol, fmt.Sprintf(
			"kura: out-of-order append: have height %d, got block at height %d", s.height, b.Header.Height))
	}
	if !s.hasBlocks && b.Header.Height != 0 {
		return xerrors.New(xerrors.Protocol, "kura: first appended block must be genesis (height 0)")
	}

	seg := s.currentSegment()
	if err := seg.append(b); err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "kura: appending block to segment")
	}
	s.height = b.Header.Height
	s.hasBlocks = true
	return nil
}

func (s *Store) currentSegment() *segment {
	if len(s.segments) == 0 || s.segments[len(s.segments)-1].count >= s.blocksPerFile {
		seg := newSegment(s.dir, len(s.segments))
		s.segments = append(s.segments, seg)
	}
	return s.segments[len(s.segments)-1]
}

// Get returns the block at height, or (nil, nil) if height exceeds the
// store's current height — absence is not an error (§4.1).
func (s *Store) Get(height uint64) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasBlocks || height > s.height {
		return nil, nil
	}
	return s.get(height)
}

func (s *Store) get(height uint64) (*types.Block, error) {
	idx := int(height) / s.blocksPerFile
	if idx >= len(s.segments) {
		return nil, nil
	}
	return s.segments[idx].readAt(int(height) % s.blocksPerFile)
}

// GetRange returns up to count consecutive blocks starting at start,
// stopping early (without error) if the store's height is reached first.
func (s *Store) GetRange(start uint64, count int) ([]*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Block
	for h := start; h < start+uint64(count); h++ {
		if !s.hasBlocks || h > s.height {
			break
		}
		b, err := s.get(h)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Fatal, err, "kura: reading range")
		}
		if b == nil {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

// TruncateTo discards every block above height, used by Sumeragi's soft-fork
// handling (§4.5 "truncate Kura to h-1, re-apply the foreign block").
func (s *Store) TruncateTo(height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasBlocks || height > s.height {
		return nil
	}

	keepSegIdx := int(height) / s.blocksPerFile
	keepWithin := int(height)%s.blocksPerFile + 1
	if keepSegIdx >= len(s.segments) {
		return nil
	}
	if err := s.segments[keepSegIdx].truncateToCount(keepWithin); err != nil {
		return xerrors.Wrap(xerrors.Fatal, err, "kura: truncating segment")
	}
	for i := keepSegIdx + 1; i < len(s.segments); i++ {
		if err := s.segments[i].truncate(0); err != nil {
			return xerrors.Wrap(xerrors.Fatal, err, "kura: truncating trailing segment")
		}
	}
	s.segments = s.segments[:keepSegIdx+1]
	s.height = height
	return nil
}

// Close releases the store's directory lock. Safe to call once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments {
		seg.close()
	}
	return s.fileLock.Unlock()
}

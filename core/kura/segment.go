package kura

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/golang/snappy"

	"github.com/hyperledger/iroha-sub011/core/types"
)

// A segment is one blocks_NNN.dat file. Each block is framed as
// [len_u64_le][snappy-compressed encoded block][header_hash, 32 bytes]
// (§4.1). The trailing hash lets a reader catch bit-rot or a torn write
// without first decoding the whole block.
type segment struct {
	path    string
	file    *os.File
	offsets []int64 // byte offset of each frame's length prefix, in frame order
	count   int
}

const frameHashLen = 32

var segmentNameRE = regexp.MustCompile(`^blocks_(\d+)\.dat$`)

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("blocks_%03d.dat", index))
}

func newSegment(dir string, index int) *segment {
	path := segmentPath(dir, index)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		// Append callers treat segment creation failure as fatal via the
		// caller's I/O error path; panicking here would cross a lock we
		// don't want to leak, so surface it on first use instead.
		return &segment{path: path}
	}
	return &segment{path: path, file: f}
}

// discoverSegments opens every blocks_NNN.dat file in dir, sorted by index.
func discoverSegments(dir string) ([]*segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type found struct {
		idx  int
		name string
	}
	var names []found
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, _ := strconv.Atoi(m[1])
		names = append(names, found{idx: idx, name: e.Name()})
	}
	sort.Slice(names, func(i, j int) bool { return names[i].idx < names[j].idx })

	segs := make([]*segment, 0, len(names))
	for _, n := range names {
		f, err := os.OpenFile(filepath.Join(dir, n.name), os.O_RDWR, 0o644)
		if err != nil {
			return nil, err
		}
		seg := &segment{path: filepath.Join(dir, n.name), file: f}
		if err := seg.scan(); err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// scan walks the frames in the file, recording the offset of each complete,
// well-formed frame in s.offsets; a trailing partial frame (torn write) is
// detected but not yet truncated — the caller decides whether to truncate
// during replay.
func (s *segment) scan() error {
	s.offsets = s.offsets[:0]
	var pos int64
	for {
		var lenBuf [8]byte
		n, err := s.file.ReadAt(lenBuf[:], pos)
		if err == io.EOF && n == 0 {
			break
		}
		if n < 8 {
			// torn write: not even the length prefix landed
			break
		}
		frameLen := binary.LittleEndian.Uint64(lenBuf[:])
		total := 8 + int64(frameLen) + frameHashLen
		info, err := s.file.Stat()
		if err != nil {
			return err
		}
		if pos+total > info.Size() {
			break // torn write: payload or trailing hash incomplete
		}
		s.offsets = append(s.offsets, pos)
		pos += total
	}
	s.count = len(s.offsets)
	return nil
}

// readAll decodes every complete frame in the segment, returning
// (-1, nil) via truncatedAt when the file ends cleanly, or the valid byte
// length to truncate to when a torn trailing frame was found.
func (s *segment) readAll() ([]*types.Block, int64, error) {
	if err := s.scan(); err != nil {
		return nil, -1, err
	}
	info, err := s.file.Stat()
	if err != nil {
		return nil, -1, err
	}
	var validEnd int64
	if len(s.offsets) > 0 {
		last := s.offsets[len(s.offsets)-1]
		var lenBuf [8]byte
		if _, err := s.file.ReadAt(lenBuf[:], last); err != nil {
			return nil, -1, err
		}
		frameLen := binary.LittleEndian.Uint64(lenBuf[:])
		validEnd = last + 8 + int64(frameLen) + frameHashLen
	}

	blocks := make([]*types.Block, 0, len(s.offsets))
	for _, off := range s.offsets {
		b, _, err := s.readFrameAt(off)
		if err != nil {
			return nil, -1, err
		}
		blocks = append(blocks, b)
	}

	if validEnd < info.Size() {
		return blocks, validEnd, nil
	}
	return blocks, -1, nil
}

func (s *segment) readFrameAt(off int64) (*types.Block, int64, error) {
	var lenBuf [8]byte
	if _, err := s.file.ReadAt(lenBuf[:], off); err != nil {
		return nil, 0, err
	}
	frameLen := binary.LittleEndian.Uint64(lenBuf[:])
	payload := make([]byte, frameLen)
	if _, err := s.file.ReadAt(payload, off+8); err != nil {
		return nil, 0, err
	}
	hashBuf := make([]byte, frameHashLen)
	if _, err := s.file.ReadAt(hashBuf, off+8+int64(frameLen)); err != nil {
		return nil, 0, err
	}

	raw, err := snappy.Decode(nil, payload)
	if err != nil {
		return nil, 0, fmt.Errorf("kura: decompressing frame at offset %d: %w", off, err)
	}
	block, err := types.DecodeBlock(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("kura: decoding frame at offset %d: %w", off, err)
	}
	headerHash := block.Header.Hash()
	for i, want := range headerHash {
		if hashBuf[i] != want {
			return nil, 0, fmt.Errorf("kura: frame hash mismatch at offset %d (height %d)", off, block.Header.Height)
		}
	}
	return block, 8 + int64(frameLen) + frameHashLen, nil
}

func (s *segment) readAt(indexWithinSegment int) (*types.Block, error) {
	if s.file == nil {
		return nil, fmt.Errorf("kura: segment %s not open", s.path)
	}
	if err := s.scan(); err != nil {
		return nil, err
	}
	if indexWithinSegment < 0 || indexWithinSegment >= len(s.offsets) {
		return nil, nil
	}
	b, _, err := s.readFrameAt(s.offsets[indexWithinSegment])
	return b, err
}

// append durably writes block to the end of the file: the whole frame
// (length + payload + hash) goes out in one write, then the file is
// fsync'd. A crash before the sync leaves, at worst, a torn trailing frame
// whose length claims more data than follows — which scan() detects and
// replay truncates — never a damaged frame in the middle of the file.
func (s *segment) append(block *types.Block) error {
	if s.file == nil {
		return fmt.Errorf("kura: segment %s could not be opened", s.path)
	}
	raw := types.EncodeBlock(block)
	compressed := snappy.Encode(nil, raw)

	frame := make([]byte, 0, 8+len(compressed)+frameHashLen)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(compressed)))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, compressed...)
	headerHash := block.Header.Hash()
	frame = append(frame, headerHash.Bytes()...)

	info, err := s.file.Stat()
	if err != nil {
		return err
	}
	if _, err := s.file.WriteAt(frame, info.Size()); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return err
	}
	s.offsets = append(s.offsets, info.Size())
	s.count++
	return nil
}

func (s *segment) truncate(size int64) error {
	if s.file == nil {
		return nil
	}
	if err := s.file.Truncate(size); err != nil {
		return err
	}
	return s.scan()
}

// truncateToCount keeps only the first n frames, discarding the rest.
func (s *segment) truncateToCount(n int) error {
	if err := s.scan(); err != nil {
		return err
	}
	if n >= len(s.offsets) {
		return nil
	}
	if n == 0 {
		return s.truncate(0)
	}
	last := s.offsets[n-1]
	var lenBuf [8]byte
	if _, err := s.file.ReadAt(lenBuf[:], last); err != nil {
		return err
	}
	frameLen := binary.LittleEndian.Uint64(lenBuf[:])
	return s.truncate(last + 8 + int64(frameLen) + frameHashLen)
}

func (s *segment) close() {
	if s.file != nil {
		s.file.Close()
	}
}

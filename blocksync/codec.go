package blocksync

import (
	"encoding/binary"
	"fmt"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
)

// Announcement is one peer's claim about its current chain tip (§4.6
// "announces its (height, top_hash)").
type Announcement struct {
	Height  uint64
	TopHash common.Hash
}

func encodeAnnouncement(a Announcement) []byte {
	buf := make([]byte, 8+common.HashLength)
	binary.BigEndian.PutUint64(buf[:8], a.Height)
	copy(buf[8:], a.TopHash.Bytes())
	return buf
}

func decodeAnnouncement(b []byte) (Announcement, error) {
	if len(b) != 8+common.HashLength {
		return Announcement{}, fmt.Errorf("blocksync: truncated announcement")
	}
	return Announcement{
		Height:  binary.BigEndian.Uint64(b[:8]),
		TopHash: common.BytesToHash(b[8:]),
	}, nil
}

// rangeRequest asks a peer for up to Count blocks starting at Start (§4.6
// "get_range(local_height+1, batch_size)").
type rangeRequest struct {
	Start uint64
	Count uint32
}

func encodeRangeRequest(r rangeRequest) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[:8], r.Start)
	binary.BigEndian.PutUint32(buf[8:], r.Count)
	return buf
}

func decodeRangeRequest(b []byte) (rangeRequest, error) {
	if len(b) != 12 {
		return rangeRequest{}, fmt.Errorf("blocksync: truncated range request")
	}
	return rangeRequest{
		Start: binary.BigEndian.Uint64(b[:8]),
		Count: binary.BigEndian.Uint32(b[8:]),
	}, nil
}

func encodeBlockBatch(blocks []*types.Block) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(blocks)))
	for _, b := range blocks {
		enc := types.EncodeBlock(b)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, enc...)
	}
	return buf
}

func decodeBlockBatch(b []byte) ([]*types.Block, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("blocksync: truncated block batch")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	out := make([]*types.Block, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("blocksync: truncated block batch at entry %d", i)
		}
		l := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < l {
			return nil, fmt.Errorf("blocksync: truncated block at entry %d", i)
		}
		blk, err := types.DecodeBlock(b[:l])
		if err != nil {
			return nil, fmt.Errorf("blocksync: decoding block %d: %w", i, err)
		}
		out = append(out, blk)
		b = b[l:]
	}
	return out, nil
}

// subKind discriminates the three message shapes multiplexed onto the
// single p2p.KindBlockSync wire kind (§4.7).
type subKind byte

const (
	subAnnouncement subKind = iota
	subRangeRequest
	subRangeResponse
)

func frame(k subKind, body []byte) []byte {
	return append([]byte{byte(k)}, body...)
}

func unframe(b []byte) (subKind, []byte, error) {
	if len(b) < 1 {
		return 0, nil, fmt.Errorf("blocksync: empty frame")
	}
	return subKind(b[0]), b[1:], nil
}

package p2p

import (
	"encoding/binary"
	"fmt"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
)

// encodeTransactionBatch/encodePeerList use the same length-prefixed shape
// as core/types' encoder, but live here rather than in core/types since
// they are wire-only concerns of the gossip protocol, not part of any
// type's canonical identity encoding.

func encodeTransactionBatch(txs []*types.Transaction) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(txs)))
	for _, tx := range txs {
		enc := types.EncodeTransaction(tx)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, enc...)
	}
	return buf
}

func DecodeTransactionBatch(b []byte) ([]*types.Transaction, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("p2p: truncated transaction batch")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	out := make([]*types.Transaction, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("p2p: truncated transaction batch at entry %d", i)
		}
		l := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < l {
			return nil, fmt.Errorf("p2p: truncated transaction at entry %d", i)
		}
		tx, err := types.DecodeTransaction(b[:l])
		if err != nil {
			return nil, fmt.Errorf("p2p: decoding transaction %d: %w", i, err)
		}
		out = append(out, tx)
		b = b[l:]
	}
	return out, nil
}

func encodePeerList(peers []common.PeerID) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(peers)))
	for _, p := range peers {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p.Address)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, p.Address...)
		buf = append(buf, p.PublicKey.Bytes()...)
	}
	return buf
}

func DecodePeerList(b []byte) ([]common.PeerID, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("p2p: truncated peer list")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	out := make([]common.PeerID, 0, n)
	for i := uint32(0); i < n; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("p2p: truncated peer list at entry %d", i)
		}
		l := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < l+32 {
			return nil, fmt.Errorf("p2p: truncated peer entry %d", i)
		}
		addr := string(b[:l])
		b = b[l:]
		var pk common.PublicKey
		copy(pk[:], b[:32])
		b = b[32:]
		out = append(out, common.PeerID{Address: addr, PublicKey: pk})
	}
	return out, nil
}

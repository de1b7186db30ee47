package sumeragi

import (
	"encoding/binary"
	"fmt"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/internal/xerrors"
	"github.com/hyperledger/iroha-sub011/p2p"
)

// Host is the subset of *p2p.Host the network adapter drives.
type Host interface {
	Peers() []common.PeerID
	SendBytes(to common.PeerID, kind p2p.Kind, body []byte) error
	Broadcast(kind p2p.Kind, body []byte) []error
}

// netAdapter implements Network over a Host, encoding each Sumeragi message
// onto one of the two wire kinds §4.7 sets aside for consensus traffic:
// block-shaped messages on KindSumeragiBlock, everything else (signature
// forwarding, view-change proofs) on KindSumeragiControlFlow. A one-byte
// subKind prefix (mirroring blocksync's own framing) tells the receiver
// which of the messages sharing a kind this frame carries.
type netAdapter struct {
	host Host
}

// NewNetwork adapts a Host into the Network a Sumeragi needs.
func NewNetwork(host Host) Network {
	return &netAdapter{host: host}
}

type msgKind byte

const (
	msgBlockCreated msgKind = iota
	msgBlockSigned
	msgBlockCommitted
	msgViewChangeProof
)

func (a *netAdapter) SendBlockCreated(to common.PeerID, msg BlockCreated) error {
	return a.host.SendBytes(to, p2p.KindSumeragiBlock, frame(msgBlockCreated, types.EncodeBlock(msg.Block)))
}

func (a *netAdapter) SendBlockSigned(to common.PeerID, msg BlockSigned) error {
	return a.host.SendBytes(to, p2p.KindSumeragiControlFlow, frame(msgBlockSigned, encodeBlockSigned(msg)))
}

func (a *netAdapter) BroadcastBlockCommitted(msg BlockCommitted) []error {
	return a.host.Broadcast(p2p.KindSumeragiBlock, frame(msgBlockCommitted, types.EncodeBlock(msg.Block)))
}

func (a *netAdapter) BroadcastViewChangeProof(msg ViewChangeProof) []error {
	return a.host.Broadcast(p2p.KindSumeragiControlFlow, frame(msgViewChangeProof, encodeViewChangeProof(msg)))
}

func frame(k msgKind, body []byte) []byte {
	return append([]byte{byte(k)}, body...)
}

// Dispatch decodes an inbound frame on KindSumeragiBlock or
// KindSumeragiControlFlow and routes it to the matching Sumeragi handler.
// sign is only used for BlockCreated, whose handling requires this peer to
// produce its own signature over the header.
func Dispatch(s *Sumeragi, from common.PeerID, kind p2p.Kind, body []byte, sign SignHeaderFunc) error {
	if len(body) < 1 {
		return xerrors.New(xerrors.Protocol, "sumeragi: empty frame")
	}
	k, rest := msgKind(body[0]), body[1:]

	switch kind {
	case p2p.KindSumeragiBlock:
		switch k {
		case msgBlockCreated:
			b, err := types.DecodeBlock(rest)
			if err != nil {
				return xerrors.Wrap(xerrors.Protocol, err, "sumeragi: decoding BlockCreated")
			}
			return s.HandleBlockCreated(from, BlockCreated{Block: b}, sign)
		case msgBlockCommitted:
			b, err := types.DecodeBlock(rest)
			if err != nil {
				return xerrors.Wrap(xerrors.Protocol, err, "sumeragi: decoding BlockCommitted")
			}
			return s.HandleBlockCommitted(from, BlockCommitted{Block: b})
		}
	case p2p.KindSumeragiControlFlow:
		switch k {
		case msgBlockSigned:
			msg, err := decodeBlockSigned(rest)
			if err != nil {
				return xerrors.Wrap(xerrors.Protocol, err, "sumeragi: decoding BlockSigned")
			}
			return s.HandleBlockSigned(from, msg)
		case msgViewChangeProof:
			proof, err := decodeViewChangeProof(rest)
			if err != nil {
				return xerrors.Wrap(xerrors.Protocol, err, "sumeragi: decoding ViewChangeProof")
			}
			return s.HandleViewChangeProof(from, proof)
		}
	}
	return xerrors.New(xerrors.Protocol, "sumeragi: unrecognized frame")
}

func encodeBlockSigned(m BlockSigned) []byte {
	buf := make([]byte, 8+8+common.HashLength+32+64)
	binary.BigEndian.PutUint64(buf[0:8], m.Height)
	binary.BigEndian.PutUint64(buf[8:16], m.ViewIndex)
	off := 16
	copy(buf[off:], m.HeaderHash.Bytes())
	off += common.HashLength
	copy(buf[off:], m.Signature.PublicKey.Bytes())
	off += 32
	copy(buf[off:], m.Signature.Sig.Bytes())
	return buf
}

func decodeBlockSigned(b []byte) (BlockSigned, error) {
	want := 8 + 8 + common.HashLength + 32 + 64
	if len(b) != want {
		return BlockSigned{}, fmt.Errorf("sumeragi: truncated BlockSigned")
	}
	m := BlockSigned{
		Height:    binary.BigEndian.Uint64(b[0:8]),
		ViewIndex: binary.BigEndian.Uint64(b[8:16]),
	}
	off := 16
	m.HeaderHash = common.BytesToHash(b[off : off+common.HashLength])
	off += common.HashLength
	copy(m.Signature.PublicKey[:], b[off:off+32])
	off += 32
	copy(m.Signature.Sig[:], b[off:off+64])
	return m, nil
}

func encodeViewChangeProof(p ViewChangeProof) []byte {
	buf := make([]byte, 8+8+common.HashLength+32+64)
	binary.BigEndian.PutUint64(buf[0:8], p.Index)
	binary.BigEndian.PutUint64(buf[8:16], uint64(p.Reason))
	off := 16
	copy(buf[off:], p.PeerSetHash.Bytes())
	off += common.HashLength
	copy(buf[off:], p.Signer.Bytes())
	off += 32
	copy(buf[off:], p.Signature.Bytes())
	return buf
}

func decodeViewChangeProof(b []byte) (ViewChangeProof, error) {
	want := 8 + 8 + common.HashLength + 32 + 64
	if len(b) != want {
		return ViewChangeProof{}, fmt.Errorf("sumeragi: truncated ViewChangeProof")
	}
	p := ViewChangeProof{
		Index:  binary.BigEndian.Uint64(b[0:8]),
		Reason: xerrors.ViewChangeReason(binary.BigEndian.Uint64(b[8:16])),
	}
	off := 16
	p.PeerSetHash = common.BytesToHash(b[off : off+common.HashLength])
	off += common.HashLength
	copy(p.Signer[:], b[off:off+32])
	off += 32
	copy(p.Signature[:], b[off:off+64])
	return p, nil
}

// Package p2p implements the encrypted transport peers use
// to exchange Sumeragi, Block Sync, and gossip messages (§4.7). Every
// connection is: TCP dial/accept, an X25519 key exchange whose shared
// secret is expanded with HKDF into a ChaCha20-Poly1305 key, then a stream
// of length-prefixed, sealed frames multiplexed by message kind.
package p2p

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/hyperledger/iroha-sub011/common"
)

// Kind multiplexes frames over a single connection (§4.7, §6): each peer
// link carries all of these, rather than one socket per concern.
type Kind byte

const (
	KindSumeragiBlock Kind = iota
	KindSumeragiControlFlow
	KindBlockSync
	KindTransactionGossip
	KindPeersGossip
	KindHealth
)

func (k Kind) String() string {
	switch k {
	case KindSumeragiBlock:
		return "sumeragi_block"
	case KindSumeragiControlFlow:
		return "sumeragi_control_flow"
	case KindBlockSync:
		return "block_sync"
	case KindTransactionGossip:
		return "transaction_gossip"
	case KindPeersGossip:
		return "peers_gossip"
	case KindHealth:
		return "health"
	default:
		return "unknown"
	}
}

// Message is one decrypted, decoded frame as handed to a Handler.
type Message struct {
	Kind Kind
	Body []byte
	From common.PeerID
}

// Handler processes an inbound Message. Registered per Kind on a Host.
type Handler func(Message)

const (
	maxFrameSize = 16 << 20 // 16MiB: generous for a full block, bounds a malicious peer's memory claim
	nonceSize    = chacha20poly1305.NonceSize
)

// aead is the minimal Seal/Open surface secureConn needs from a
// chacha20poly1305 cipher.
type aead interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// secureConn wraps a net.Conn with a pair of AEAD ciphers negotiated during
// the handshake, one per direction. Each direction keeps its own
// monotonically increasing nonce counter; because the send and receive
// ciphers are keyed differently (derived via HKDF with distinct info
// strings for initiator->responder vs. responder->initiator traffic), the
// same counter value on both sides of a connection never reuses a
// key/nonce pair.
type secureConn struct {
	conn     net.Conn
	sendAEAD aead
	recvAEAD aead
	sendSeq  uint64
	recvSeq  uint64
	mu       sync.Mutex // serializes writes; reads happen on one owning goroutine
}

// handshake performs an unauthenticated X25519 exchange and derives a
// symmetric key with HKDF-SHA256. Neither side proves its identity here, and
// no later frame does either: Host serves inbound connections under a zero
// PeerID and dialed ones under the PeerID its caller supplied.
func handshake(conn net.Conn, initiator bool) (*secureConn, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, fmt.Errorf("p2p: generating ephemeral key: %w", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("p2p: deriving public key: %w", err)
	}

	if err := writeFixed(conn, pub); err != nil {
		return nil, fmt.Errorf("p2p: sending handshake public key: %w", err)
	}
	peerPub := make([]byte, 32)
	if _, err := io.ReadFull(conn, peerPub); err != nil {
		return nil, fmt.Errorf("p2p: reading peer handshake public key: %w", err)
	}

	shared, err := curve25519.X25519(priv[:], peerPub)
	if err != nil {
		return nil, fmt.Errorf("p2p: computing shared secret: %w", err)
	}

	// Two keys, one per direction, each from its own HKDF info label. Both
	// peers compute the same shared secret, so both land on the same
	// initiatorToResponder/responderToInitiator pair; which one each side
	// calls "send" vs. "recv" is the only thing that differs, keyed off
	// which side initiated. Without this split, both directions would seal
	// under the same key starting from nonce counter 0, reusing every
	// key/nonce pair the moment both sides had sent at least one frame.
	initiatorToResponder, err := deriveDirectionKey(shared, "iroha-p2p-v1-initiator-to-responder")
	if err != nil {
		return nil, err
	}
	responderToInitiator, err := deriveDirectionKey(shared, "iroha-p2p-v1-responder-to-initiator")
	if err != nil {
		return nil, err
	}

	sendKey, recvKey := initiatorToResponder, responderToInitiator
	if !initiator {
		sendKey, recvKey = responderToInitiator, initiatorToResponder
	}
	sendAEAD, err := chacha20poly1305.New(sendKey)
	if err != nil {
		return nil, fmt.Errorf("p2p: constructing send AEAD: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(recvKey)
	if err != nil {
		return nil, fmt.Errorf("p2p: constructing recv AEAD: %w", err)
	}
	return &secureConn{conn: conn, sendAEAD: sendAEAD, recvAEAD: recvAEAD}, nil
}

func deriveDirectionKey(shared []byte, info string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, shared, nil, []byte(info))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("p2p: deriving %s session key: %w", info, err)
	}
	return key, nil
}

func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// writeFrame seals kind||body under the next send sequence number and
// writes it length-prefixed.
func (c *secureConn) writeFrame(kind Kind, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint64(nonce[nonceSize-8:], c.sendSeq)
	c.sendSeq++

	plain := make([]byte, 1+len(body))
	plain[0] = byte(kind)
	copy(plain[1:], body)

	sealed := c.sendAEAD.Seal(nil, nonce, plain, nil)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(sealed)
	return err
}

func (c *secureConn) readFrame() (Kind, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return 0, nil, fmt.Errorf("p2p: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	sealed := make([]byte, n)
	if _, err := io.ReadFull(c.conn, sealed); err != nil {
		return 0, nil, err
	}

	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint64(nonce[nonceSize-8:], c.recvSeq)
	c.recvSeq++

	plain, err := c.recvAEAD.Open(nil, nonce, sealed, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("p2p: decrypting frame: %w", err)
	}
	if len(plain) == 0 {
		return 0, nil, fmt.Errorf("p2p: empty frame")
	}
	return Kind(plain[0]), plain[1:], nil
}

func newSessionID() string { return uuid.NewString() }

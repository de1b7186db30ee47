package p2p

import (
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
	"github.com/hyperledger/iroha-sub011/log"
)

// Host owns every live connection to the rest of the peer set and dispatches
// inbound frames to registered Kind handlers. It satisfies the gossiper's
// and blocksync's Transport interfaces directly, so those packages never
// import net themselves.
type Host struct {
	self     common.PeerID
	logger   log.Logger
	handlers map[Kind]Handler

	mu    sync.RWMutex
	conns map[common.PublicKey]*peerConn // live connections, keyed by remote identity

	listener net.Listener
	stop     chan struct{}
}

type peerConn struct {
	peer    common.PeerID
	sc      *secureConn
	session string
}

func NewHost(self common.PeerID, logger log.Logger) *Host {
	if logger == nil {
		logger = log.Root
	}
	return &Host{
		self:     self,
		logger:   logger,
		handlers: map[Kind]Handler{},
		conns:    map[common.PublicKey]*peerConn{},
		stop:     make(chan struct{}),
	}
}

// Handle registers the callback invoked for every inbound frame of the
// given kind, across every connection.
func (h *Host) Handle(kind Kind, fn Handler) { h.handlers[kind] = fn }

// Listen starts accepting inbound connections on addr.
func (h *Host) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.listener = ln
	go h.acceptLoop()
	return nil
}

func (h *Host) acceptLoop() {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			select {
			case <-h.stop:
				return
			default:
				h.logger.Warn("p2p: accept failed", "err", err)
				continue
			}
		}
		go h.serve(conn, false, common.PeerID{})
	}
}

// Dial connects to peer and keeps the connection alive, reconnecting with
// bounded exponential backoff on failure (§4.7 "reconnection is automatic
// with bounded backoff") until Close is called.
func (h *Host) Dial(peer common.PeerID) {
	go h.dialLoop(peer)
}

func (h *Host) dialLoop(peer common.PeerID) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever; only Close stops it
	bo.MaxInterval = 30 * time.Second

	for {
		select {
		case <-h.stop:
			return
		default:
		}
		conn, err := net.DialTimeout("tcp", peer.Address, 5*time.Second)
		if err != nil {
			wait := bo.NextBackOff()
			h.logger.Debug("p2p: dial failed, backing off", "peer", peer, "wait", wait, "err", err)
			time.Sleep(wait)
			continue
		}
		bo.Reset()
		h.serve(conn, true, peer)
		// serve returns when the connection drops; loop to redial.
		select {
		case <-h.stop:
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// serve runs the handshake then the read loop for one connection,
// registering it in conns for the duration.
func (h *Host) serve(conn net.Conn, initiator bool, known common.PeerID) {
	sc, err := handshake(conn, initiator)
	if err != nil {
		h.logger.Warn("p2p: handshake failed", "err", err)
		conn.Close()
		return
	}
	pc := &peerConn{peer: known, sc: sc, session: newSessionID()}
	if known.PublicKey != (common.PublicKey{}) {
		h.mu.Lock()
		h.conns[known.PublicKey] = pc
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.conns, known.PublicKey)
			h.mu.Unlock()
		}()
	}

	h.logger.Debug("p2p: connection established", "peer", known, "session", pc.session, "initiator", initiator)
	for {
		kind, body, err := sc.readFrame()
		if err != nil {
			h.logger.Debug("p2p: connection closed", "peer", known, "session", pc.session, "err", err)
			conn.Close()
			return
		}
		if fn, ok := h.handlers[kind]; ok {
			fn(Message{Kind: kind, Body: body, From: known})
		}
	}
}

// Peers returns the currently connected peer identities.
func (h *Host) Peers() []common.PeerID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]common.PeerID, 0, len(h.conns))
	for _, pc := range h.conns {
		out = append(out, pc.peer)
	}
	return out
}

func (h *Host) connFor(to common.PeerID) (*peerConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pc, ok := h.conns[to.PublicKey]
	return pc, ok
}

// SendTransactions implements gossiper.Transport.
func (h *Host) SendTransactions(to common.PeerID, txs []*types.Transaction) error {
	pc, ok := h.connFor(to)
	if !ok {
		return errNotConnected(to)
	}
	body := encodeTransactionBatch(txs)
	return pc.sc.writeFrame(KindTransactionGossip, body)
}

// SendPeerList implements gossiper.PeerTransport.
func (h *Host) SendPeerList(to common.PeerID, peers []common.PeerID) error {
	pc, ok := h.connFor(to)
	if !ok {
		return errNotConnected(to)
	}
	return pc.sc.writeFrame(KindPeersGossip, encodePeerList(peers))
}

// SendBlock sends a full block to one peer, used by Sumeragi to propose and
// by BlockSync to serve a range-fetch response.
func (h *Host) SendBlock(to common.PeerID, kind Kind, b *types.Block) error {
	pc, ok := h.connFor(to)
	if !ok {
		return errNotConnected(to)
	}
	return pc.sc.writeFrame(kind, types.EncodeBlock(b))
}

// SendBytes sends an already-encoded payload of the given kind to one
// connected peer. BlockSync uses this for announcements and range
// requests/responses, which aren't a single block or transaction batch.
func (h *Host) SendBytes(to common.PeerID, kind Kind, body []byte) error {
	pc, ok := h.connFor(to)
	if !ok {
		return errNotConnected(to)
	}
	return pc.sc.writeFrame(kind, body)
}

// Broadcast sends raw bytes of the given kind to every connected peer,
// collecting but not stopping on individual send failures.
func (h *Host) Broadcast(kind Kind, body []byte) []error {
	h.mu.RLock()
	conns := make([]*peerConn, 0, len(h.conns))
	for _, pc := range h.conns {
		conns = append(conns, pc)
	}
	h.mu.RUnlock()

	var errs []error
	for _, pc := range conns {
		if err := pc.sc.writeFrame(kind, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (h *Host) Close() error {
	close(h.stop)
	if h.listener != nil {
		h.listener.Close()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, pc := range h.conns {
		pc.sc.conn.Close()
	}
	return nil
}

type notConnectedError struct{ peer common.PeerID }

func (e notConnectedError) Error() string { return "p2p: not connected to " + e.peer.String() }

func errNotConnected(peer common.PeerID) error { return notConnectedError{peer: peer} }

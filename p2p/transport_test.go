package p2p

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func pairedConns(t *testing.T) (*secureConn, *secureConn) {
	t.Helper()
	a, b := net.Pipe()

	type result struct {
		sc  *secureConn
		err error
	}
	chA := make(chan result, 1)
	chB := make(chan result, 1)
	go func() {
		sc, err := handshake(a, true)
		chA <- result{sc, err}
	}()
	go func() {
		sc, err := handshake(b, false)
		chB <- result{sc, err}
	}()
	ra, rb := <-chA, <-chB
	require.NoError(t, ra.err)
	require.NoError(t, rb.err)
	return ra.sc, rb.sc
}

func TestHandshakeDerivesMatchingKey(t *testing.T) {
	scA, scB := pairedConns(t)
	defer scA.conn.Close()
	defer scB.conn.Close()

	done := make(chan error, 1)
	go func() { done <- scA.writeFrame(KindHealth, []byte("ping")) }()

	kind, body, err := scB.readFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, KindHealth, kind)
	require.Equal(t, []byte("ping"), body)
}

func TestHandshakeDerivesDistinctPerDirectionKeys(t *testing.T) {
	scA, scB := pairedConns(t)
	defer scA.conn.Close()
	defer scB.conn.Close()

	// scA's send cipher must be scB's recv cipher (and vice versa): sealing
	// the same plaintext at the same sequence number under scA's send key
	// must not equal sealing it under scA's recv key, otherwise the two
	// directions would share a key and reuse nonces starting from the same
	// counter.
	nonce := make([]byte, nonceSize)
	plain := []byte{byte(KindHealth)}
	sealedBySend := scA.sendAEAD.Seal(nil, nonce, plain, nil)
	sealedByRecv := scA.recvAEAD.Seal(nil, nonce, plain, nil)
	require.NotEqual(t, sealedBySend, sealedByRecv, "send and recv ciphers must be keyed differently")

	opened, err := scB.recvAEAD.Open(nil, nonce, sealedBySend, nil)
	require.NoError(t, err, "scA's send key must match scB's recv key")
	require.Equal(t, plain, opened)
}

func TestFrameSequenceIndependentPerDirection(t *testing.T) {
	scA, scB := pairedConns(t)
	defer scA.conn.Close()
	defer scB.conn.Close()

	for i := 0; i < 3; i++ {
		done := make(chan error, 1)
		go func() { done <- scA.writeFrame(KindTransactionGossip, []byte{byte(i)}) }()
		_, body, err := scB.readFrame()
		require.NoError(t, err)
		require.NoError(t, <-done)
		require.Equal(t, []byte{byte(i)}, body)
	}

	for i := 0; i < 3; i++ {
		done := make(chan error, 1)
		go func() { done <- scB.writeFrame(KindPeersGossip, []byte{byte(100 + i)}) }()
		_, body, err := scA.readFrame()
		require.NoError(t, err)
		require.NoError(t, <-done)
		require.Equal(t, []byte{byte(100 + i)}, body)
	}
}

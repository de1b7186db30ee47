// Package common holds the identifier and hashing types shared by every
// replication-engine component: Kura, WSV, the queue, Sumeragi and the
// block-sync protocol all key their data structures off common.Hash.
package common

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashLength is the width of every identifier in this package. Iroha's wire
// format hashes with Blake2b-256, same as its default cryptographic suite.
const HashLength = 32

// Hash is the canonical identifier of a Transaction or BlockHeader: the
// Blake2b-256 digest of their canonical encoding (§3). It is a value type so
// it can be used directly as a map key — the queue's by_hash index and
// WSV's tx_hash→height index both rely on that.
type Hash [HashLength]byte

// BytesToHash right-aligns b within a Hash, truncating from the left if b is
// longer than HashLength (mirrors go-ethereum's common.BytesToHash).
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HashOf hashes the canonical encoding of data with Blake2b-256. Callers
// pass the already-canonically-encoded payload; HashOf never itself encodes,
// so identity is well defined without pinning this package to any particular
// encoder.
func HashOf(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool   { return h == Hash{} }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("common: invalid hash %q: %w", text, err)
	}
	if len(b) != HashLength {
		return fmt.Errorf("common: hash %q has %d bytes, want %d", text, len(b), HashLength)
	}
	copy(h[:], b)
	return nil
}

// PublicKey is a peer or account's Ed25519 public key (§3 Peer identity,
// §4.5 genesis key, §4.7 authenticated transport).
type PublicKey [32]byte

func (p PublicKey) Bytes() []byte  { return p[:] }
func (p PublicKey) String() string { return "ed25519:" + hex.EncodeToString(p[:]) }
func (p PublicKey) IsZero() bool   { return p == PublicKey{} }

// Signature is a detached Ed25519 signature over a Hash.
type Signature [64]byte

func (s Signature) Bytes() []byte { return s[:] }

// AccountID identifies an account within a domain: "name@domain", e.g.
// "alice@wonderland". Kept as a struct rather than a raw string so WSV can
// index on Name/Domain independently without re-parsing on every lookup.
type AccountID struct {
	Name   string
	Domain string
}

func (a AccountID) String() string { return a.Name + "@" + a.Domain }
func (a AccountID) IsZero() bool   { return a.Name == "" && a.Domain == "" }

// AssetDefinitionID identifies an asset type within a domain: "rose#wonderland".
type AssetDefinitionID struct {
	Name   string
	Domain string
}

func (a AssetDefinitionID) String() string { return a.Name + "#" + a.Domain }

// AssetID is an asset definition scoped to the account that owns a balance
// of it.
type AssetID struct {
	Definition AssetDefinitionID
	Account    AccountID
}

func (a AssetID) String() string { return a.Definition.String() + "@" + a.Account.String() }

// PeerID is a peer's network identity (§3 Peer identity): two peers compare
// equal iff their public keys match, never by address, since addresses are
// advisory and may change across reconnects.
type PeerID struct {
	Address   string
	PublicKey PublicKey
}

func (p PeerID) Equal(o PeerID) bool { return p.PublicKey == o.PublicKey }
func (p PeerID) String() string      { return fmt.Sprintf("%s@%s", p.PublicKey.String()[:16], p.Address) }

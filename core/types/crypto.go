package types

import (
	"crypto/ed25519"

	"github.com/hyperledger/iroha-sub011/common"
)

// Sign produces a detached Ed25519 signature over hash using priv.
//
// Ed25519 is Iroha's default signature scheme; the teacher corpus's
// secp256k1 libraries (btcec, decred/dcrd/secp256k1) are Ethereum/Bitcoin
// curve-specific and not a fit here, so this is built on stdlib
// crypto/ed25519 rather than a pack-grounded third-party curve library (see
// DESIGN.md).
func Sign(priv ed25519.PrivateKey, hash common.Hash) common.Signature {
	sig := ed25519.Sign(priv, hash[:])
	var out common.Signature
	copy(out[:], sig)
	return out
}

// Verify reports whether sig is a valid Ed25519 signature by pub over hash.
func Verify(pub common.PublicKey, hash common.Hash, sig common.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), hash[:], sig[:])
}

// SignHeader signs a block header and returns the Signature envelope ready
// to append to Block.Signatures.
func SignHeader(priv ed25519.PrivateKey, pub common.PublicKey, h BlockHeader) Signature {
	return Signature{PublicKey: pub, Sig: Sign(priv, h.Hash())}
}

// VerifyHeaderSignature checks one signature entry against a header hash.
func VerifyHeaderSignature(h BlockHeader, s Signature) bool {
	return Verify(s.PublicKey, h.Hash(), s.Sig)
}

// SignViewChangeKey signs a view-change (index, reason, height, peer-set) key.
func SignViewChangeKey(priv ed25519.PrivateKey, pub common.PublicKey, k ViewChangeKey) Signature {
	return Signature{PublicKey: pub, Sig: Sign(priv, k.Hash())}
}

// Package types holds the wire- and consensus-level data structures shared
// by every replication-engine component: Transaction and Block (§3), the
// per-transaction execution verdict (§4.2), and the peer/view-change records
// Sumeragi operates on (§3, §4.5).
package types

import (
	"time"

	"github.com/hyperledger/iroha-sub011/common"
)

// Instruction is the opaque, externally-defined unit of state mutation a
// transaction carries (§3, §4.2: "the instruction set is opaque to this
// spec"). The replication engine never interprets Payload; it hands the
// whole Instruction list to the external executor and records whatever
// verdict comes back.
type Instruction struct {
	// Kind names the instruction variant for the external executor's
	// dispatch (§9 "tagged variant (sum type) with one execution function
	// per variant").
	Kind    string
	Payload []byte
}

// Payload is the signable content of a transaction: everything except the
// signatures (§3 "signatures excluded from identity").
type Payload struct {
	ChainID        string
	Authority      common.AccountID
	Instructions   []Instruction // mutually exclusive with WASM
	WASM           []byte        // a smart-contract transaction carries this instead of Instructions
	CreationTimeMs int64
	TTLMs          int64
	Nonce          uint64
	Metadata       map[string]string
}

func (p Payload) IsWASM() bool { return len(p.WASM) > 0 }

// CreationTime converts CreationTimeMs to a time.Time for TTL/future-
// threshold arithmetic (§4.3).
func (p Payload) CreationTime() time.Time {
	return time.UnixMilli(p.CreationTimeMs)
}

// Encode produces the canonical encoding whose hash is the transaction's
// identity (§3). Only Payload is encoded — signatures are never part of
// identity, so two differently-signed copies of the same intent hash
// identically and collide correctly in the queue's by_hash index.
func (p Payload) Encode() []byte {
	e := newEncoder()
	e.writeString(p.ChainID)
	e.writeString(p.Authority.Name)
	e.writeString(p.Authority.Domain)
	e.writeUvarint(uint64(len(p.Instructions)))
	for _, ins := range p.Instructions {
		e.writeString(ins.Kind)
		e.writeBytes(ins.Payload)
	}
	e.writeBytes(p.WASM)
	e.writeInt64(p.CreationTimeMs)
	e.writeInt64(p.TTLMs)
	e.writeUvarint(p.Nonce)
	e.writeUvarint(uint64(len(p.Metadata)))
	for _, k := range sortedKeys(p.Metadata) {
		e.writeString(k)
		e.writeString(p.Metadata[k])
	}
	return e.bytes()
}

// Transaction is a Payload plus one or more detached signatures (§3). A
// single signature is the common case; multisignature accounts (see
// original_source client/tests/integration_tests/multisignature_transaction.rs)
// may require more than one before SignatureCondition passes.
type Transaction struct {
	Payload    Payload
	Signatures []Signature
}

// Signature pairs a Signature value with the public key that produced it,
// since a multisignature account's quorum check (§4.3 SignatureCondition)
// needs to know which keys actually signed, not just how many signatures
// exist.
type Signature struct {
	PublicKey common.PublicKey
	Sig       common.Signature
}

// Hash is the transaction's identity: HashOf(canonical Payload encoding).
func (tx *Transaction) Hash() common.Hash {
	return common.HashOf(tx.Payload.Encode())
}

// VerdictKind is whether a transaction's execution succeeded (§3 Block).
type VerdictKind int

const (
	Approved VerdictKind = iota
	Rejected
)

func (v VerdictKind) String() string {
	if v == Approved {
		return "approved"
	}
	return "rejected"
}

// Verdict is the per-transaction execution outcome recorded in a committed
// block (§3, §4.2: "Rejection is per-transaction; subsequent transactions
// in the same block are unaffected").
type Verdict struct {
	Kind   VerdictKind
	Reason string // empty when Kind == Approved
}

func ApprovedVerdict() Verdict        { return Verdict{Kind: Approved} }
func RejectedVerdict(reason string) Verdict { return Verdict{Kind: Rejected, Reason: reason} }

// TransactionWithVerdict is one entry of a committed block's transaction
// list (§3 Block: "an ordered list of transactions, each annotated with an
// execution verdict").
type TransactionWithVerdict struct {
	Transaction Transaction
	Verdict     Verdict
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Canonical encoding must not depend on Go's randomized map iteration
	// order, so metadata keys are always written sorted.
	insertionSort(keys)
	return keys
}

func insertionSort(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

package wsv

import (
	"encoding/hex"
	"fmt"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
)

// The distilled spec treats the instruction set as an opaque, externally
// defined collaborator (§4.2 Non-goals: "the instruction schema itself").
// That holds for WASM payloads, but the spec's own end-to-end scenarios
// (register_domain, mint, transfer_asset, find_domain, find_asset_quantity)
// need *some* concrete instructions to exist, so a small built-in set covers
// those scenarios; ExecutorFunc remains the hook for anything beyond it.
const (
	KindRegisterDomain         = "RegisterDomain"
	KindRegisterAccount        = "RegisterAccount"
	KindRegisterAssetDefinition = "RegisterAssetDefinition"
	KindMintAsset              = "MintAsset"
	KindBurnAsset              = "BurnAsset"
	KindTransferAsset          = "TransferAsset"
	KindGrantPermission        = "GrantPermission"
	KindRegisterPeer           = "RegisterPeer"
	KindUnregisterPeer         = "UnregisterPeer"
	KindSetParameter           = "SetParameter"
)

// ExecutorFunc handles an instruction kind the built-in executor does not
// recognize, e.g. a WASM smart-contract call dispatched by Torii (out of
// scope here) or a custom instruction defined by a deployment. It receives
// the mutable next-state view being built by Apply.
type ExecutorFunc func(next *state, authority common.AccountID, payload []byte) error

// Executor applies a transaction's instructions against the in-progress next
// state during WSV.Apply. Each instruction either mutates state or returns
// an error; an error aborts only the remaining instructions of that
// transaction, never the block (§4.2).
type Executor struct {
	wsv      *WSV
	external map[string]ExecutorFunc
}

func NewExecutor(w *WSV) *Executor {
	return &Executor{wsv: w, external: map[string]ExecutorFunc{}}
}

// Register installs a handler for an instruction kind not covered by the
// built-in set.
func (e *Executor) Register(kind string, fn ExecutorFunc) {
	e.external[kind] = fn
}

// Apply runs every instruction in tx's payload in order against a copy of
// next, stopping at the first instruction that fails (the remainder never
// runs). Only when every instruction succeeds is the copy written back to
// next, so a failed transaction leaves next unchanged.
func (e *Executor) Apply(next *state, tx *types.Transaction) error {
	authority := tx.Payload.Authority
	trial := next.clone()
	for i, instr := range tx.Payload.Instructions {
		if err := e.applyOne(trial, authority, instr); err != nil {
			return fmt.Errorf("wsv: instruction %d (%s): %w", i, instr.Kind, err)
		}
	}
	*next = *trial
	return nil
}

func (e *Executor) applyOne(next *state, authority common.AccountID, instr types.Instruction) error {
	switch instr.Kind {
	case KindRegisterDomain:
		return registerDomain(next, decodeStrings(instr.Payload, 1)[0])
	case KindRegisterAccount:
		fields := decodeStrings(instr.Payload, 2)
		return registerAccount(next, common.AccountID{Name: fields[0], Domain: fields[1]})
	case KindRegisterAssetDefinition:
		fields := decodeStrings(instr.Payload, 2)
		return registerAssetDefinition(next, fields[0], fields[1])
	case KindMintAsset:
		return mintOrBurn(next, instr.Payload, true)
	case KindBurnAsset:
		return mintOrBurn(next, instr.Payload, false)
	case KindTransferAsset:
		return transferAsset(next, instr.Payload)
	case KindGrantPermission:
		fields := decodeStrings(instr.Payload, 3)
		return grantPermission(next, common.AccountID{Name: fields[0], Domain: fields[1]}, fields[2])
	case KindRegisterPeer:
		return registerPeer(next, instr.Payload)
	case KindUnregisterPeer:
		return unregisterPeer(next, instr.Payload)
	case KindSetParameter:
		fields := decodeStrings(instr.Payload, 2)
		next.parameters[fields[0]] = fields[1]
		return nil
	default:
		if fn, ok := e.external[instr.Kind]; ok {
			return fn(next, authority, instr.Payload)
		}
		return fmt.Errorf("wsv: unknown instruction kind %q", instr.Kind)
	}
}

func registerDomain(next *state, name string) error {
	if _, exists := next.domains[name]; exists {
		return fmt.Errorf("wsv: domain %q already registered", name)
	}
	next.domains[name] = newDomain(name)
	return nil
}

func registerAccount(next *state, id common.AccountID) error {
	d, ok := next.domains[id.Domain]
	if !ok {
		return fmt.Errorf("wsv: domain %q does not exist", id.Domain)
	}
	if _, exists := d.Accounts[id.Name]; exists {
		return fmt.Errorf("wsv: account %q already registered", id)
	}
	d.Accounts[id.Name] = newAccount(id)
	return nil
}

func registerAssetDefinition(next *state, assetName, domainName string) error {
	d, ok := next.domains[domainName]
	if !ok {
		return fmt.Errorf("wsv: domain %q does not exist", domainName)
	}
	if _, exists := d.AssetDefinitions[assetName]; exists {
		return fmt.Errorf("wsv: asset definition %q already registered", assetName)
	}
	d.AssetDefinitions[assetName] = AssetDefinition{Name: assetName, Domain: domainName, Mintable: true}
	return nil
}

func accountOf(next *state, id common.AccountID) (*Account, error) {
	d, ok := next.domains[id.Domain]
	if !ok {
		return nil, fmt.Errorf("wsv: domain %q does not exist", id.Domain)
	}
	a, ok := d.Accounts[id.Name]
	if !ok {
		return nil, fmt.Errorf("wsv: account %q does not exist", id)
	}
	return a, nil
}

// mintOrBurn payload: [account.name, account.domain, asset#domain, amount-as-string].
func mintOrBurn(next *state, payload []byte, mint bool) error {
	fields := decodeStrings(payload, 4)
	acct, err := accountOf(next, common.AccountID{Name: fields[0], Domain: fields[1]})
	if err != nil {
		return err
	}
	amount := parseUint(fields[3])
	key := fields[2]
	if mint {
		acct.Assets[key] += amount
		return nil
	}
	if acct.Assets[key] < amount {
		return fmt.Errorf("wsv: insufficient balance of %q to burn %d", key, amount)
	}
	acct.Assets[key] -= amount
	return nil
}

// transferAsset payload: [from.name, from.domain, to.name, to.domain, asset#domain, amount].
func transferAsset(next *state, payload []byte) error {
	fields := decodeStrings(payload, 6)
	from, err := accountOf(next, common.AccountID{Name: fields[0], Domain: fields[1]})
	if err != nil {
		return err
	}
	to, err := accountOf(next, common.AccountID{Name: fields[2], Domain: fields[3]})
	if err != nil {
		return err
	}
	key := fields[4]
	amount := parseUint(fields[5])
	if from.Assets[key] < amount {
		return fmt.Errorf("wsv: insufficient balance of %q to transfer %d", key, amount)
	}
	from.Assets[key] -= amount
	to.Assets[key] += amount
	return nil
}

func grantPermission(next *state, id common.AccountID, permission string) error {
	acct, err := accountOf(next, id)
	if err != nil {
		return err
	}
	acct.Permissions.Add(permission)
	return nil
}

// registerPeer payload: [address, pubkey-hex].
func registerPeer(next *state, payload []byte) error {
	fields := decodeStrings(payload, 2)
	pk, err := decodePublicKeyHex(fields[1])
	if err != nil {
		return err
	}
	peers := append(next.peers.Peers(), common.PeerID{Address: fields[0], PublicKey: pk})
	next.peers = types.NewPeerSet(peers)
	return nil
}

// unregisterPeer payload: [pubkey-hex].
func unregisterPeer(next *state, payload []byte) error {
	fields := decodeStrings(payload, 1)
	pk, err := decodePublicKeyHex(fields[0])
	if err != nil {
		return err
	}
	var kept []common.PeerID
	for _, p := range next.peers.Peers() {
		if p.PublicKey != pk {
			kept = append(kept, p)
		}
	}
	next.peers = types.NewPeerSet(kept)
	return nil
}

func decodePublicKeyHex(s string) (common.PublicKey, error) {
	var pk common.PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("wsv: invalid public key hex %q: %w", s, err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("wsv: public key must be %d bytes, got %d", len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

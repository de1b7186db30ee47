package wsv

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/hyperledger/iroha-sub011/common"
)

// Domain owns a set of accounts, mirroring §3 "a mapping from domain
// identifier to domain object; each domain owns accounts". Domains, accounts
// and assets form a tree rather than a cycle (§9): accounts reference their
// domain by name, never by pointer, so the whole structure serializes and
// copies trivially.
type Domain struct {
	Name     string
	Accounts map[string]*Account // keyed by account name (unique within a domain)

	// AssetDefinitions records which asset types may be minted/held within
	// this domain, e.g. "rose" in "rose#wonderland".
	AssetDefinitions map[string]AssetDefinition

	Metadata map[string]string
}

func newDomain(name string) *Domain {
	return &Domain{
		Name:             name,
		Accounts:         map[string]*Account{},
		AssetDefinitions: map[string]AssetDefinition{},
		Metadata:         map[string]string{},
	}
}

// clone returns a deep-enough copy so mutating the clone never affects a
// snapshot still referencing the original (§4.2 "copy-on-write ... a
// snapshot is not invalidated by subsequent writes").
func (d *Domain) clone() *Domain {
	cp := &Domain{
		Name:             d.Name,
		Accounts:         make(map[string]*Account, len(d.Accounts)),
		AssetDefinitions: make(map[string]AssetDefinition, len(d.AssetDefinitions)),
		Metadata:         make(map[string]string, len(d.Metadata)),
	}
	for k, a := range d.Accounts {
		cp.Accounts[k] = a.clone()
	}
	for k, v := range d.AssetDefinitions {
		cp.AssetDefinitions[k] = v
	}
	for k, v := range d.Metadata {
		cp.Metadata[k] = v
	}
	return cp
}

// AssetDefinition is the metadata of an asset type, e.g. "rose#wonderland"'s
// mintability and precision.
type AssetDefinition struct {
	Name        string
	Domain      string
	Mintable    bool
	Precision   uint8
}

// Account owns assets, roles and permissions within its domain (§3).
type Account struct {
	ID    common.AccountID
	// Assets maps an asset definition's "name#domain" string to the
	// account's integer balance of it.
	Assets map[string]uint64

	Roles       mapset.Set[string]
	Permissions mapset.Set[string]
	Metadata    map[string]string

	// Signatories is the set of public keys whose signatures count toward
	// this account's quorum (§4.3 SignatureCondition); SignatureQuorum is
	// how many distinct signatures are required.
	Signatories     []common.PublicKey
	SignatureQuorum int
}

func newAccount(id common.AccountID) *Account {
	return &Account{
		ID:              id,
		Assets:          map[string]uint64{},
		Roles:           mapset.NewSet[string](),
		Permissions:     mapset.NewSet[string](),
		Metadata:        map[string]string{},
		SignatureQuorum: 1,
	}
}

func (a *Account) clone() *Account {
	cp := &Account{
		ID:              a.ID,
		Assets:          make(map[string]uint64, len(a.Assets)),
		Roles:           a.Roles.Clone(),
		Permissions:     a.Permissions.Clone(),
		Metadata:        make(map[string]string, len(a.Metadata)),
		Signatories:     append([]common.PublicKey{}, a.Signatories...),
		SignatureQuorum: a.SignatureQuorum,
	}
	for k, v := range a.Assets {
		cp.Assets[k] = v
	}
	for k, v := range a.Metadata {
		cp.Metadata[k] = v
	}
	return cp
}

// HasSufficientSignatures reports whether signers meets this account's
// quorum requirement (§4.3 SignatureCondition). Only keys that are actually
// registered signatories for the account count.
func (a *Account) HasSufficientSignatures(signers []common.PublicKey) bool {
	known := make(map[common.PublicKey]struct{}, len(a.Signatories))
	for _, s := range a.Signatories {
		known[s] = struct{}{}
	}
	count := 0
	seen := make(map[common.PublicKey]struct{}, len(signers))
	for _, s := range signers {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := known[s]; ok {
			count++
		}
	}
	return count >= a.SignatureQuorum
}

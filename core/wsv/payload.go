package wsv

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/hyperledger/iroha-sub011/common"
	"github.com/hyperledger/iroha-sub011/core/types"
)

// Built-in instructions encode their arguments as a NUL-joined string list
// rather than reusing the canonical binary encoder in core/types: instruction
// payloads are opaque bytes by design (§4.2), so nothing outside this file
// needs to agree on their internal layout.
const fieldSep = "\x00"

func encodeStrings(fields ...string) []byte {
	return []byte(strings.Join(fields, fieldSep))
}

// decodeStrings splits payload on the field separator, padding with empty
// strings up to want so callers can index fixed positions without bounds
// checks.
func decodeStrings(payload []byte, want int) []string {
	fields := strings.Split(string(payload), fieldSep)
	for len(fields) < want {
		fields = append(fields, "")
	}
	return fields
}

func parseUint(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

// Instruction builders used by callers constructing transactions (tests,
// and any in-repo genesis/tooling code) so instruction payloads never need
// to be hand-encoded at the call site.

func RegisterDomainInstruction(name string) types.Instruction {
	return types.Instruction{Kind: KindRegisterDomain, Payload: encodeStrings(name)}
}

func RegisterAccountInstruction(name, domain string) types.Instruction {
	return types.Instruction{Kind: KindRegisterAccount, Payload: encodeStrings(name, domain)}
}

func RegisterAssetDefinitionInstruction(assetName, domain string) types.Instruction {
	return types.Instruction{Kind: KindRegisterAssetDefinition, Payload: encodeStrings(assetName, domain)}
}

func MintAssetInstruction(accountName, accountDomain, assetKey string, amount uint64) types.Instruction {
	return types.Instruction{
		Kind:    KindMintAsset,
		Payload: encodeStrings(accountName, accountDomain, assetKey, strconv.FormatUint(amount, 10)),
	}
}

func BurnAssetInstruction(accountName, accountDomain, assetKey string, amount uint64) types.Instruction {
	return types.Instruction{
		Kind:    KindBurnAsset,
		Payload: encodeStrings(accountName, accountDomain, assetKey, strconv.FormatUint(amount, 10)),
	}
}

func TransferAssetInstruction(fromName, fromDomain, toName, toDomain, assetKey string, amount uint64) types.Instruction {
	return types.Instruction{
		Kind: KindTransferAsset,
		Payload: encodeStrings(fromName, fromDomain, toName, toDomain, assetKey,
			strconv.FormatUint(amount, 10)),
	}
}

func GrantPermissionInstruction(accountName, accountDomain, permission string) types.Instruction {
	return types.Instruction{Kind: KindGrantPermission, Payload: encodeStrings(accountName, accountDomain, permission)}
}

func SetParameterInstruction(key, value string) types.Instruction {
	return types.Instruction{Kind: KindSetParameter, Payload: encodeStrings(key, value)}
}

func RegisterPeerInstruction(address string, pubKey common.PublicKey) types.Instruction {
	return types.Instruction{Kind: KindRegisterPeer, Payload: encodeStrings(address, hex.EncodeToString(pubKey[:]))}
}

func UnregisterPeerInstruction(pubKey common.PublicKey) types.Instruction {
	return types.Instruction{Kind: KindUnregisterPeer, Payload: encodeStrings(hex.EncodeToString(pubKey[:]))}
}

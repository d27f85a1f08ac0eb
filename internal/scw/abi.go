package scw

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"faktoro.io/faktoro-relay/pkg/errors"
)

// ABI of the 2FA wallet contract. executeWithSignature is the meta-transaction
// path: the contract verifies the authorization service's signature over the
// tight-packed (to, value, data) payload before executing.
const walletABIJSON = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"owner_","type":"address"},
		{"name":"guardian_","type":"address"}]},
	{"type":"function","name":"exec","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"executeWithSignature","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"sig","type":"tuple","components":[
			{"name":"v","type":"uint8"},
			{"name":"r","type":"bytes32"},
			{"name":"s","type":"bytes32"}]}],"outputs":[]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"guardian","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var walletABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(walletABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Signature is an ECDSA signature in the contract's (v, r, s) layout.
type Signature struct {
	V uint8    `json:"v"`
	R [32]byte `json:"r"`
	S [32]byte `json:"s"`
}

// PackExecPayload tight-packs (to, value, data) exactly as the contract hashes
// it for signature verification: 20-byte address, 32-byte big-endian value,
// then the raw call data. No ABI offset tables.
func PackExecPayload(to common.Address, value *big.Int, data []byte) []byte {
	if value == nil {
		value = big.NewInt(0)
	}
	packed := make([]byte, 0, common.AddressLength+32+len(data))
	packed = append(packed, to.Bytes()...)
	packed = append(packed, common.LeftPadBytes(value.Bytes(), 32)...)
	packed = append(packed, data...)
	return packed
}

// PackExecuteWithSignature ABI-encodes the meta-transaction call.
func PackExecuteWithSignature(to common.Address, value *big.Int, data []byte, sig Signature) ([]byte, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	packed, err := walletABI.Pack("executeWithSignature", to, value, data, sig)
	if err != nil {
		return nil, errors.Wrap(err, "pack executeWithSignature")
	}
	return packed, nil
}

// PackExec ABI-encodes the owner-direct execution call.
func PackExec(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = big.NewInt(0)
	}
	packed, err := walletABI.Pack("exec", to, value, data)
	if err != nil {
		return nil, errors.Wrap(err, "pack exec")
	}
	return packed, nil
}

// ConstructorData returns the deployment payload: runtime factory bytecode
// followed by the ABI-encoded constructor arguments. Owner and guardian are
// both set to the owner at creation.
func ConstructorData(owner common.Address) ([]byte, error) {
	args, err := walletABI.Constructor.Inputs.Pack(owner, owner)
	if err != nil {
		return nil, errors.Wrap(err, "pack wallet constructor args")
	}
	return append(common.FromHex(walletBytecodeHex), args...), nil
}

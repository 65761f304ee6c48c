package signer

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/asterdex/dn-arb-core/internal/asterr"
)

// RecvWindowEIP712 is the recvWindow (microseconds) attached to every
// EIP-712-signed perp request.
const RecvWindowEIP712 = 50_000

// EIP712Signer signs perp-market payloads the way AsterDex's
// /fapi/v3/* routes expect: canonicalize the JSON payload with keys
// sorted recursively, ABI-pack it into the tuple
// (string, address, address, uint256) = (json(payload), user, signer,
// nonce), keccak256 the packed bytes, then apply the Ethereum
// "personal sign" prefix before ECDSA-signing with the account's
// private key. This is a raw ABI-tuple scheme, not full EIP-712
// typed-data struct hashing.
type EIP712Signer struct {
	privateKey *ecdsa.PrivateKey
	user       common.Address
	signerAddr common.Address
	args       abi.Arguments
}

// NewEIP712Signer builds a signer for one (user, signer) account pair.
// privateKeyHex is the hex-encoded secp256k1 key used to produce the
// personal-sign signature; it is never echoed back in any error.
func NewEIP712Signer(privateKeyHex, user, signerAddress string) (*EIP712Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, asterr.NewSignatureError("invalid private key")
	}
	if !common.IsHexAddress(user) {
		return nil, asterr.NewSignatureError("invalid user address")
	}
	if !common.IsHexAddress(signerAddress) {
		return nil, asterr.NewSignatureError("invalid signer address")
	}

	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, asterr.NewSignatureError("abi type init failed")
	}
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, asterr.NewSignatureError("abi type init failed")
	}
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, asterr.NewSignatureError("abi type init failed")
	}

	args := abi.Arguments{
		{Type: stringTy},
		{Type: addressTy},
		{Type: addressTy},
		{Type: uint256Ty},
	}

	return &EIP712Signer{
		privateKey: key,
		user:       common.HexToAddress(user),
		signerAddr: common.HexToAddress(signerAddress),
		args:       args,
	}, nil
}

// Prepare signs payload with a fresh nonce (current microseconds) and
// returns the nonce (for the caller to attach as a request parameter)
// alongside the hex-encoded signature. recvWindow is not part of the
// signed tuple; the caller attaches it to the request separately.
func (s *EIP712Signer) Prepare(payload map[string]interface{}) (nonce int64, signature string, err error) {
	nonce = time.Now().UnixMicro()
	sig, err := s.Sign(payload, nonce)
	if err != nil {
		return 0, "", err
	}
	return nonce, sig, nil
}

// Sign implements the literal algorithm: canonical JSON of payload,
// ABI-pack the tuple (json, user, signer, nonce), keccak256, personal
// sign.
func (s *EIP712Signer) Sign(payload map[string]interface{}, nonce int64) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", asterr.NewSignatureError("payload canonicalization failed")
	}

	packed, err := s.args.Pack(canonical, s.user, s.signerAddr, big.NewInt(nonce))
	if err != nil {
		return "", asterr.NewSignatureError("abi packing failed")
	}

	digest := crypto.Keccak256Hash(packed)
	prefixed := personalSignHash(digest.Bytes())

	sigBytes, err := crypto.Sign(prefixed.Bytes(), s.privateKey)
	if err != nil {
		return "", asterr.NewSignatureError("ecdsa signing failed")
	}
	// go-ethereum returns a 0/1 recovery id; Ethereum's personal-sign
	// convention expects 27/28 in the final byte.
	if len(sigBytes) == 65 {
		sigBytes[64] += 27
	}

	return "0x" + common.Bytes2Hex(sigBytes), nil
}

// personalSignHash applies the "\x19Ethereum Signed Message:\n32"
// prefix Ethereum wallets use before signing an arbitrary 32-byte hash.
func personalSignHash(hash []byte) common.Hash {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(hash))
	return crypto.Keccak256Hash([]byte(msg), hash)
}

// canonicalJSON marshals v with object keys sorted recursively at every
// nesting level, so the same logical payload always produces the same
// byte string regardless of map iteration order or caller field order.
func canonicalJSON(v interface{}) (string, error) {
	normalized := normalize(v)
	out, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, kv{key: k, value: normalize(val[k])})
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return val
	}
}

// kv and orderedMap implement json.Marshaler to emit object keys in a
// fixed, sorted order — encoding/json's map handling already sorts
// string keys, but orderedMap makes that guarantee explicit and
// independent of the stdlib's internal behavior.
type kv struct {
	key   string
	value interface{}
}

type orderedMap []kv

func (o orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(pair.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

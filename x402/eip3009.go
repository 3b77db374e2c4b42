// x402/eip3009.go
package x402

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TokenVersion is the EIP-712 domain version used by USDC-style contracts.
const TokenVersion = "2"

// HashAuthorization computes the EIP-712 digest of a TransferWithAuthorization
// message: keccak256("\x19\x01" || domainSeparator || structHash).
func HashAuthorization(a *PaymentAuthorization, chainID int64, tokenName string) ([]byte, error) {
	value, err := a.ValueBig()
	if err != nil {
		return nil, err
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              tokenName,
			Version:           TokenVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: common.HexToAddress(a.Asset).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        common.HexToAddress(a.From).Hex(),
			"to":          common.HexToAddress(a.To).Hex(),
			"value":       value.String(),
			"validAfter":  strconv.FormatInt(a.ValidAfter, 10),
			"validBefore": strconv.FormatInt(a.ValidBefore, 10),
			"nonce":       a.Nonce,
		},
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	raw := []byte{0x19, 0x01}
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

// RecoverAuthorizer recovers the address that signed the authorization.
// Accepts both legacy (27/28) and canonical (0/1) recovery ids.
func RecoverAuthorizer(a *PaymentAuthorization, chainID int64, tokenName string) (common.Address, error) {
	digest, err := HashAuthorization(a, chainID, tokenName)
	if err != nil {
		return common.Address{}, err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(a.Signature, "0x"))
	if err != nil || len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature encoding")
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignAuthorization signs the authorization in place with the given key,
// producing the 65-byte r||s||v signature clients would send. Used by the
// local facilitator's tests and dev tooling.
func SignAuthorization(a *PaymentAuthorization, key *ecdsa.PrivateKey, chainID int64, tokenName string) error {
	digest, err := HashAuthorization(a, chainID, tokenName)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return err
	}
	// 27/28 form, matching what wallets emit.
	sig[64] += 27
	a.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// RandomNonce returns a fresh 32-byte hex nonce.
func RandomNonce() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return "0x" + hex.EncodeToString(b[:])
}

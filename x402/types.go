// x402/types.go
package x402

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

// Reason is a stable machine-readable code for a payment rejection. These are
// surfaced verbatim in 402/409 bodies so clients can branch on them.
type Reason string

const (
	ReasonSignatureInvalid    Reason = "INVALID_SIGNATURE"
	ReasonAmountInsufficient  Reason = "AMOUNT_INSUFFICIENT"
	ReasonInsufficientBalance Reason = "INSUFFICIENT_BALANCE"
	ReasonExpired             Reason = "EXPIRED"
	ReasonWrongRecipient      Reason = "WRONG_RECIPIENT"
	ReasonWrongAsset          Reason = "WRONG_ASSET"
	ReasonNonceAlreadyUsed    Reason = "NONCE_ALREADY_USED"
)

var (
	// ErrMalformedPayment marks structural defects in the X-Payment envelope,
	// distinguishable from a verification failure (400 vs 402).
	ErrMalformedPayment = errors.New("malformed payment")

	// ErrFacilitatorUnavailable marks transport-level failures talking to the
	// facilitator. These are the only settle errors safe to retry.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")
)

// PaymentAuthorization is the decoded X-Payment envelope: an EIP-3009
// transferWithAuthorization message plus its 65-byte ECDSA signature
// (r || s || v, hex). Immutable once decoded.
type PaymentAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
	Asset       string `json:"asset"`
	Network     string `json:"network"`
}

// ValueBig parses Value as a non-negative integer token amount.
func (a *PaymentAuthorization) ValueBig() (*big.Int, error) {
	v, ok := new(big.Int).SetString(a.Value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid value %q", a.Value)
	}
	return v, nil
}

// AmountUsdc converts Value from smallest units to a decimal token amount.
func (a *PaymentAuthorization) AmountUsdc(decimals int) float64 {
	v, err := a.ValueBig()
	if err != nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(v),
		big.NewFloat(pow10(decimals)),
	).Float64()
	return f
}

// ReplayKey identifies this authorization for replay checks. A nonce is only
// unique per (asset, payer).
func (a *PaymentAuthorization) ReplayKey() string {
	return a.Asset + "|" + a.From + "|" + a.Nonce
}

// PaymentRequirements describes what a priced route demands. Encoded into the
// X-Payment-Required challenge header and sent to the facilitator alongside
// the authorization on verify.
type PaymentRequirements struct {
	PayTo         string `json:"payTo"`
	PaymentAmount string `json:"paymentAmount"`
	TokenAddress  string `json:"tokenAddress"`
	TokenDecimals int    `json:"tokenDecimals"`
	TokenName     string `json:"tokenName"`
	Network       string `json:"network"`
	ChainID       int64  `json:"chainId"`
}

// AmountBig parses PaymentAmount as an integer token amount.
func (r *PaymentRequirements) AmountBig() (*big.Int, error) {
	v, ok := new(big.Int).SetString(r.PaymentAmount, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid paymentAmount %q", r.PaymentAmount)
	}
	return v, nil
}

// VerifyResult is the facilitator's answer to a verification request. Reason
// is only meaningful when Valid is false.
type VerifyResult struct {
	Valid  bool   `json:"isValid"`
	Reason Reason `json:"invalidReason,omitempty"`
}

// SettleResult is the facilitator's answer to a settlement request. When the
// facilitator reports a nonce as already settled with a known transaction,
// Ok is true and TxHash carries the existing hash — settlement is idempotent
// from the caller's perspective.
type SettleResult struct {
	Ok     bool   `json:"success"`
	TxHash string `json:"txHash,omitempty"`
	Reason Reason `json:"errorReason,omitempty"`
}

// PaymentInfo is attached to the request context after settlement succeeds.
type PaymentInfo struct {
	Payer           string  `json:"payer"`
	AmountUsdc      float64 `json:"amount_usdc"`
	TransactionHash string  `json:"transaction_hash"`
	Nonce           string  `json:"nonce"`
	Asset           string  `json:"asset"`
}

func pow10(n int) float64 {
	f := 1.0
	for i := 0; i < n; i++ {
		f *= 10
	}
	return f
}

// FormatUnits renders an integer token amount in smallest units as a decimal
// string ("250000" with 6 decimals → "0.25").
func FormatUnits(value *big.Int, decimals int) string {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(value),
		big.NewFloat(pow10(decimals)),
	).Float64()
	return strconv.FormatFloat(f, 'f', -1, 64)
}

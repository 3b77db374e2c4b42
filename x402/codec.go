// x402/codec.go
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Header names for the x402 exchange.
const (
	HeaderPayment         = "X-Payment"
	HeaderPaymentRequired = "X-Payment-Required"
)

var nonceRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
var valueRe = regexp.MustCompile(`^[0-9]+$`)

// DecodeXPayment decodes and structurally validates an X-Payment header.
// Any defect wraps ErrMalformedPayment so callers can map it to 400 rather
// than a 402 verification failure.
func DecodeXPayment(header string) (*PaymentAuthorization, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedPayment, err)
	}

	var auth PaymentAuthorization
	if err := json.Unmarshal(raw, &auth); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedPayment, err)
	}

	if err := validateAuthorization(&auth); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayment, err)
	}
	return &auth, nil
}

func validateAuthorization(a *PaymentAuthorization) error {
	if !common.IsHexAddress(a.From) {
		return fmt.Errorf("from is not a valid address: %q", a.From)
	}
	if !common.IsHexAddress(a.To) {
		return fmt.Errorf("to is not a valid address: %q", a.To)
	}
	if !common.IsHexAddress(a.Asset) {
		return fmt.Errorf("asset is not a valid address: %q", a.Asset)
	}
	if !valueRe.MatchString(a.Value) {
		return fmt.Errorf("value must be a non-negative integer string, got %q", a.Value)
	}
	if !nonceRe.MatchString(a.Nonce) {
		return fmt.Errorf("nonce must be a 32-byte hex string, got %q", a.Nonce)
	}
	if a.ValidBefore <= 0 || a.ValidBefore <= a.ValidAfter {
		return fmt.Errorf("invalid validity window [%d, %d]", a.ValidAfter, a.ValidBefore)
	}
	sig := strings.TrimPrefix(a.Signature, "0x")
	if len(sig) != 130 {
		return fmt.Errorf("signature must be 65 bytes hex, got %d chars", len(sig))
	}
	if a.Network == "" {
		return fmt.Errorf("network is required")
	}
	return nil
}

// EncodeXPayment is the inverse of DecodeXPayment; clients (and tests) use it
// to build the X-Payment header.
func EncodeXPayment(auth *PaymentAuthorization) string {
	raw, _ := json.Marshal(auth)
	return base64.StdEncoding.EncodeToString(raw)
}

// EncodeChallenge encodes payment requirements for the X-Payment-Required
// header of a 402 response.
func EncodeChallenge(req PaymentRequirements) string {
	raw, _ := json.Marshal(req)
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeChallenge decodes an X-Payment-Required header.
func DecodeChallenge(header string) (*PaymentRequirements, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("invalid challenge base64: %w", err)
	}
	var req PaymentRequirements
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid challenge JSON: %w", err)
	}
	return &req, nil
}

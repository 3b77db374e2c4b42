// x402/local_facilitator.go
package x402

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalFacilitator performs signature verification in-process and simulates
// settlement. Used in dev mode (FACILITATOR_MODE=local) and as the crypto
// backbone of the test suite; it never touches a chain. Settlement is
// idempotent by nonce, mirroring the contract the real facilitator honors.
type LocalFacilitator struct {
	ChainID   int64
	TokenName string

	Now func() time.Time

	mu      sync.Mutex
	settled map[string]string // replay key -> tx hash
}

func NewLocalFacilitator(chainID int64, tokenName string) *LocalFacilitator {
	return &LocalFacilitator{
		ChainID:   chainID,
		TokenName: tokenName,
		Now:       time.Now,
		settled:   make(map[string]string),
	}
}

// Verify checks the signature recovers to auth.From and that the
// requirements hold, returning a typed reason on failure.
func (f *LocalFacilitator) Verify(_ context.Context, auth *PaymentAuthorization, req PaymentRequirements) (*VerifyResult, error) {
	now := f.Now().Unix()
	if now < auth.ValidAfter || now > auth.ValidBefore {
		return &VerifyResult{Valid: false, Reason: ReasonExpired}, nil
	}
	if !strings.EqualFold(auth.To, req.PayTo) {
		return &VerifyResult{Valid: false, Reason: ReasonWrongRecipient}, nil
	}
	if !strings.EqualFold(auth.Asset, req.TokenAddress) {
		return &VerifyResult{Valid: false, Reason: ReasonWrongAsset}, nil
	}

	value, err := auth.ValueBig()
	if err != nil {
		return &VerifyResult{Valid: false, Reason: ReasonAmountInsufficient}, nil
	}
	required, err := req.AmountBig()
	if err != nil {
		return &VerifyResult{Valid: false, Reason: ReasonAmountInsufficient}, nil
	}
	if value.Cmp(required) < 0 {
		return &VerifyResult{Valid: false, Reason: ReasonAmountInsufficient}, nil
	}

	signer, err := RecoverAuthorizer(auth, f.ChainID, f.TokenName)
	if err != nil || signer != common.HexToAddress(auth.From) {
		return &VerifyResult{Valid: false, Reason: ReasonSignatureInvalid}, nil
	}

	return &VerifyResult{Valid: true}, nil
}

// Settle simulates on-chain execution. Replaying a settled nonce returns the
// existing transaction hash as a success.
func (f *LocalFacilitator) Settle(_ context.Context, auth *PaymentAuthorization) (*SettleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := auth.ReplayKey()
	if tx, ok := f.settled[key]; ok {
		return &SettleResult{Ok: true, TxHash: tx}, nil
	}

	// Deterministic pseudo tx hash so duplicate submissions agree.
	tx := "0x" + hex.EncodeToString(crypto.Keccak256([]byte(key)))
	f.settled[key] = tx
	return &SettleResult{Ok: true, TxHash: tx}, nil
}

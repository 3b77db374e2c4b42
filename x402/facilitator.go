// x402/facilitator.go
package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Facilitator verifies payment authorizations and settles them on-chain.
// Implementations must not retry internally — retry policy lives with the
// caller so it stays in one place.
type Facilitator interface {
	Verify(ctx context.Context, auth *PaymentAuthorization, req PaymentRequirements) (*VerifyResult, error)
	Settle(ctx context.Context, auth *PaymentAuthorization) (*SettleResult, error)
}

// HTTPFacilitator talks to an external facilitator service over HTTP.
// Pure request/response, no local state.
type HTTPFacilitator struct {
	BaseURL       string
	Client        *http.Client
	VerifyTimeout time.Duration
	SettleTimeout time.Duration
}

// NewHTTPFacilitator builds a client for the facilitator at baseURL. Verify
// is bounded short; settle gets a longer bound since it waits on chain
// confirmation.
func NewHTTPFacilitator(baseURL string) *HTTPFacilitator {
	return &HTTPFacilitator{
		BaseURL:       baseURL,
		Client:        &http.Client{Timeout: 90 * time.Second},
		VerifyTimeout: 10 * time.Second,
		SettleTimeout: 60 * time.Second,
	}
}

type facilitatorRequest struct {
	Authorization *PaymentAuthorization `json:"authorization"`
	Requirements  *PaymentRequirements  `json:"requirements,omitempty"`
}

// Verify asks the facilitator to check the signature and the requirements
// against the authorization.
func (f *HTTPFacilitator) Verify(ctx context.Context, auth *PaymentAuthorization, req PaymentRequirements) (*VerifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.VerifyTimeout)
	defer cancel()

	var out VerifyResult
	if err := f.post(ctx, "/verify", facilitatorRequest{Authorization: auth, Requirements: &req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle submits the transfer for on-chain execution. The facilitator treats
// an already-settled nonce as success with the existing transaction hash, so
// retrying after a transport failure cannot double-charge.
func (f *HTTPFacilitator) Settle(ctx context.Context, auth *PaymentAuthorization) (*SettleResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.SettleTimeout)
	defer cancel()

	var out SettleResult
	if err := f.post(ctx, "/settle", facilitatorRequest{Authorization: auth}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *HTTPFacilitator) post(ctx context.Context, path string, in any, out any) error {
	payload, _ := json.Marshal(in)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build facilitator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	// 5xx means the facilitator itself is in trouble — that is a transport
	// class failure, not a payment verdict.
	if resp.StatusCode >= 500 {
		log.Printf("[X402] facilitator %s returned %d: %s", path, resp.StatusCode, string(body))
		return fmt.Errorf("%w: status %d", ErrFacilitatorUnavailable, resp.StatusCode)
	}

	// 2xx and 4xx both carry a structured verdict body (invalid signature,
	// insufficient balance, ...). The verdict is the caller's to interpret.
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: undecodable response (%d): %v", ErrFacilitatorUnavailable, resp.StatusCode, err)
	}
	return nil
}

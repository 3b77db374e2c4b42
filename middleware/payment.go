// middleware/payment.go
package middleware

import (
	"context"
	"errors"
	"log"
	"time"

	"x402-arcade/x402"

	"github.com/gofiber/fiber/v2"
)

// Locals keys shared between the play route and the payment middleware.
const (
	LocalRequirements = "x402_requirements"
	LocalPaymentInfo  = "x402_payment_info"
)

// NonceStore is the persisted side of the replay guard, written at settlement
// time so consumed nonces survive restarts. Both methods are best-effort from
// the middleware's point of view — the session table's unique payment hash is
// the ultimate guard.
type NonceStore interface {
	NonceUsed(ctx context.Context, key string) (bool, error)
	MarkNonceUsed(ctx context.Context, auth *x402.PaymentAuthorization, txHash string) error
}

// PaymentConfig carries the injected collaborators of the x402 middleware.
type PaymentConfig struct {
	Facilitator x402.Facilitator
	Nonces      *NonceCache
	Store       NonceStore // optional

	// SettleAttempts bounds retries after facilitator transport failures.
	// Retrying is safe because settlement is idempotent by nonce; a definitive
	// rejection is never retried.
	SettleAttempts int
	SettleBackoff  time.Duration
}

// X402Payment enforces the 402-challenge / verify / settle protocol for a
// priced route. The route must have stored the PaymentRequirements for this
// request under LocalRequirements before this handler runs. On success the
// settled PaymentInfo is stored under LocalPaymentInfo and the chain
// continues.
func X402Payment(cfg PaymentConfig) fiber.Handler {
	attempts := cfg.SettleAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.SettleBackoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return func(c *fiber.Ctx) error {
		req, ok := c.Locals(LocalRequirements).(x402.PaymentRequirements)
		if !ok {
			log.Printf("[X402] no payment requirements set for %s — route wiring bug", c.Path())
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "INTERNAL_ERROR",
				"message": "payment requirements not configured for this route",
			})
		}

		header := c.Get(x402.HeaderPayment)
		if header == "" {
			c.Set(x402.HeaderPaymentRequired, x402.EncodeChallenge(req))
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   "PAYMENT_REQUIRED",
				"message": "payment of " + req.PaymentAmount + " (" + req.TokenName + ") required — see X-Payment-Required header",
			})
		}

		auth, err := x402.DecodeXPayment(header)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "MALFORMED_PAYMENT",
				"message": err.Error(),
			})
		}

		// Local replay check before any network call.
		key := auth.ReplayKey()
		if cfg.Nonces.Seen(key) {
			return nonceReused(c)
		}
		if cfg.Store != nil {
			if used, err := cfg.Store.NonceUsed(c.UserContext(), key); err == nil && used {
				return nonceReused(c)
			}
		}

		vres, err := cfg.Facilitator.Verify(c.UserContext(), auth, req)
		if err != nil {
			log.Printf("[X402] verify failed for payer %s: %v", auth.From, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "FACILITATOR_UNAVAILABLE",
				"message": "payment verification is temporarily unavailable, retry the request",
			})
		}
		if !vres.Valid {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   fiber.Map{"code": clientReason(vres.Reason)},
				"message": "payment verification failed",
			})
		}

		// Once settlement is dispatched the request runs to completion — a
		// dropped client connection must not orphan an on-chain transfer.
		settleCtx := context.WithoutCancel(c.UserContext())

		var sres *x402.SettleResult
		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 {
				time.Sleep(backoff << (attempt - 1))
			}
			sres, err = cfg.Facilitator.Settle(settleCtx, auth)
			if err == nil || !errors.Is(err, x402.ErrFacilitatorUnavailable) {
				break
			}
			log.Printf("[X402] settle attempt %d/%d failed: %v", attempt+1, attempts, err)
		}
		if err != nil {
			// Exhausted transport retries. The nonce was never consumed, so the
			// client may safely retry the whole request.
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "SETTLEMENT_UNAVAILABLE",
				"message": "payment settlement is temporarily unavailable, retry the request",
			})
		}
		if !sres.Ok {
			if sres.Reason == x402.ReasonNonceAlreadyUsed {
				return nonceReused(c)
			}
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   fiber.Map{"code": clientReason(sres.Reason)},
				"message": "payment settlement was rejected",
			})
		}

		// Consume the nonce before running downstream handlers so a concurrent
		// duplicate is rejected at the replay check, not in the session table.
		cfg.Nonces.MarkUsed(key, time.Unix(auth.ValidBefore, 0))
		if cfg.Store != nil {
			if err := cfg.Store.MarkNonceUsed(settleCtx, auth, sres.TxHash); err != nil {
				log.Printf("[X402] failed to persist used nonce %s: %v", key, err)
			}
		}

		c.Locals(LocalPaymentInfo, x402.PaymentInfo{
			Payer:           auth.From,
			AmountUsdc:      auth.AmountUsdc(req.TokenDecimals),
			TransactionHash: sres.TxHash,
			Nonce:           auth.Nonce,
			Asset:           auth.Asset,
		})

		log.Printf("[X402] settled %s from %s (tx %s)", req.PaymentAmount, auth.From, sres.TxHash)
		return c.Next()
	}
}

func nonceReused(c *fiber.Ctx) error {
	return c.Status(fiber.StatusConflict).JSON(fiber.Map{
		"error":   fiber.Map{"code": string(x402.ReasonNonceAlreadyUsed)},
		"message": "this payment authorization has already been used",
	})
}

// clientReason maps facilitator verdicts onto the stable codes of the public
// API. AMOUNT_INSUFFICIENT (authorization below price) and INSUFFICIENT_BALANCE
// (payer cannot fund it) both surface as INSUFFICIENT_BALANCE; everything else
// passes through.
func clientReason(r x402.Reason) string {
	switch r {
	case x402.ReasonAmountInsufficient, x402.ReasonInsufficientBalance:
		return string(x402.ReasonInsufficientBalance)
	case "":
		return "PAYMENT_REJECTED"
	default:
		return string(r)
	}
}

// handlers/play.go
package handlers

import (
	"errors"
	"log"

	"x402-arcade/config"
	"x402-arcade/middleware"
	"x402-arcade/models"
	"x402-arcade/services"
	"x402-arcade/x402"

	"github.com/gofiber/fiber/v2"
)

// PlayHandler composes the payment pipeline with session and prize-pool
// accounting. It owns request-scoped orchestration only; the services own
// their tables.
type PlayHandler struct {
	Cfg      config.Config
	Sessions *services.SessionService
	Pools    *services.PrizePoolService
	Payments *services.PaymentService
}

func NewPlayHandler(cfg config.Config, sessions *services.SessionService, pools *services.PrizePoolService, payments *services.PaymentService) *PlayHandler {
	return &PlayHandler{Cfg: cfg, Sessions: sessions, Pools: pools, Payments: payments}
}

// SetupPlayRoutes registers the priced play route. Order matters: the game
// type is validated (and the price resolved) before any payment work, the
// existing-session pre-check runs before settlement is attempted, and the
// x402 middleware short-circuits with 402/400/409 before handlePlay runs.
func SetupPlayRoutes(app *fiber.App, h *PlayHandler, payment fiber.Handler) {
	app.Post("/api/v1/play/:gameType", h.validateGame, h.checkExistingSession, payment, h.handlePlay)
}

// validateGame resolves :gameType through the closed enum and stashes the
// payment requirements. Payment must never be requested for a route that
// cannot ultimately create a session.
func (h *PlayHandler) validateGame(c *fiber.Ctx) error {
	gameType, err := models.ParseGameType(c.Params("gameType"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "INVALID_GAME_TYPE",
			"message": err.Error(),
		})
	}

	c.Locals("game_type", gameType)
	c.Locals(middleware.LocalRequirements, h.Cfg.RequirementsFor(gameType))
	return c.Next()
}

// checkExistingSession is the pre-payment resume check. When the request
// carries a decodable payment header we know the payer, so a player who
// already has a live session gets 409 with that session back before any
// settlement call is wasted. Decode failures fall through — the payment
// middleware produces the canonical 400.
func (h *PlayHandler) checkExistingSession(c *fiber.Ctx) error {
	header := c.Get(x402.HeaderPayment)
	if header == "" {
		return c.Next()
	}
	auth, err := x402.DecodeXPayment(header)
	if err != nil {
		return c.Next()
	}

	gameType := c.Locals("game_type").(models.GameType)
	existing, err := h.Sessions.GetActiveSession(auth.From, gameType)
	if err != nil {
		log.Printf("[PLAY] active-session pre-check failed for %s: %v", auth.From, err)
		return c.Next() // correctness is guaranteed by the storage constraints
	}
	if existing != nil {
		return sessionConflict(c, "you already have an active session for this game", existing)
	}
	return c.Next()
}

// handlePlay runs after settlement: create the session, then credit the
// prize pool best-effort. A prize credit failure after the session is durable
// must never cost the player their paid session.
func (h *PlayHandler) handlePlay(c *fiber.Ctx) error {
	gameType := c.Locals("game_type").(models.GameType)
	payment, ok := c.Locals(middleware.LocalPaymentInfo).(x402.PaymentInfo)
	if !ok {
		log.Printf("[PLAY] payment info missing after middleware for %s — route wiring bug", c.Path())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "INTERNAL_ERROR",
			"message": "payment context is missing",
		})
	}

	session, err := h.Sessions.CreateSession(gameType, payment.Payer, payment.TransactionHash, payment.AmountUsdc)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicatePayment):
			return sessionConflict(c, "a session already exists for this payment", session)
		case errors.Is(err, services.ErrSessionExists):
			return sessionConflict(c, "you already have an active session for this game", session)
		default:
			log.Printf("[PLAY] session creation failed for %s (tx %s): %v", payment.Payer, payment.TransactionHash, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "SESSION_CREATION_FAILED",
				"message": "payment settled but session creation failed, contact support with your transaction hash",
			})
		}
	}

	record := &models.PaymentRecord{
		PlayerAddress: payment.Payer,
		GameType:      string(gameType),
		SessionID:     session.ID,
		AmountUsdc:    payment.AmountUsdc,
		TxHash:        payment.TransactionHash,
	}
	if err := h.Payments.RecordPayment(record); err != nil {
		log.Printf("[PLAY] failed to write payment record for tx %s: %v", payment.TransactionHash, err)
	}

	// Secondary accounting. Failure here is logged and reconciled offline;
	// the player has already paid and received access.
	contribution, err := h.Pools.AddToPrizePool(gameType, payment.AmountUsdc, h.Cfg.PrizeSharePercent)
	if err != nil {
		log.Printf("[PLAY] prize pool credit failed for session %s: %v", session.ID, err)
	} else if record.ID != "" {
		if err := h.Payments.MarkPrizeCredited(record.ID, contribution); err != nil {
			log.Printf("[PLAY] failed to mark prize credit on record %s: %v", record.ID, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"sessionId": session.ID,
		"session":   sessionPayload(session),
	})
}

func sessionConflict(c *fiber.Ctx, message string, session *models.GameSession) error {
	body := fiber.Map{
		"error":   "SESSION_EXISTS",
		"message": message,
	}
	if session != nil {
		body["session"] = sessionPayload(session)
	}
	return c.Status(fiber.StatusConflict).JSON(body)
}

func sessionPayload(s *models.GameSession) fiber.Map {
	return fiber.Map{
		"id":             s.ID,
		"gameType":       s.GameType,
		"playerAddress":  s.PlayerAddress,
		"status":         s.Status,
		"amountPaidUsdc": s.AmountPaidUsdc,
		"createdAt":      s.CreatedAt,
	}
}

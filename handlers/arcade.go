// handlers/arcade.go
package handlers

import (
	"errors"

	"x402-arcade/config"
	"x402-arcade/models"
	"x402-arcade/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
)

// ArcadeHandler serves the read side: game catalog, session lookups and
// completion, player stats and prize pool queries.
type ArcadeHandler struct {
	Cfg      config.Config
	Sessions *services.SessionService
	Pools    *services.PrizePoolService
}

func NewArcadeHandler(cfg config.Config, sessions *services.SessionService, pools *services.PrizePoolService) *ArcadeHandler {
	return &ArcadeHandler{Cfg: cfg, Sessions: sessions, Pools: pools}
}

func SetupArcadeRoutes(app *fiber.App, h *ArcadeHandler) {
	api := app.Group("/api/v1")

	api.Get("/games", h.ListGames)
	api.Get("/sessions/:id", h.GetSession)
	api.Post("/sessions/:id/complete", h.CompleteSession)
	api.Get("/players/:address/stats", h.GetPlayerStats)
	api.Get("/players/:address/history", h.GetPlayerHistory)
	api.Get("/prizes/current", h.GetCurrentPrizePool)
	api.Get("/prizes/history", h.GetPrizePoolHistory)
}

// ListGames returns the catalog with per-play prices and today's pools.
func (h *ArcadeHandler) ListGames(c *fiber.Ctx) error {
	games := make([]fiber.Map, 0, len(models.AllGameTypes()))
	for _, g := range models.AllGameTypes() {
		entry := fiber.Map{
			"gameType":     string(g),
			"name":         g.DisplayName(),
			"slug":         g.Slug(),
			"priceUsdc":    h.Cfg.PriceUsdc(g),
			"priceUnits":   h.Cfg.Prices[g],
			"tokenAddress": h.Cfg.TokenAddress,
			"network":      h.Cfg.Network,
		}
		if pool, err := h.Pools.GetCurrentPool(g, models.PeriodDaily); err == nil && pool != nil {
			entry["dailyPrizePoolUsdc"] = pool.TotalAmountUsdc
		}
		games = append(games, entry)
	}
	return c.JSON(fiber.Map{"games": games})
}

func (h *ArcadeHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.Sessions.GetSession(c.Params("id"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "SESSION_NOT_FOUND", "message": "no such session"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB_ERROR", "message": "failed to load session"})
	}
	return c.JSON(fiber.Map{"session": sessionPayload(session)})
}

// CompleteSession records a finished run's score and closes the session.
func (h *ArcadeHandler) CompleteSession(c *fiber.Ctx) error {
	var req struct {
		Score int64 `json:"score"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "INVALID_BODY", "message": "invalid request body"})
	}
	if req.Score < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "INVALID_SCORE", "message": "score must be non-negative"})
	}

	session, err := h.Sessions.CompleteSession(c.Params("id"), req.Score)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "SESSION_NOT_FOUND", "message": "no such session"})
		case errors.Is(err, services.ErrSessionNotActive):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "SESSION_NOT_ACTIVE",
				"message": "session is " + session.Status + " and cannot be completed",
				"session": sessionPayload(session),
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB_ERROR", "message": "failed to complete session"})
		}
	}
	return c.JSON(fiber.Map{"success": true, "session": sessionPayload(session)})
}

func (h *ArcadeHandler) GetPlayerStats(c *fiber.Ctx) error {
	address := c.Params("address")
	if !common.IsHexAddress(address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "INVALID_ADDRESS", "message": "not a valid wallet address"})
	}
	stats, err := h.Sessions.GetPlayerStats(address)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB_ERROR", "message": "failed to load stats"})
	}
	return c.JSON(stats)
}

func (h *ArcadeHandler) GetPlayerHistory(c *fiber.Ctx) error {
	address := c.Params("address")
	if !common.IsHexAddress(address) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "INVALID_ADDRESS", "message": "not a valid wallet address"})
	}
	sessions, err := h.Sessions.GetPlayerHistory(address, c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB_ERROR", "message": "failed to load history"})
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *ArcadeHandler) GetCurrentPrizePool(c *fiber.Ctx) error {
	gameType, periodType, errResp := h.poolQuery(c)
	if errResp != nil {
		return errResp(c)
	}
	pool, err := h.Pools.GetCurrentPool(gameType, periodType)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB_ERROR", "message": "failed to load prize pool"})
	}
	if pool == nil {
		// No payments yet this period — an empty pool, not an error.
		return c.JSON(fiber.Map{
			"gameType":        string(gameType),
			"periodType":      string(periodType),
			"totalAmountUsdc": 0,
			"status":          models.PoolStatusOpen,
		})
	}
	return c.JSON(pool)
}

func (h *ArcadeHandler) GetPrizePoolHistory(c *fiber.Ctx) error {
	gameType, periodType, errResp := h.poolQuery(c)
	if errResp != nil {
		return errResp(c)
	}
	pools, err := h.Pools.GetPoolHistory(gameType, periodType, c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB_ERROR", "message": "failed to load prize history"})
	}
	return c.JSON(fiber.Map{"pools": pools})
}

func (h *ArcadeHandler) poolQuery(c *fiber.Ctx) (models.GameType, models.PeriodType, func(*fiber.Ctx) error) {
	gameType, err := models.ParseGameType(c.Query("gameType"))
	if err != nil {
		return "", "", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "INVALID_GAME_TYPE", "message": err.Error()})
		}
	}
	period := c.Query("period", string(models.PeriodDaily))
	if !models.ValidPeriodType(period) {
		return "", "", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "INVALID_PERIOD", "message": "period must be daily or weekly"})
		}
	}
	return gameType, models.PeriodType(period), nil
}

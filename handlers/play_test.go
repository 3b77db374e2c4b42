package handlers

import (
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"x402-arcade/config"
	"x402-arcade/middleware"
	"x402-arcade/models"
	"x402-arcade/services"
	"x402-arcade/x402"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testPayee   = "0x2222222222222222222222222222222222222222"
	testToken   = "0x3333333333333333333333333333333333333333"
	testChainID = int64(338)
)

func testConfig() config.Config {
	prices := make(map[models.GameType]int64)
	for _, g := range models.AllGameTypes() {
		prices[g] = 250_000 // $0.25 everywhere keeps the fixtures simple
	}
	return config.Config{
		PayeeAddress:      testPayee,
		TokenAddress:      testToken,
		TokenDecimals:     6,
		TokenName:         "USD Coin",
		Network:           "cronos-testnet",
		ChainID:           testChainID,
		Prices:            prices,
		PrizeSharePercent: 75,
	}
}

type playFixture struct {
	app      *fiber.App
	db       *gorm.DB
	cfg      config.Config
	sessions *services.SessionService
	pools    *services.PrizePoolService
}

func newPlayFixture(t *testing.T) *playFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.GameSession{},
		&models.PrizePool{},
		&models.UsedNonce{},
		&models.PaymentRecord{},
	))

	cfg := testConfig()
	sessions := services.NewSessionService(db)
	pools := services.NewPrizePoolService(db)
	payments := services.NewPaymentService(db)

	paymentMW := middleware.X402Payment(middleware.PaymentConfig{
		Facilitator: x402.NewLocalFacilitator(cfg.ChainID, cfg.TokenName),
		Nonces:      middleware.NewNonceCache(time.Minute),
		Store:       payments,
	})

	app := fiber.New()
	SetupPlayRoutes(app, NewPlayHandler(cfg, sessions, pools, payments), paymentMW)
	SetupArcadeRoutes(app, NewArcadeHandler(cfg, sessions, pools))

	return &playFixture{app: app, db: db, cfg: cfg, sessions: sessions, pools: pools}
}

// signedPayment builds a correctly signed X-Payment header for the key.
func signedPayment(t *testing.T, key *ecdsa.PrivateKey, value string) string {
	t.Helper()
	now := time.Now().Unix()
	auth := &x402.PaymentAuthorization{
		From:        crypto.PubkeyToAddress(key.PublicKey).Hex(),
		To:          testPayee,
		Value:       value,
		ValidAfter:  now - 60,
		ValidBefore: now + 600,
		Nonce:       x402.RandomNonce(),
		Asset:       testToken,
		Network:     "cronos-testnet",
	}
	require.NoError(t, x402.SignAuthorization(auth, key, testChainID, "USD Coin"))
	return x402.EncodeXPayment(auth)
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func post(t *testing.T, app *fiber.App, path, paymentHeader string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, nil)
	if paymentHeader != "" {
		req.Header.Set(x402.HeaderPayment, paymentHeader)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), "body: %s", raw)
	}
	return resp, body
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func (f *playFixture) sessionCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.GameSession{}).Count(&n).Error)
	return n
}

func TestPlayWithoutPaymentReturnsChallenge(t *testing.T) {
	f := newPlayFixture(t)

	resp, _ := post(t, f.app, "/api/v1/play/snake", "")
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	challenge, err := x402.DecodeChallenge(resp.Header.Get(x402.HeaderPaymentRequired))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(f.cfg.Prices[models.GameSnake], 10), challenge.PaymentAmount)
	assert.Equal(t, testPayee, challenge.PayTo)
	assert.Equal(t, testToken, challenge.TokenAddress)
	assert.Equal(t, 6, challenge.TokenDecimals)
}

func TestPlayRejectsUnknownGameBeforePayment(t *testing.T) {
	f := newPlayFixture(t)

	resp, body := post(t, f.app, "/api/v1/play/chess", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_GAME_TYPE", body["error"])
	assert.Empty(t, resp.Header.Get(x402.HeaderPaymentRequired), "payment must never be requested for an unplayable route")
}

func TestPlayUnderfundedAuthorization(t *testing.T) {
	f := newPlayFixture(t)
	key := newKey(t)

	resp, body := post(t, f.app, "/api/v1/play/snake", signedPayment(t, key, "100"))
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_BALANCE", body["error"].(map[string]any)["code"])
	assert.Zero(t, f.sessionCount(t), "no session may exist for a rejected payment")
}

func TestPlayHappyPath(t *testing.T) {
	f := newPlayFixture(t)
	key := newKey(t)
	player := crypto.PubkeyToAddress(key.PublicKey).Hex()

	resp, body := post(t, f.app, "/api/v1/play/snake", signedPayment(t, key, "250000"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, "body: %v", body)
	assert.Equal(t, true, body["success"])
	require.NotEmpty(t, body["sessionId"])

	session := body["session"].(map[string]any)
	assert.Equal(t, "snake", session["gameType"])
	assert.Equal(t, player, session["playerAddress"])
	assert.Equal(t, models.SessionStatusActive, session["status"])

	// 75% of $0.25 lands in both pool buckets.
	daily, err := f.pools.GetCurrentPool(models.GameSnake, models.PeriodDaily)
	require.NoError(t, err)
	require.NotNil(t, daily)
	assert.InDelta(t, 0.25*0.75, daily.TotalAmountUsdc, 1e-9)

	// Audit row written and credited.
	var rec models.PaymentRecord
	require.NoError(t, f.db.First(&rec, "session_id = ?", body["sessionId"]).Error)
	assert.True(t, rec.PrizeCredited)
	assert.InDelta(t, 0.25*0.75, rec.PrizeContribUsdc, 1e-9)
}

func TestPlayReplayedAuthorizationRejected(t *testing.T) {
	f := newPlayFixture(t)
	key := newKey(t)
	header := signedPayment(t, key, "250000")

	resp, _ := post(t, f.app, "/api/v1/play/snake", header)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, _ = post(t, f.app, "/api/v1/play/snake", header)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, int64(1), f.sessionCount(t), "a replayed payment must never mint a second session")
}

func TestPlaySecondPaymentWhileSessionActive(t *testing.T) {
	f := newPlayFixture(t)
	key := newKey(t)

	resp, body := post(t, f.app, "/api/v1/play/snake", signedPayment(t, key, "250000"))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	firstID := body["sessionId"].(string)

	// Fresh nonce, same player, same game: resume semantics, not an error.
	resp, body = post(t, f.app, "/api/v1/play/snake", signedPayment(t, key, "250000"))
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.NotNil(t, body["session"], "the 409 must embed the existing session")
	assert.Equal(t, firstID, body["session"].(map[string]any)["id"])

	// A different game is independent.
	resp, _ = post(t, f.app, "/api/v1/play/tetris", signedPayment(t, key, "250000"))
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestPlayPrizePoolFailureStillCreatesSession(t *testing.T) {
	f := newPlayFixture(t)
	key := newKey(t)

	// Break the prize pool table; session creation must be unaffected.
	require.NoError(t, f.db.Migrator().DropTable(&models.PrizePool{}))

	resp, body := post(t, f.app, "/api/v1/play/snake", signedPayment(t, key, "250000"))
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["sessionId"])
	assert.Equal(t, int64(1), f.sessionCount(t))
}

func TestSessionLookupAndCompletion(t *testing.T) {
	f := newPlayFixture(t)
	key := newKey(t)

	_, body := post(t, f.app, "/api/v1/play/pong", signedPayment(t, key, "250000"))
	id := body["sessionId"].(string)

	req := httptest.NewRequest("GET", "/api/v1/sessions/"+id, nil)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	complete := httptest.NewRequest("POST", "/api/v1/sessions/"+id+"/complete", jsonBody(`{"score": 777}`))
	complete.Header.Set("Content-Type", "application/json")
	resp, err = f.app.Test(complete)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	session, err := f.sessions.GetSession(id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)

	// Completing again conflicts.
	complete = httptest.NewRequest("POST", "/api/v1/sessions/"+id+"/complete", jsonBody(`{"score": 1}`))
	complete.Header.Set("Content-Type", "application/json")
	resp, err = f.app.Test(complete)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestGamesCatalog(t *testing.T) {
	f := newPlayFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/games", nil)
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Games []map[string]any `json:"games"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Games, len(models.AllGameTypes()))
	assert.Equal(t, "space-invaders", body.Games[4]["slug"])
}

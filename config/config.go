// config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"x402-arcade/models"
	"x402-arcade/x402"

	"github.com/joho/godotenv"
)

// Config is built once at startup and handed to every component explicitly —
// no service reads the environment after Load returns.
type Config struct {
	Port           string
	AllowedOrigins string
	DatabaseURL    string

	// Payment side
	PayeeAddress    string
	TokenAddress    string
	TokenDecimals   int
	TokenName       string
	Network         string
	ChainID         int64
	FacilitatorURL  string
	FacilitatorMode string // "http" (default) or "local" for dev

	// Per-game price table, USDC smallest units.
	Prices map[models.GameType]int64

	// Share of each payment credited to the prize pool, percent.
	PrizeSharePercent float64

	// Receipt archival to R2; disabled when AccountID is empty.
	R2 R2Config
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Enabled reports whether the R2 archiver should run.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.Bucket != ""
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := Config{
		Port:            getEnv("PORT", "5300"),
		AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		PayeeAddress:    os.Getenv("PAYEE_ADDRESS"),
		TokenAddress:    os.Getenv("TOKEN_ADDRESS"),
		TokenDecimals:   getIntEnv("TOKEN_DECIMALS", 6),
		TokenName:       getEnv("TOKEN_NAME", "USD Coin"),
		Network:         getEnv("NETWORK", "cronos-testnet"),
		ChainID:         int64(getIntEnv("CHAIN_ID", 338)),
		FacilitatorURL:  os.Getenv("FACILITATOR_URL"),
		FacilitatorMode: getEnv("FACILITATOR_MODE", "http"),

		PrizeSharePercent: getFloatEnv("PRIZE_POOL_SHARE_PERCENT", 75),

		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
		},
	}

	cfg.Prices = make(map[models.GameType]int64, len(models.AllGameTypes()))
	for _, g := range models.AllGameTypes() {
		cfg.Prices[g] = priceFor(g)
	}

	return cfg
}

// priceFor resolves a game's price: env override first, then the default
// table. The switch must stay exhaustive over the GameType enum.
func priceFor(g models.GameType) int64 {
	envKey := "PRICE_" + strings.ToUpper(strings.ReplaceAll(string(g), "-", "_")) + "_USDC_UNITS"
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
		log.Printf("⚠️  ignoring invalid %s=%q", envKey, v)
	}

	switch g {
	case models.GameSnake:
		return 100_000 // $0.10
	case models.GameTetris:
		return 250_000 // $0.25
	case models.GamePong:
		return 100_000
	case models.GameBreakout:
		return 150_000
	case models.GameSpaceInvaders:
		return 250_000
	default:
		panic(fmt.Sprintf("no price configured for game type %q", g))
	}
}

// RequirementsFor shapes the x402 challenge for one game.
func (c Config) RequirementsFor(g models.GameType) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		PayTo:         c.PayeeAddress,
		PaymentAmount: strconv.FormatInt(c.Prices[g], 10),
		TokenAddress:  c.TokenAddress,
		TokenDecimals: c.TokenDecimals,
		TokenName:     c.TokenName,
		Network:       c.Network,
		ChainID:       c.ChainID,
	}
}

// PriceUsdc is the decimal price of one play of g.
func (c Config) PriceUsdc(g models.GameType) float64 {
	scale := 1.0
	for i := 0; i < c.TokenDecimals; i++ {
		scale *= 10
	}
	return float64(c.Prices[g]) / scale
}

func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.PayeeAddress == "" {
		return fmt.Errorf("PAYEE_ADDRESS is required")
	}
	if c.TokenAddress == "" {
		return fmt.Errorf("TOKEN_ADDRESS is required")
	}
	if c.FacilitatorMode == "http" && c.FacilitatorURL == "" {
		return fmt.Errorf("FACILITATOR_URL is required unless FACILITATOR_MODE=local")
	}
	if c.PrizeSharePercent < 0 || c.PrizeSharePercent > 100 {
		return fmt.Errorf("PRIZE_POOL_SHARE_PERCENT must be within [0,100]")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("⚠️  ignoring invalid %s=%q", key, v)
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("⚠️  ignoring invalid %s=%q", key, v)
	}
	return def
}

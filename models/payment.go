// models/payment.go
package models

import "time"

// UsedNonce persists consumed authorization nonces so the in-memory replay
// guard survives process restarts. Key is asset|payer|nonce — a nonce is only
// unique per payer per token contract.
type UsedNonce struct {
	Key          string    `json:"key" gorm:"primaryKey"`
	PayerAddress string    `json:"payer_address" gorm:"index"`
	Asset        string    `json:"asset"`
	TxHash       string    `json:"tx_hash"`
	ValidBefore  int64     `json:"valid_before"`
	CreatedAt    time.Time `json:"created_at"`
}

// PaymentRecord is the audit row written for every settled payment. Written
// best-effort after the session commit; Archived flips once the receipt
// archiver has exported the row to R2.
type PaymentRecord struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	PlayerAddress    string    `json:"player_address" gorm:"index"`
	GameType         string    `json:"game_type"`
	SessionID        string    `json:"session_id"`
	AmountUsdc       float64   `json:"amount_usdc"`
	TxHash           string    `json:"tx_hash" gorm:"index"`
	PrizeContribUsdc float64   `json:"prize_contrib_usdc"`
	PrizeCredited    bool      `json:"prize_credited"`
	Archived         bool      `json:"archived" gorm:"index"`
	CreatedAt        time.Time `json:"created_at"`
}

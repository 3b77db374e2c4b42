// models/game_session.go
package models

import (
	"time"
)

const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusExpired   = "expired"
)

// SessionTTL is how long a paid session stays playable before it is treated
// as expired. Enforced at read time; the sweeper only does housekeeping.
const SessionTTL = 15 * time.Minute

// GameSession is one paid play. PaymentTxHash carries a unique index so a
// replayed payment can never mint a second session. ActiveKey is "1" while
// the session is active and NULL otherwise — the composite unique index on
// (player_address, game_type, active_key) therefore allows any number of
// finished sessions but at most one active one per player per game, because
// NULLs never collide.
type GameSession struct {
	ID             string  `json:"id" gorm:"primaryKey"`
	GameType       string  `json:"game_type" gorm:"not null;uniqueIndex:uniq_active_session"`
	PlayerAddress  string  `json:"player_address" gorm:"not null;index;uniqueIndex:uniq_active_session"`
	PaymentTxHash  string  `json:"payment_tx_hash" gorm:"not null;uniqueIndex"`
	AmountPaidUsdc float64 `json:"amount_paid_usdc"`
	Status         string  `json:"status" gorm:"not null;default:'active';index"`
	ActiveKey      *string `json:"-" gorm:"uniqueIndex:uniq_active_session"`
	Score          *int64  `json:"score,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsExpired reports whether an active session has outlived its TTL at the
// given instant. Completed/expired sessions are never "expired again".
func (s *GameSession) IsExpired(now time.Time) bool {
	return s.Status == SessionStatusActive && now.Sub(s.CreatedAt) > SessionTTL
}

// ActiveSessionKey is the value stored in ActiveKey for live sessions.
func ActiveSessionKey() *string {
	k := "1"
	return &k
}

// models/prize_pool.go
package models

import (
	"fmt"
	"time"
)

type PeriodType string

const (
	PeriodDaily  PeriodType = "daily"
	PeriodWeekly PeriodType = "weekly"
)

const (
	PoolStatusOpen      = "open"
	PoolStatusFinalized = "finalized"
	PoolStatusPaid      = "paid"
)

// PrizePool accumulates a share of every payment for one game and one time
// bucket. TotalAmountUsdc only ever grows; finalization and payout flip
// Status but never decrement the total.
type PrizePool struct {
	ID              string  `json:"id" gorm:"primaryKey"`
	GameType        string  `json:"game_type" gorm:"not null;uniqueIndex:uniq_pool_period"`
	PeriodType      string  `json:"period_type" gorm:"not null;uniqueIndex:uniq_pool_period"`
	PeriodKey       string  `json:"period_key" gorm:"not null;uniqueIndex:uniq_pool_period;index"`
	TotalAmountUsdc float64 `json:"total_amount_usdc" gorm:"not null;default:0"`
	TotalGames      int64   `json:"total_games" gorm:"not null;default:0"`
	Status          string  `json:"status" gorm:"not null;default:'open'"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PeriodKeyFor derives the bucket key for a period type at the given instant,
// always in UTC: "2026-08-26" for daily, ISO "2026-W35" for weekly.
func PeriodKeyFor(pt PeriodType, t time.Time) string {
	t = t.UTC()
	switch pt {
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	default:
		return t.Format("2006-01-02")
	}
}

// ValidPeriodType reports whether s names a supported period bucket.
func ValidPeriodType(s string) bool {
	return s == string(PeriodDaily) || s == string(PeriodWeekly)
}

// services/prizepool_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"x402-arcade/models"
	"x402-arcade/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PrizePoolService owns the prize_pools table exclusively. Pools are created
// lazily on first contribution and only ever grow here — finalization and
// payout are separate, and nothing in this service decrements a total.
type PrizePoolService struct {
	DB *gorm.DB
}

func NewPrizePoolService(db *gorm.DB) *PrizePoolService {
	return &PrizePoolService{DB: db}
}

// AddToPrizePool credits sharePercent of amountPaidUsdc into the current
// daily and weekly pools for the game, as one atomic upsert per bucket.
// Returns the contribution amount.
func (s *PrizePoolService) AddToPrizePool(gameType models.GameType, amountPaidUsdc, sharePercent float64) (float64, error) {
	if sharePercent < 0 || sharePercent > 100 {
		return 0, fmt.Errorf("invalid share percent %.2f", sharePercent)
	}
	contribution := amountPaidUsdc * sharePercent / 100
	now := time.Now()

	for _, pt := range []models.PeriodType{models.PeriodDaily, models.PeriodWeekly} {
		pool := models.PrizePool{
			ID:              uuid.NewString(),
			GameType:        string(gameType),
			PeriodType:      string(pt),
			PeriodKey:       models.PeriodKeyFor(pt, now),
			TotalAmountUsdc: contribution,
			TotalGames:      1,
			Status:          models.PoolStatusOpen,
		}
		err := s.DB.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "game_type"}, {Name: "period_type"}, {Name: "period_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_amount_usdc": gorm.Expr("prize_pools.total_amount_usdc + ?", contribution),
				"total_games":       gorm.Expr("prize_pools.total_games + 1"),
				"updated_at":        now,
			}),
		}).Create(&pool).Error
		if err != nil {
			return 0, fmt.Errorf("failed to credit %s pool: %w", pt, err)
		}
	}

	log.Printf("[PRIZEPOOL] credited %s to %s pools (%.0f%% of %s)",
		utils.FormatUSDC(contribution), gameType, sharePercent, utils.FormatUSDC(amountPaidUsdc))
	return contribution, nil
}

// GetCurrentPool returns the pool for the current period bucket, or nil when
// no payment has been made yet this period — absence is not an error.
func (s *PrizePoolService) GetCurrentPool(gameType models.GameType, periodType models.PeriodType) (*models.PrizePool, error) {
	key := models.PeriodKeyFor(periodType, time.Now())

	var pool models.PrizePool
	err := s.DB.Where("game_type = ? AND period_type = ? AND period_key = ?",
		string(gameType), string(periodType), key).
		First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

// GetPoolHistory lists pools for a game and period type, most recent first.
func (s *PrizePoolService) GetPoolHistory(gameType models.GameType, periodType models.PeriodType, limit, offset int) ([]models.PrizePool, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var pools []models.PrizePool
	err := s.DB.Where("game_type = ? AND period_type = ?", string(gameType), string(periodType)).
		Order("period_key DESC").
		Limit(limit).Offset(offset).
		Find(&pools).Error
	return pools, err
}

// FinalizeEndedPools moves open pools whose period has passed to finalized.
// Payout itself happens outside this service.
func (s *PrizePoolService) FinalizeEndedPools() (int64, error) {
	now := time.Now()
	var total int64
	for _, pt := range []models.PeriodType{models.PeriodDaily, models.PeriodWeekly} {
		res := s.DB.Model(&models.PrizePool{}).
			Where("period_type = ? AND status = ? AND period_key < ?",
				string(pt), models.PoolStatusOpen, models.PeriodKeyFor(pt, now)).
			Update("status", models.PoolStatusFinalized)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

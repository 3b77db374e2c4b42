// services/session_service.go
package services

import (
	"errors"
	"log"
	"time"

	"x402-arcade/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("player already has an active session for this game")
	ErrDuplicatePayment = errors.New("a session was already created for this payment")
	ErrSessionNotActive = errors.New("session is not active")
)

// SessionService owns the game_sessions table exclusively. Both uniqueness
// invariants (one session per payment hash, one active session per player per
// game) live in the schema; the service only interprets the violations.
type SessionService struct {
	DB *gorm.DB
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{DB: db}
}

// GetActiveSession returns the player's live session for a game, or nil.
// A session past its TTL is lazily flipped to expired here so a stale row
// never blocks a new paid session.
func (s *SessionService) GetActiveSession(playerAddress string, gameType models.GameType) (*models.GameSession, error) {
	var session models.GameSession
	err := s.DB.Where("player_address = ? AND game_type = ? AND status = ?",
		playerAddress, string(gameType), models.SessionStatusActive).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if session.IsExpired(time.Now()) {
		if err := s.expire(&session); err != nil {
			log.Printf("[SESSION] failed to expire stale session %s: %v", session.ID, err)
		}
		return nil, nil
	}
	return &session, nil
}

// CreateSession inserts a new active session for a settled payment.
// Returns ErrDuplicatePayment (with the existing session) when the payment
// hash was already consumed, and ErrSessionExists (with the blocking session)
// when the player already has an active one — both mapped to 409 upstream.
func (s *SessionService) CreateSession(gameType models.GameType, playerAddress, paymentTxHash string, amountPaidUsdc float64) (*models.GameSession, error) {
	session := &models.GameSession{
		ID:             uuid.NewString(),
		GameType:       string(gameType),
		PlayerAddress:  playerAddress,
		PaymentTxHash:  paymentTxHash,
		AmountPaidUsdc: amountPaidUsdc,
		Status:         models.SessionStatusActive,
		ActiveKey:      models.ActiveSessionKey(),
	}

	err := s.DB.Create(session).Error
	if err == nil {
		log.Printf("[SESSION] created %s: %s playing %s for %.2f USDC", session.ID, playerAddress, gameType, amountPaidUsdc)
		return session, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}

	// Disambiguate which constraint fired. Payment-hash reuse wins: it means a
	// replayed authorization, regardless of session state.
	var existing models.GameSession
	if lookupErr := s.DB.First(&existing, "payment_tx_hash = ?", paymentTxHash).Error; lookupErr == nil {
		return &existing, ErrDuplicatePayment
	}

	if lookupErr := s.DB.Where("player_address = ? AND game_type = ? AND status = ?",
		playerAddress, string(gameType), models.SessionStatusActive).
		First(&existing).Error; lookupErr == nil {
		if existing.IsExpired(time.Now()) {
			// The blocking session outlived its TTL between the pre-check and
			// the insert. Expire it and retry once.
			if expErr := s.expire(&existing); expErr == nil {
				if retryErr := s.DB.Create(session).Error; retryErr == nil {
					return session, nil
				}
			}
		}
		return &existing, ErrSessionExists
	}

	return nil, err
}

// GetSession fetches a session by id, applying read-time expiration.
func (s *SessionService) GetSession(id string) (*models.GameSession, error) {
	var session models.GameSession
	if err := s.DB.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.IsExpired(time.Now()) {
		if err := s.expire(&session); err != nil {
			log.Printf("[SESSION] failed to expire stale session %s: %v", session.ID, err)
		}
	}
	return &session, nil
}

// CompleteSession records a finished run. Only a live active session can
// complete; an expired one is refused even if the sweeper has not caught it.
func (s *SessionService) CompleteSession(id string, score int64) (*models.GameSession, error) {
	session, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return session, ErrSessionNotActive
	}

	now := time.Now()
	session.Status = models.SessionStatusCompleted
	session.ActiveKey = nil
	session.Score = &score
	session.CompletedAt = &now

	if err := s.DB.Save(session).Error; err != nil {
		return nil, err
	}
	log.Printf("[SESSION] completed %s with score %d", session.ID, score)
	return session, nil
}

// ExpireStaleSessions flips every active session past its TTL to expired.
// Housekeeping only — reads already treat stale sessions as expired.
func (s *SessionService) ExpireStaleSessions() (int64, error) {
	cutoff := time.Now().Add(-models.SessionTTL)
	res := s.DB.Model(&models.GameSession{}).
		Where("status = ? AND created_at < ?", models.SessionStatusActive, cutoff).
		Updates(map[string]interface{}{
			"status":     models.SessionStatusExpired,
			"active_key": nil,
		})
	return res.RowsAffected, res.Error
}

// GetPlayerHistory lists a player's sessions, most recent first.
func (s *SessionService) GetPlayerHistory(playerAddress string, limit, offset int) ([]models.GameSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var sessions []models.GameSession
	err := s.DB.Where("player_address = ?", playerAddress).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&sessions).Error
	return sessions, err
}

// PlayerStats aggregates a player's paid plays.
type PlayerStats struct {
	PlayerAddress  string           `json:"player_address"`
	GamesPlayed    int64            `json:"games_played"`
	TotalSpentUsdc float64          `json:"total_spent_usdc"`
	BestScores     map[string]int64 `json:"best_scores"`
}

// GetPlayerStats computes totals and per-game best scores.
func (s *SessionService) GetPlayerStats(playerAddress string) (*PlayerStats, error) {
	stats := &PlayerStats{
		PlayerAddress: playerAddress,
		BestScores:    make(map[string]int64),
	}

	row := s.DB.Model(&models.GameSession{}).
		Select("COUNT(*), COALESCE(SUM(amount_paid_usdc), 0)").
		Where("player_address = ?", playerAddress).
		Row()
	if err := row.Scan(&stats.GamesPlayed, &stats.TotalSpentUsdc); err != nil {
		return nil, err
	}

	rows, err := s.DB.Model(&models.GameSession{}).
		Select("game_type, MAX(score)").
		Where("player_address = ? AND score IS NOT NULL", playerAddress).
		Group("game_type").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var game string
		var best int64
		if err := rows.Scan(&game, &best); err != nil {
			return nil, err
		}
		stats.BestScores[game] = best
	}
	return stats, rows.Err()
}

func (s *SessionService) expire(session *models.GameSession) error {
	session.Status = models.SessionStatusExpired
	session.ActiveKey = nil
	return s.DB.Save(session).Error
}

// services/payment_service.go
package services

import (
	"context"
	"errors"
	"time"

	"x402-arcade/models"
	"x402-arcade/x402"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentService owns the payment audit trail and the persisted side of the
// nonce replay guard. Everything here is written after money has already
// moved, so failures are logged by callers rather than surfaced to players.
type PaymentService struct {
	DB *gorm.DB
}

func NewPaymentService(db *gorm.DB) *PaymentService {
	return &PaymentService{DB: db}
}

// NonceUsed reports whether a replay key was consumed in a previous process
// lifetime. Implements middleware.NonceStore.
func (s *PaymentService) NonceUsed(ctx context.Context, key string) (bool, error) {
	var nonce models.UsedNonce
	err := s.DB.WithContext(ctx).First(&nonce, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkNonceUsed persists a consumed nonce. Racing writers are fine: the key
// is the primary key and a duplicate insert means the nonce is already
// recorded, which is the state we wanted.
func (s *PaymentService) MarkNonceUsed(ctx context.Context, auth *x402.PaymentAuthorization, txHash string) error {
	err := s.DB.WithContext(ctx).Create(&models.UsedNonce{
		Key:          auth.ReplayKey(),
		PayerAddress: auth.From,
		Asset:        auth.Asset,
		TxHash:       txHash,
		ValidBefore:  auth.ValidBefore,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// RecordPayment writes the audit row for a settled payment.
func (s *PaymentService) RecordPayment(rec *models.PaymentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return s.DB.Create(rec).Error
}

// MarkPrizeCredited flips the audit row once the pool credit landed.
func (s *PaymentService) MarkPrizeCredited(recordID string, contribution float64) error {
	return s.DB.Model(&models.PaymentRecord{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"prize_credited":     true,
			"prize_contrib_usdc": contribution,
		}).Error
}

// ListUnarchivedBefore returns audit rows created before the cutoff that have
// not been exported yet. Used by the receipt archiver.
func (s *PaymentService) ListUnarchivedBefore(cutoff time.Time) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := s.DB.Where("archived = ? AND created_at < ?", false, cutoff).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

// MarkArchived flags exported audit rows.
func (s *PaymentService) MarkArchived(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.DB.Model(&models.PaymentRecord{}).
		Where("id IN ?", ids).
		Update("archived", true).Error
}

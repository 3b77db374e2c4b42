// workers/receipt_archiver.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"x402-arcade/services"
	"x402-arcade/utils"
)

// ReceiptArchiver exports settled payment records to R2 as daily JSON
// objects, for offline reconciliation of prize credits and payouts. Purely
// additive housekeeping — failures leave the rows unarchived for the next
// pass.
type ReceiptArchiver struct {
	Payments *services.PaymentService
}

func NewReceiptArchiver(payments *services.PaymentService) *ReceiptArchiver {
	return &ReceiptArchiver{Payments: payments}
}

// PollReceipts runs the archiver on an interval until ctx is cancelled.
func PollReceipts(ctx context.Context, a *ReceiptArchiver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Receipt archiver stopped")
			return
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				log.Printf("[ARCHIVER] export failed: %v", err)
			}
		}
	}
}

// ArchiveOnce exports every unarchived record older than the start of the
// current UTC day and marks the rows archived.
func (a *ReceiptArchiver) ArchiveOnce(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	records, err := a.Payments.ListUnarchivedBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to list unarchived records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal receipts: %w", err)
	}

	key := fmt.Sprintf("receipts/%s.json", cutoff.AddDate(0, 0, -1).Format("2006-01-02"))
	if err := utils.UploadBytesToR2(ctx, key, body, "application/json"); err != nil {
		return err
	}

	ids := make([]string, len(records))
	var total float64
	for i, r := range records {
		ids[i] = r.ID
		total += r.AmountUsdc
	}
	if err := a.Payments.MarkArchived(ids); err != nil {
		return fmt.Errorf("uploaded %s but failed to mark rows archived: %w", key, err)
	}

	log.Printf("✅ Archived %d receipts (%s) to %s", len(records), utils.FormatUSDC(total), key)
	return nil
}

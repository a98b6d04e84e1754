package ledger

import (
	"context"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/model"
	"go.uber.org/zap"
)

func NewStatsUpdater(storage contactStorage, logger *zap.Logger) *statsUpdater {
	return &statsUpdater{storage: storage, logger: logger}
}

// statsUpdater bumps a saved contact's aggregate counters after a confirmed
// transaction. Best-effort with the same boundary as the recorder: errors are
// logged, never surfaced to the transaction caller.
type statsUpdater struct {
	storage contactStorage
	logger  *zap.Logger
}

// Bump atomically increments the counterparty contact's counters. When the
// address is not a saved contact of userID the underlying update matches
// nothing and the call is a no-op.
func (s *statsUpdater) Bump(ctx context.Context, userID int64, counterpartyAddr string, tx *model.SubmittedTransaction, perspective model.Perspective) {
	err := s.storage.BumpContactStats(ctx, userID, counterpartyAddr, perspective, tx.Value, time.Unix(tx.Timestamp, 0))
	if err != nil {
		s.logger.Error("contact stats update failed",
			zap.Int64("user", userID),
			zap.String("counterparty", counterpartyAddr),
			zap.Error(err))
	}
}

type contactStorage interface {
	// BumpContactStats increments tx count and the sent or received total
	// (chosen by perspective) in one atomic statement, matching the contact
	// by user and case-insensitive address. No matching contact, no change.
	BumpContactStats(ctx context.Context, userID int64, address string, perspective model.Perspective, value string, at time.Time) error
}

package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/model"
	"go.uber.org/zap"
)

func NewRecorder(storage storage, logger *zap.Logger) *recorder {
	return &recorder{storage: storage, logger: logger}
}

// recorder writes the two-sided history for a confirmed transaction. It runs
// after the broadcast is already final, so every failure here is logged and
// swallowed: nothing in this file may ever make an on-chain success look like
// a failure to the original caller.
type recorder struct {
	storage storage
	logger  *zap.Logger
}

// Record writes the sender's `sent` entry and, when the recipient address
// belongs to a known user (matched case-insensitively), that user's
// `received` entry under the same hash. The (user, hash, perspective)
// uniqueness constraint makes re-invocation a no-op rather than a duplicate,
// so a partial failure can safely be retried.
func (r *recorder) Record(ctx context.Context, senderUserID int64, senderAddr, recipientAddr string, tx *model.SubmittedTransaction) {
	now := time.Now().Unix()

	sent := model.LedgerEntry{
		UserID:       senderUserID,
		TxHash:       tx.Hash,
		Perspective:  model.PerspectiveSent,
		Counterparty: recipientAddr,
		Value:        tx.Value,
		Network:      tx.Network,
		Status:       tx.Status,
		BlockNumber:  tx.BlockNumber,
		CreatedAt:    now,
	}
	if err := r.storage.InsertLedgerEntry(ctx, sent); err != nil {
		r.logger.Error("recording sent entry failed",
			zap.String("hash", tx.Hash), zap.Int64("user", senderUserID), zap.Error(err))
	}

	recipient, err := r.storage.GetWalletByAddress(ctx, strings.ToLower(recipientAddr))
	if err != nil {
		// Recipient is not a wallet holder; only the sender side is recorded.
		return
	}

	received := model.LedgerEntry{
		UserID:       recipient.UserID,
		TxHash:       tx.Hash,
		Perspective:  model.PerspectiveReceived,
		Counterparty: senderAddr,
		Value:        tx.Value,
		Network:      tx.Network,
		Status:       tx.Status,
		BlockNumber:  tx.BlockNumber,
		CreatedAt:    now,
	}
	if err := r.storage.InsertLedgerEntry(ctx, received); err != nil {
		r.logger.Error("recording received entry failed",
			zap.String("hash", tx.Hash), zap.Int64("user", recipient.UserID), zap.Error(err))
	}
}

type storage interface {
	// InsertLedgerEntry must treat a duplicate (user, hash, perspective) as
	// a silent no-op, not an error.
	InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) error
	// GetWalletByAddress matches the lowercased address and returns an error
	// when no wallet holder owns it.
	GetWalletByAddress(ctx context.Context, address string) (model.Wallet, error)
}

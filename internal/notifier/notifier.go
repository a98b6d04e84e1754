package notifier

import (
	"context"

	"github.com/abhishek7776/cryptowallet/internal/model"
	"go.uber.org/zap"
)

// Notifier delivers a post-confirmation heads-up to a user. Implementations
// are fire-and-forget: the transaction result never waits on or reflects a
// delivery failure.
type Notifier interface {
	Notify(ctx context.Context, user model.User, tx *model.SubmittedTransaction)
}

// NewLogNotifier returns a Notifier that records the notification in the log
// stream. Stands in for the email collaborator, which is outside this
// service.
func NewLogNotifier(logger *zap.Logger) *logNotifier {
	return &logNotifier{logger: logger}
}

type logNotifier struct {
	logger *zap.Logger
}

func (n *logNotifier) Notify(ctx context.Context, user model.User, tx *model.SubmittedTransaction) {
	n.logger.Info("transaction notification",
		zap.String("username", user.Username),
		zap.String("hash", tx.Hash),
		zap.String("value", tx.Value),
		zap.String("status", tx.Status.String()))
}

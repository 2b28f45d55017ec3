package jobs

import (
	"context"

	"github.com/Tarcisio20/meu-gerente/internal/logging"
)

// Notifier delivers the reset link to the account owner.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogNotifier stands in for mail delivery during development. The link is
// logged at debug level only.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("module", "notifier")}
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, link string) error {
	n.log.Info(ctx, "password reset link issued", "email", email)
	n.log.Debug(ctx, "password reset link", "email", email, "link", link)
	return nil
}

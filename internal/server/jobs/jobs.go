// Package jobs runs the password reset flow outside the request path,
// either on an asynq queue backed by redis or inline.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/Tarcisio20/meu-gerente/internal/server/metrics"
	"github.com/hibiken/asynq"
)

const (
	TaskPasswordReset = "auth:password_reset"
	queueAuth         = "auth"
)

// Dispatcher hands a password reset request to whatever runs it.
type Dispatcher interface {
	DispatchPasswordReset(ctx context.Context, email string) error
}

// PasswordResetHandler is the job body. Returning common.ErrNotFound means
// there is no such account; that finishes the job without retries.
type PasswordResetHandler func(ctx context.Context, email string) error

type PasswordResetPayload struct {
	Email string `json:"email"`
}

func NewPasswordResetTask(email string) (*asynq.Task, error) {
	body, err := json.Marshal(PasswordResetPayload{Email: email})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPasswordReset, body, asynq.Queue(queueAuth), asynq.MaxRetry(3)), nil
}

// run executes handler and records the outcome. Unknown accounts count as
// done so neither path reveals whether the email exists.
func run(ctx context.Context, handler PasswordResetHandler, log logging.Logger, email string) error {
	err := handler(ctx, email)
	if errors.Is(err, common.ErrNotFound) {
		log.Info(ctx, "password reset for unknown account ignored")
		err = nil
	}
	metrics.JobsTotal.WithLabelValues(TaskPasswordReset, metrics.Outcome(err)).Inc()
	return err
}

// InlineDispatcher runs the handler in the caller's goroutine. Used when
// no redis is configured.
type InlineDispatcher struct {
	handler PasswordResetHandler
	log     logging.Logger
}

func NewInlineDispatcher(handler PasswordResetHandler, log logging.Logger) *InlineDispatcher {
	return &InlineDispatcher{handler: handler, log: log.With("module", "jobs")}
}

func (d *InlineDispatcher) DispatchPasswordReset(ctx context.Context, email string) error {
	if err := run(ctx, d.handler, d.log, email); err != nil {
		return fmt.Errorf("password reset: %w", err)
	}
	return nil
}

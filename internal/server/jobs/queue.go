package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/hibiken/asynq"
)

// enqueuer is the part of *asynq.Client the manager uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// QueueManager enqueues reset tasks and runs the embedded worker that
// consumes them.
type QueueManager struct {
	client  enqueuer
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler PasswordResetHandler
	log     logging.Logger
}

func NewQueueManager(redisURL string, concurrency int, handler PasswordResetHandler, log logging.Logger) (*QueueManager, error) {
	if handler == nil {
		return nil, errors.New("password reset handler is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 2
	}

	m := &QueueManager{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{queueAuth: 1},
		}),
		mux:     asynq.NewServeMux(),
		handler: handler,
		log:     log.With("module", "jobs"),
	}
	m.mux.HandleFunc(TaskPasswordReset, m.handlePasswordReset)
	return m, nil
}

func (m *QueueManager) DispatchPasswordReset(ctx context.Context, email string) error {
	task, err := NewPasswordResetTask(email)
	if err != nil {
		return err
	}
	info, err := m.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("%w: enqueue password reset: %v", common.ErrStorageUnavailable, err)
	}
	m.log.Debug(ctx, "password reset enqueued", "task_id", info.ID)
	return nil
}

// Start runs the worker in the background.
func (m *QueueManager) Start() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.log.Error(context.Background(), "asynq server stopped with error", "error", err)
		}
	}()
}

func (m *QueueManager) Shutdown() {
	m.server.Shutdown()
	if err := m.client.Close(); err != nil {
		m.log.Warn(context.Background(), "asynq client close", "error", err)
	}
}

func (m *QueueManager) handlePasswordReset(ctx context.Context, task *asynq.Task) error {
	var p PasswordResetPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Email == "" {
		return fmt.Errorf("missing email in payload: %w", asynq.SkipRetry)
	}
	return run(ctx, m.handler, m.log, p.Email)
}

// Package server wires the API server together: storage, the auth
// services, background jobs, the audit archiver and the HTTP servers, and
// runs them until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/Tarcisio20/meu-gerente/internal/server/audit"
	"github.com/Tarcisio20/meu-gerente/internal/server/config"
	"github.com/Tarcisio20/meu-gerente/internal/server/edge"
	"github.com/Tarcisio20/meu-gerente/internal/server/httpapi"
	"github.com/Tarcisio20/meu-gerente/internal/server/jobs"
	"github.com/Tarcisio20/meu-gerente/internal/server/lockout"
	"github.com/Tarcisio20/meu-gerente/internal/server/realtime"
	"github.com/Tarcisio20/meu-gerente/internal/server/repositories/repomanager"
	"github.com/Tarcisio20/meu-gerente/internal/server/revocation"
	"github.com/Tarcisio20/meu-gerente/internal/server/services"
	"github.com/Tarcisio20/meu-gerente/internal/server/tracing"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	rdb      *redis.Client
	repos    repomanager.RepositoryManager
	users    *services.UserService
	registry *realtime.Registry
	queue    *jobs.QueueManager
	archiver *audit.Archiver

	revocations revocation.Store
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)
	gin.SetMode(c.GinMode)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	app := &App{
		config:   c,
		logger:   logger,
		db:       db,
		repos:    repomanager.NewPostgresRepositoryManager(),
		registry: realtime.NewRegistry(c.RealtimeBuffer),
	}

	if err := app.repos.RunMigrations(ctx, db); err != nil {
		app.close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	limiter, err := app.initStores(ctx)
	if err != nil {
		app.close()
		return nil, err
	}

	app.users = services.NewUserService(db, app.repos, c, services.Dependencies{
		Audit:       audit.NewWriter(app.repos.Audit, c.AuditWriteTimeout, logger),
		Lockout:     limiter,
		Revocations: app.revocations,
		Notifier:    jobs.NewLogNotifier(logger),
		Events:      app.registry,
	}, logger)

	if err := app.initJobs(); err != nil {
		app.close()
		return nil, err
	}

	if c.ArchiveEnabled() {
		client, err := audit.NewS3Client(ctx, audit.S3Config{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			app.close()
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		app.archiver = audit.NewArchiver(app.repos.Audit(db), client, c.S3Bucket, c.AuditArchiveInterval, logger)
	}

	return app, nil
}

// initStores picks redis-backed lockout and revocation when a redis URL
// is configured and in-memory ones otherwise.
func (app *App) initStores(ctx context.Context) (lockout.Limiter, error) {
	policy := lockout.Policy{
		MaxAttempts: app.config.LoginMaxAttempts,
		Window:      app.config.LoginAttemptWindow,
		LockFor:     app.config.LoginLockDuration,
	}

	if app.config.RedisURL == "" {
		app.logger.Warn(ctx, "no redis configured, lockout and revocation are per process")
		app.revocations = revocation.NewMemoryStore()
		return lockout.NewMemoryLimiter(policy), nil
	}

	opt, err := redis.ParseURL(app.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	app.rdb = redis.NewClient(opt)
	if err := app.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	app.revocations = revocation.NewRedisStore(app.rdb)
	return lockout.NewRedisLimiter(app.rdb, policy), nil
}

func (app *App) initJobs() error {
	handler := func(ctx context.Context, email string) error {
		_, err := app.users.IssuePasswordReset(ctx, email)
		return err
	}

	if app.config.RedisURL == "" {
		app.users.SetDispatcher(jobs.NewInlineDispatcher(handler, app.logger))
		return nil
	}

	q, err := jobs.NewQueueManager(app.config.RedisURL, 2, handler, app.logger)
	if err != nil {
		return fmt.Errorf("job queue init error: %w", err)
	}
	app.queue = q
	app.users.SetDispatcher(q)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startAPIServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(app.users, httpapi.Options{
		Secret:         []byte(app.config.SecretKey),
		Revocations:    app.revocations,
		Registry:       app.registry,
		CORSOrigins:    app.config.CORSAllowedOrigins,
		Release:        app.config.Release(),
		AccessTokenTTL: app.config.AccessTokenValidityDuration,
	}, app.logger.With("module", "http"))

	s := httpapi.NewServer(app.config.Addr(), "api", router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startEdgeServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router, err := edge.NewRouter(app.config.FrontendUpstream, app.logger.With("module", "edge"))
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	s := httpapi.NewServer(app.config.EdgeAddress, "edge", router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	shutdownTracing, err := tracing.Setup(ctx, app.config.OTLPEndpoint, "meu-gerente-api", app.logger)
	if err != nil {
		app.logger.Error(ctx, "tracing setup failed", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	if app.queue != nil {
		app.queue.Start()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startAPIServer(ctx, cancelFunc)
	}()

	if app.config.EdgeEnabled() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startEdgeServer(ctx, cancelFunc)
		}()
	}

	if app.archiver != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := app.archiver.Resume(ctx); err != nil {
				app.logger.Warn(ctx, "audit archive resume failed, starting from scratch", "error", err)
			}
			app.archiver.Run(ctx)
		}()
	}

	<-ctx.Done()
	app.registry.Close()
	wg.Wait()

	if app.queue != nil {
		app.queue.Shutdown()
	}
	if err := shutdownTracing(context.Background()); err != nil {
		app.logger.Warn(context.Background(), "tracing shutdown", "error", err)
	}
	app.close()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	if app.rdb != nil {
		_ = app.rdb.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}

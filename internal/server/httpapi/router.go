// Package httpapi is the JSON API of the server: routes, the bearer
// session middleware and the middleware chain around them.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/Tarcisio20/meu-gerente/internal/server/realtime"
	"github.com/Tarcisio20/meu-gerente/internal/server/revocation"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

// Options configures the router.
type Options struct {
	Secret         []byte
	Revocations    revocation.Store
	Registry       *realtime.Registry
	CORSOrigins    []string
	Release        bool
	AccessTokenTTL time.Duration
}

type handler struct {
	users        AuthService
	registry     *realtime.Registry
	cookieMaxAge time.Duration
	secureCookie bool
}

// NewRouter builds the gin engine serving every API route.
func NewRouter(users AuthService, opts Options, log logging.Logger) *gin.Engine {
	h := &handler{
		users:        users,
		registry:     opts.Registry,
		cookieMaxAge: opts.AccessTokenTTL,
		secureCookie: opts.Release,
	}

	r := gin.New()
	r.ContextWithFallback = true
	r.Use(
		requestID(),
		recovery(log),
		accessLog(log),
		securityHeaders(opts.Release),
	)
	if len(opts.CORSOrigins) > 0 {
		r.Use(corsMiddleware(opts.CORSOrigins))
	}
	r.Use(requestMetrics())

	session := RequireSession(opts.Secret, opts.Revocations, log)

	r.GET("/ping", h.ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a := r.Group("/auth")
	{
		a.POST("/register", h.register)
		a.POST("/login", h.login)
		a.POST("/refresh", h.refresh)
		a.POST("/forgot-password", h.forgotPassword)
		a.POST("/reset-password", h.resetPassword)
		a.POST("/logout", session, h.logout)
		a.GET("/me", session, h.me)
	}

	private := r.Group("", session)
	{
		private.GET("/private-ping", h.privatePing)
		private.GET("/events", h.events)
	}

	return r
}

// Server runs an http.Handler until its context ends.
type Server struct {
	address string
	handler http.Handler
	logger  logging.Logger
}

// NewServer wraps handler with OpenTelemetry instrumentation under the
// operation name.
func NewServer(address, operation string, handler http.Handler, l logging.Logger) *Server {
	return &Server{
		address: address,
		handler: otelhttp.NewHandler(handler, operation),
		logger:  l.With("module", operation),
	}
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "graceful shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

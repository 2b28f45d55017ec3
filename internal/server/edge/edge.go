// Package edge is the gin front door for browser page requests. Every
// request goes through the session gate and, when it passes, is proxied
// to the frontend.
package edge

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/Tarcisio20/meu-gerente/internal/gate"
	"github.com/Tarcisio20/meu-gerente/internal/logging"
	"github.com/gin-gonic/gin"
)

// NewRouter returns an engine that gates every path and proxies what
// passes to upstream.
func NewRouter(upstream string, log logging.Logger) (*gin.Engine, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse frontend upstream: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("frontend upstream %q must be an absolute URL", upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error(r.Context(), "frontend unreachable", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}

	r := gin.New()
	r.Use(gin.Recovery(), gate.Middleware())
	r.NoRoute(gin.WrapH(proxy))
	return r, nil
}

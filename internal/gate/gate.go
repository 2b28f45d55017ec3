// Package gate decides, from the request path and the presence of a
// session cookie, whether a page request passes, goes to the login page or
// is sent away from the auth pages. It does not validate the cookie; the
// API does that on every call.
package gate

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/gin-gonic/gin"
)

type Kind int

const (
	KindPrivate Kind = iota
	KindPublic
	KindAuthPage
	KindTechnical
)

func (k Kind) String() string {
	switch k {
	case KindPublic:
		return "public"
	case KindAuthPage:
		return "auth_page"
	case KindTechnical:
		return "technical"
	default:
		return "private"
	}
}

type Outcome int

const (
	Pass Outcome = iota
	RedirectToLogin
	RedirectToDashboard
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Decision is the result of Decide. Location is set for redirects only.
type Decision struct {
	Outcome  Outcome
	Location string
}

var (
	technicalPrefixes = []string{"/api", "/_next", "/favicon.ico"}
	imageRe           = regexp.MustCompile(`\.(png|jpg|jpeg|gif|webp|svg|ico)$`)

	authPages = map[string]struct{}{
		"/login":           {},
		"/register":        {},
		"/forgot-password": {},
	}
	publicRoutes = map[string]struct{}{
		"/":               {},
		"/auth/callback":  {},
		"/auth/error":     {},
		"/reset-password": {},
	}
)

// Classify sorts a request path into one of the route kinds. Auth pages
// are public too; they get their own kind because a signed-in user is
// sent away from them.
func Classify(path string) Kind {
	for _, p := range technicalPrefixes {
		if strings.HasPrefix(path, p) {
			return KindTechnical
		}
	}
	if imageRe.MatchString(path) {
		return KindTechnical
	}
	if _, ok := authPages[path]; ok {
		return KindAuthPage
	}
	if _, ok := publicRoutes[path]; ok {
		return KindPublic
	}
	if strings.HasPrefix(path, "/auth/") {
		return KindPublic
	}
	return KindPrivate
}

// Decide applies the routing table to path. sessionToken is the raw
// cookie value; only its presence matters.
func Decide(path, sessionToken string) Decision {
	kind := Classify(path)
	if kind == KindTechnical {
		return Decision{Outcome: Pass}
	}

	loggedIn := sessionToken != ""
	switch {
	case !loggedIn && kind == KindPrivate:
		return Decision{Outcome: RedirectToLogin, Location: LoginPath + "?from=" + escapeFrom(path)}
	case loggedIn && kind == KindAuthPage:
		return Decision{Outcome: RedirectToDashboard, Location: DashboardPath}
	}
	return Decision{Outcome: Pass}
}

// escapeFrom query-escapes path but leaves its slashes readable.
func escapeFrom(path string) string {
	return strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
}

// Middleware runs Decide on every request and answers redirects with 302.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(common.AuthCookieName)
		d := Decide(c.Request.URL.Path, token)
		if d.Outcome == Pass {
			c.Next()
			return
		}
		c.Redirect(http.StatusFound, d.Location)
		c.Abort()
	}
}

// SafeReturnPath returns from when it is a same-origin absolute path and
// the dashboard otherwise.
func SafeReturnPath(from string) string {
	from = strings.TrimSpace(from)
	if from == "" || !strings.HasPrefix(from, "/") {
		return DashboardPath
	}
	if strings.HasPrefix(from, "//") || strings.HasPrefix(from, `/\`) || strings.Contains(from, "://") {
		return DashboardPath
	}
	if Classify(from) == KindAuthPage {
		return DashboardPath
	}
	return from
}

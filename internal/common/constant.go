package common

const (
	// AuthCookieName is the session cookie read by the edge gate and set by
	// the API on login.
	AuthCookieName = "auth_token"

	// AuthorizationHeader carries "Bearer <token>" on API requests.
	AuthorizationHeader = "Authorization"

	// BearerPrefix is the scheme prefix expected in AuthorizationHeader.
	BearerPrefix = "Bearer "

	// RequestIDHeader is echoed back on every API response.
	RequestIDHeader = "X-Request-ID"
)

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// User mirrors the public user returned by the server.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Slug     string `json:"slug,omitempty"`
	Password string `json:"password"`
}

type userEnvelope struct {
	User User `json:"user"`
}

type loginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIClient talks to the auth API. It is safe for concurrent use.
type APIClient struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) tokens() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *APIClient) setTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

// Authenticated reports whether the client holds a session.
func (c *APIClient) Authenticated() bool {
	access, _ := c.tokens()
	return access != ""
}

func (c *APIClient) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &out, false); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Login accepts an email or a username.
func (c *APIClient) Login(ctx context.Context, login, password string) (*User, error) {
	body := map[string]string{"login": login, "password": password}
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out, false); err != nil {
		return nil, err
	}
	c.setTokens(out.Token, out.RefreshToken)
	return &out.User, nil
}

// Refresh exchanges the stored refresh token for a new pair.
func (c *APIClient) Refresh(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		return ErrUnauthorized
	}

	var out tokenResponse
	body := map[string]string{"refresh_token": refresh}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, &out, false); err != nil {
		return err
	}
	c.setTokens(out.Token, out.RefreshToken)
	return nil
}

// Logout revokes the session on the server. Local tokens are dropped even
// when the server call fails.
func (c *APIClient) Logout(ctx context.Context) error {
	_, refresh := c.tokens()
	var body any
	if refresh != "" {
		body = map[string]string{"refresh_token": refresh}
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", body, nil, true)
	c.setTokens("", "")
	return err
}

func (c *APIClient) Me(ctx context.Context) (*User, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *APIClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil, false)
}

// PrivatePing returns the caller's username.
func (c *APIClient) PrivatePing(ctx context.Context) (string, error) {
	var out struct {
		Slug string `json:"slug"`
	}
	if err := c.do(ctx, http.MethodGet, "/private-ping", nil, &out, true); err != nil {
		return "", err
	}
	return out.Slug, nil
}

// ForgotPassword returns the server's acknowledgement, which is the same
// whether or not the email is registered.
func (c *APIClient) ForgotPassword(ctx context.Context, email string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	body := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, "/auth/forgot-password", body, &out, false); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *APIClient) ResetPassword(ctx context.Context, token, password string) error {
	body := map[string]string{"token": token, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/reset-password", body, nil, false)
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	err := c.send(ctx, method, path, in, out, auth)
	if !auth || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if _, refresh := c.tokens(); refresh == "" {
		return err
	}
	if rerr := c.Refresh(ctx); rerr != nil {
		if errors.Is(rerr, ErrUnauthorized) {
			c.setTokens("", "")
		}
		return err
	}
	return c.send(ctx, method, path, in, out, auth)
}

func (c *APIClient) send(ctx context.Context, method, path string, in, out any, auth bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if access, _ := c.tokens(); access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if apiErr.Code == "" && resp.StatusCode == http.StatusUnauthorized {
		apiErr.Code = "UNAUTHORIZED"
	}
	return apiErr
}

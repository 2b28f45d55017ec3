package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/server/models"
	"github.com/Tarcisio20/meu-gerente/internal/server/realtime"
	"github.com/Tarcisio20/meu-gerente/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AuthService is what the handlers need from *services.UserService.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, identifier, password string) (*services.LoginResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, in services.LogoutInput) error
	Profile(ctx context.Context, userID string) (*models.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type registerRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Slug     string `json:"slug" form:"slug"`
	Password string `json:"password" form:"password"`
}

// loginRequest accepts the frontend's single "login" field (email or
// username) as well as a plain "email".
type loginRequest struct {
	Login    string `json:"login" form:"login"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r loginRequest) identifier() string {
	if strings.TrimSpace(r.Login) != "" {
		return r.Login
	}
	return r.Email
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" form:"token"`
	Password string `json:"password" form:"password"`
}

type loginResponse struct {
	Token        string            `json:"token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresAt    int64             `json:"expires_at"`
	User         models.PublicUser `json:"user"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

type userResponse struct {
	User models.PublicUser `json:"user"`
}

// forgotPasswordMessage is sent whether or not the account exists.
const forgotPasswordMessage = "if the email is registered, a reset link is on its way"

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBind(dst); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body", common.ErrInvalidInput))
		return false
	}
	return true
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}

	u, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Slug:     req.Slug,
		Password: req.Password,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userResponse{User: u.Public()})
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.users.Login(c.Request.Context(), req.identifier(), req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	h.setSessionCookie(c, res.AccessToken)
	c.JSON(http.StatusOK, loginResponse{
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt.Unix(),
		User:         res.User.Public(),
	})
}

func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !bind(c, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(c, common.ErrUnauthorized)
		return
	}

	pair, err := h.users.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	h.setSessionCookie(c, pair.AccessToken)
	c.JSON(http.StatusOK, tokenResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.Unix(),
	})
}

func (h *handler) logout(c *gin.Context) {
	id, _ := IdentityFrom(c.Request.Context())

	// the body is optional
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		_ = c.ShouldBind(&req)
	}

	err := h.users.Logout(c.Request.Context(), services.LogoutInput{
		UserID:       id.UserID,
		TokenID:      id.TokenID,
		ExpiresAt:    id.ExpiresAt,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *handler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := h.users.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": forgotPasswordMessage})
}

func (h *handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := h.users.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) me(c *gin.Context) {
	id, _ := IdentityFrom(c.Request.Context())
	u, err := h.users.Profile(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse{User: u.Public()})
}

func (h *handler) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pong": true})
}

func (h *handler) privatePing(c *gin.Context) {
	id, _ := IdentityFrom(c.Request.Context())
	u, err := h.users.Profile(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pong": true, "slug": u.Slug})
}

// events streams the caller's live events as server-sent events until the
// client goes away or the registry shuts down.
func (h *handler) events(c *gin.Context) {
	id, _ := IdentityFrom(c.Request.Context())
	sub := h.registry.Subscribe(id.UserID)
	defer h.registry.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", realtime.Event{Type: "ready"})
	c.Writer.Flush()

	done := c.Request.Context().Done()
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case <-done:
			return false
		}
	})
}

func (h *handler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.AuthCookieName, token, int(h.cookieMaxAge.Seconds()), "/", "", h.secureCookie, true)
}

func (h *handler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(common.AuthCookieName, "", -1, "/", "", h.secureCookie, true)
}

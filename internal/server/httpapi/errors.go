package httpapi

import (
	"errors"
	"net/http"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/gin-gonic/gin"
)

// Error codes sent in the "code" field of every error body.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeSlugTaken          = "SLUG_TAKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	target error
	status int
	code   string
	// detailed keeps the full error text; otherwise the sentinel text is
	// sent so nothing internal leaks.
	detailed bool
}

var errorTable = []errorMapping{
	{common.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput, true},
	{common.ErrEmailTaken, http.StatusConflict, CodeEmailTaken, false},
	{common.ErrSlugTaken, http.StatusConflict, CodeSlugTaken, false},
	{common.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, false},
	{common.ErrTooManyAttempts, http.StatusTooManyRequests, CodeTooManyAttempts, false},
	{common.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized, false},
	{common.ErrRefreshTokenExpired, http.StatusUnauthorized, CodeUnauthorized, false},
	{common.ErrTokenExpired, http.StatusUnauthorized, CodeUnauthorized, false},
	{common.ErrInvalidToken, http.StatusUnauthorized, CodeUnauthorized, false},
	{common.ErrStorageUnavailable, http.StatusServiceUnavailable, CodeStorageUnavailable, false},
	{common.ErrNotFound, http.StatusNotFound, CodeNotFound, false},
}

// statusFor maps err onto the HTTP status, code and message of the body.
func statusFor(err error) (int, ErrorResponse) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			msg := m.target.Error()
			if m.detailed {
				msg = err.Error()
			}
			return m.status, ErrorResponse{Error: msg, Code: m.code}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: common.ErrInternal.Error(), Code: CodeInternal}
}

// writeError answers with the JSON error body for err and aborts the
// chain.
func writeError(c *gin.Context, err error) {
	status, body := statusFor(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

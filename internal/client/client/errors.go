package client

import (
	"errors"
	"fmt"

	"github.com/Tarcisio20/meu-gerente/internal/common"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx answer decoded from the server's {"error","code"} body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}

var codeErrors = map[string]error{
	"INVALID_INPUT":       common.ErrInvalidInput,
	"EMAIL_TAKEN":         common.ErrEmailTaken,
	"SLUG_TAKEN":          common.ErrSlugTaken,
	"INVALID_CREDENTIALS": common.ErrInvalidCredentials,
	"UNAUTHORIZED":        ErrUnauthorized,
	"TOO_MANY_ATTEMPTS":   common.ErrTooManyAttempts,
	"STORAGE_UNAVAILABLE": common.ErrStorageUnavailable,
	"NOT_FOUND":           common.ErrNotFound,
	"INTERNAL_ERROR":      common.ErrInternal,
}

// Is lets callers match API errors against the shared sentinels.
func (e *APIError) Is(target error) bool {
	if mapped, ok := codeErrors[e.Code]; ok && mapped == target {
		return true
	}
	if e.Code == "UNAUTHORIZED" && target == common.ErrUnauthorized {
		return true
	}
	return false
}

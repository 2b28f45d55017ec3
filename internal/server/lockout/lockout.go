// Package lockout throttles password guessing: after MaxAttempts failures
// inside Window an identifier is locked for LockFor.
package lockout

import (
	"context"
	"time"
)

type Policy struct {
	MaxAttempts int
	Window      time.Duration
	LockFor     time.Duration
}

var DefaultPolicy = Policy{MaxAttempts: 5, Window: 15 * time.Minute, LockFor: 10 * time.Minute}

// Limiter tracks failures per key. Check returns common.ErrTooManyAttempts
// while the key is locked.
type Limiter interface {
	Check(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

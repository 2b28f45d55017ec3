package models

import (
	"encoding/json"
	"time"
)

// EntityType is the closed set of audited entity kinds.
type EntityType string

const (
	EntityUser EntityType = "USER"
	EntityAuth EntityType = "AUTH"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityUser, EntityAuth:
		return true
	}
	return false
}

// Action is the closed set of audited actions.
type Action string

const (
	ActionCreate               Action = "CREATE"
	ActionLogin                Action = "LOGIN"
	ActionLogout               Action = "LOGOUT"
	ActionPasswordResetRequest Action = "PASSWORD_RESET_REQUEST"
	ActionPasswordReset        Action = "PASSWORD_RESET"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionLogin, ActionLogout,
		ActionPasswordResetRequest, ActionPasswordReset:
		return true
	}
	return false
}

// AuditEntry is what callers hand to the audit writer. Snapshot fields are
// marshalled to JSON; nil means SQL NULL.
type AuditEntry struct {
	UserID     string
	EntityType EntityType
	EntityID   string
	Action     Action
	OldValues  any
	NewValues  any
	Metadata   any
}

// AuditRecord is a stored audit row, as read back by the archiver.
type AuditRecord struct {
	ID         int64           `json:"id"`
	UserID     *string         `json:"userId"`
	EntityType EntityType      `json:"entityType"`
	EntityID   *string         `json:"entityId"`
	Action     Action          `json:"action"`
	OldValues  json.RawMessage `json:"oldValues,omitempty"`
	NewValues  json.RawMessage `json:"newValues,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// PasswordReset is a pending one-time reset token. Only the sha256 of the
// token is stored.
type PasswordReset struct {
	TokenHash string
	UserID    string
	Expires   time.Time
}

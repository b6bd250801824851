package types

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Status represents the lifecycle status of a persisted row.
type Status string

const (
	StatusPublished Status = "published"
	StatusDeleted   Status = "deleted"
	StatusArchived  Status = "archived"
)

// BaseModel holds the audit columns shared by all persisted entities.
type BaseModel struct {
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// GetDefaultBaseModel returns a BaseModel initialized from the context.
func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	userID := GetUserID(ctx)
	return BaseModel{
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: userID,
		UpdatedBy: userID,
	}
}

// UUID prefixes keep IDs self-describing in logs and external systems.
const (
	UUID_PREFIX_SUBSCRIPTION   = "subs"
	UUID_PREFIX_RENEWAL_LOCK   = "rlock"
	UUID_PREFIX_PAYMENT        = "pay"
	UUID_PREFIX_PAYMENT_METHOD = "pm"
	UUID_PREFIX_ORDER          = "order"
	UUID_PREFIX_LINE_ITEM      = "li"
	UUID_PREFIX_NOTIFICATION   = "notif"
	UUID_PREFIX_TASK           = "task"
)

// GenerateUUID returns a random UUID without prefix.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateUUIDWithPrefix returns a prefixed random UUID, e.g. "subs_<uuid>".
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

// GenerateULID returns a lexicographically sortable ID. Used where creation
// order matters when scanning rows, e.g. renewal locks and payments.
func GenerateULID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String())
}

type contextKey string

const (
	ctxRequestID contextKey = "ctx_request_id"
	ctxUserID    contextKey = "ctx_user_id"
)

// SetRequestID attaches a request/run identifier to the context.
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestID, requestID)
}

// GetRequestID returns the request/run identifier from the context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

// SetUserID attaches the acting user to the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

// GetUserID returns the acting user from the context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

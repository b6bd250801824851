package notification

import (
	"context"

	"github.com/subflow/subflow/internal/types"
)

// Params describes a user-facing notification. DedupeKey makes repeated
// identical notifications for the same renewal cycle a no-op in the sink.
type Params struct {
	UserID    string                 `json:"user_id"`
	Type      types.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	DedupeKey string                 `json:"dedupe_key"`
}

// Sink delivers notifications. Delivery channels (email, push) are outside
// this engine; the sink is the only surface it talks to.
type Sink interface {
	CreateNotification(ctx context.Context, params Params) error
}

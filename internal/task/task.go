package task

import (
	"context"
	"time"

	"github.com/subflow/subflow/internal/types"
)

// Params describes an operator-visible task. The sink is idempotent per
// (entity, category) while the task remains uncompleted.
type Params struct {
	EntityType string             `json:"entity_type"`
	EntityID   string             `json:"entity_id"`
	Category   types.TaskCategory `json:"category"`
	Title      string             `json:"title"`
	DueAt      time.Time          `json:"due_at"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

// Sink creates operator fulfillment and review tasks.
type Sink interface {
	CreateTask(ctx context.Context, params Params) error
}

package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/subflow/subflow/internal/logger"
)

// LogSink is the default Sink for standalone deployments: it logs the task
// instead of creating it in an operator queue, keeping the idempotency per
// (entity, category). The operator task queue belongs to the host platform.
type LogSink struct {
	mu   sync.Mutex
	open map[string]bool
	log  *logger.Logger
}

// NewLogSink creates a logging task sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{
		open: make(map[string]bool),
		log:  log,
	}
}

func (s *LogSink) CreateTask(ctx context.Context, params Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s:%s:%s", params.EntityType, params.EntityID, params.Category)
	if s.open[key] {
		return nil
	}
	s.open[key] = true

	s.log.Infow("operator task",
		"entity_type", params.EntityType,
		"entity_id", params.EntityID,
		"category", params.Category,
		"title", params.Title,
		"due_at", params.DueAt)
	return nil
}

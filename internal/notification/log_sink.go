package notification

import (
	"context"
	"sync"

	"github.com/subflow/subflow/internal/logger"
)

// LogSink is the default Sink for standalone deployments: it logs the
// notification instead of delivering it, keeping dedupe-key semantics so
// repeated cycle notifications stay a no-op. Delivery channels belong to the
// host platform.
type LogSink struct {
	mu   sync.Mutex
	seen map[string]bool
	log  *logger.Logger
}

// NewLogSink creates a logging notification sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{
		seen: make(map[string]bool),
		log:  log,
	}
}

func (s *LogSink) CreateNotification(ctx context.Context, params Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if params.DedupeKey != "" {
		if s.seen[params.DedupeKey] {
			return nil
		}
		s.seen[params.DedupeKey] = true
	}

	s.log.Infow("notification",
		"user_id", params.UserID,
		"type", params.Type,
		"title", params.Title,
		"message", params.Message,
		"dedupe_key", params.DedupeKey)
	return nil
}

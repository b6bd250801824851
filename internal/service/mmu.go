package service

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/subflow/subflow/internal/billing"
	"github.com/subflow/subflow/internal/task"
	"github.com/subflow/subflow/internal/types"
)

// MMUService cuts operator upgrade tasks for multi-month terms that are
// fulfilled by hand, one calendar month at a time. The task sink's
// idempotency per (entity, category) keeps one open task per subscription at
// a time; completing a month's task lets the next cycle's task through.
type MMUService interface {
	// ProcessMMUCycles runs one pass over active multi-month subscriptions and
	// creates an upgrade task for any cycle entering its lead window.
	ProcessMMUCycles(ctx context.Context) error
}

type mmuService struct {
	ServiceParams
}

// NewMMUService creates a new manual monthly upgrade service
func NewMMUService(params ServiceParams) MMUService {
	return &mmuService{
		ServiceParams: params,
	}
}

func (s *mmuService) ProcessMMUCycles(ctx context.Context) error {
	now := s.Clock.Now()

	subs, err := s.SubRepo.ListActiveMultiMonth(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		s.Logger.Debugw("no active multi-month subscriptions")
		return nil
	}

	created := 0
	for _, sub := range subs {
		cycle, err := billing.GetMMUCycleInfo(sub.TermStartAt, lo.FromPtr(sub.TermMonths), now)
		if err != nil {
			s.Logger.Warnw("failed to compute upgrade cycle",
				"subscription_id", sub.ID,
				"error", err)
			continue
		}
		if cycle == nil {
			// Term not started yet or already complete.
			continue
		}
		if !billing.ShouldCreateMMUTask(cycle.CycleEnd, now, s.Config.Renewal.MMULeadDays) {
			continue
		}

		if err := s.TaskSink.CreateTask(ctx, task.Params{
			EntityType: "subscription",
			EntityID:   sub.ID,
			Category:   types.TaskCategoryMMUUpgrade,
			Title:      fmt.Sprintf("Apply month %d/%d upgrade", cycle.CycleIndex, cycle.CycleTotal),
			DueAt:      cycle.CycleEnd,
			Metadata: map[string]string{
				"subscription_id": sub.ID,
				"cycle_index":     fmt.Sprintf("%d", cycle.CycleIndex),
				"cycle_start":     cycle.CycleStart.UTC().Format(time.RFC3339),
				"cycle_end":       cycle.CycleEnd.UTC().Format(time.RFC3339),
			},
		}); err != nil {
			s.Logger.Errorw("failed to create upgrade task",
				"subscription_id", sub.ID,
				"cycle_index", cycle.CycleIndex,
				"error", err)
			continue
		}
		created++
	}

	s.Logger.Infow("upgrade cycle pass finished",
		"subscriptions", len(subs),
		"tasks_created", created)
	return nil
}

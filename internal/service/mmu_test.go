package service

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/subflow/subflow/internal/domain/subscription"
	"github.com/subflow/subflow/internal/testutil"
	"github.com/subflow/subflow/internal/types"
)

type MMUServiceTestSuite struct {
	testutil.BaseServiceTestSuite
	mmuService MMUService
}

func TestMMUService(t *testing.T) {
	suite.Run(t, new(MMUServiceTestSuite))
}

func (s *MMUServiceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.mmuService = NewMMUService(ServiceParams{
		Logger:   s.GetLogger(),
		Config:   s.GetConfig(),
		Clock:    s.GetClock(),
		SubRepo:  s.GetStores().SubscriptionRepo,
		TaskSink: s.GetTasks(),
	})
}

func (s *MMUServiceTestSuite) seedMultiMonth(termMonths int) *subscription.Subscription {
	termStart := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	sub := &subscription.Subscription{
		ID:                 "subs_mmu",
		UserID:             "user_1",
		ServiceID:          "svc_1",
		StartDate:          termStart,
		TermStartAt:        termStart,
		EndDate:            termStart.AddDate(0, termMonths, 0),
		AutoRenew:          true,
		RenewalMethod:      types.RenewalMethodCredits,
		TermMonths:         lo.ToPtr(termMonths),
		PriceCents:         lo.ToPtr(int64(1999)),
		Currency:           "usd",
		SubscriptionStatus: types.SubscriptionStatusActive,
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().SubscriptionRepo.Create(s.GetContext(), sub))
	return sub
}

func (s *MMUServiceTestSuite) TestTaskCreatedWithinLeadWindow() {
	s.seedMultiMonth(3)
	// Cycle 1 ends 2024-02-15; three lead days open the window on the 12th.
	s.GetClock().Instant = time.Date(2024, 2, 13, 0, 0, 0, 0, time.UTC)

	s.NoError(s.mmuService.ProcessMMUCycles(s.GetContext()))

	tasks := s.GetTasks().Created()
	s.Require().Len(tasks, 1)
	s.Equal(types.TaskCategoryMMUUpgrade, tasks[0].Category)
	s.Equal("Apply month 1/3 upgrade", tasks[0].Title)
	s.Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), tasks[0].DueAt)
}

func (s *MMUServiceTestSuite) TestNoTaskBeforeLeadWindow() {
	s.seedMultiMonth(3)
	s.GetClock().Instant = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

	s.NoError(s.mmuService.ProcessMMUCycles(s.GetContext()))

	s.Empty(s.GetTasks().Created())
}

func (s *MMUServiceTestSuite) TestNoTaskAfterTermComplete() {
	s.seedMultiMonth(3)
	// The fourth elapsed month exceeds the three-month term.
	s.GetClock().Instant = time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)

	s.NoError(s.mmuService.ProcessMMUCycles(s.GetContext()))

	s.Empty(s.GetTasks().Created())
}

func (s *MMUServiceTestSuite) TestRepeatedPassesCreateOneOpenTask() {
	s.seedMultiMonth(3)
	s.GetClock().Instant = time.Date(2024, 2, 13, 0, 0, 0, 0, time.UTC)

	s.NoError(s.mmuService.ProcessMMUCycles(s.GetContext()))
	s.NoError(s.mmuService.ProcessMMUCycles(s.GetContext()))

	s.Len(s.GetTasks().Created(), 1)
}

func (s *MMUServiceTestSuite) TestSingleMonthTermsAreIgnored() {
	s.seedMultiMonth(1)
	s.GetClock().Instant = time.Date(2024, 2, 13, 0, 0, 0, 0, time.UTC)

	s.NoError(s.mmuService.ProcessMMUCycles(s.GetContext()))

	s.Empty(s.GetTasks().Created())
}

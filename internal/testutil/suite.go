package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/subflow/subflow/internal/config"
	"github.com/subflow/subflow/internal/logger"
	"github.com/subflow/subflow/internal/types"
)

// Stores bundles the in-memory repositories used by service tests.
type Stores struct {
	SubscriptionRepo  *InMemorySubscriptionStore
	RenewalLockRepo   *InMemoryRenewalLockStore
	PaymentRepo       *InMemoryPaymentStore
	PaymentMethodRepo *InMemoryPaymentMethodStore
	OrderRepo         *InMemoryOrderStore
}

// BaseServiceTestSuite wires fresh in-memory stores and fake collaborators
// for every test. Service suites embed it and read dependencies through the
// accessors.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	logger *logger.Logger
	config *config.Configuration
	clock  *types.FixedClock
	stores Stores

	ledger        *FakeLedger
	gateway       *FakeGateway
	notifications *NotificationRecorder
	tasks         *TaskRecorder
}

// SetupTest initializes a clean environment before each test.
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = types.SetUserID(context.Background(), "user_test")
	s.logger = logger.NewNopLogger()
	s.config = config.GetDefaultConfig()
	s.clock = &types.FixedClock{Instant: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s.stores = Stores{
		SubscriptionRepo:  NewInMemorySubscriptionStore(),
		RenewalLockRepo:   NewInMemoryRenewalLockStore(),
		PaymentRepo:       NewInMemoryPaymentStore(),
		PaymentMethodRepo: NewInMemoryPaymentMethodStore(),
		OrderRepo:         NewInMemoryOrderStore(),
	}
	s.ledger = NewFakeLedger()
	s.gateway = NewFakeGateway()
	s.notifications = NewNotificationRecorder()
	s.tasks = NewTaskRecorder()
}

// TearDownTest releases per-test state.
func (s *BaseServiceTestSuite) TearDownTest() {}

func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

func (s *BaseServiceTestSuite) GetClock() *types.FixedClock {
	return s.clock
}

func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

func (s *BaseServiceTestSuite) GetLedger() *FakeLedger {
	return s.ledger
}

func (s *BaseServiceTestSuite) GetGateway() *FakeGateway {
	return s.gateway
}

func (s *BaseServiceTestSuite) GetNotifications() *NotificationRecorder {
	return s.notifications
}

func (s *BaseServiceTestSuite) GetTasks() *TaskRecorder {
	return s.tasks
}

package service

import (
	"github.com/subflow/subflow/internal/config"
	"github.com/subflow/subflow/internal/domain/order"
	"github.com/subflow/subflow/internal/domain/payment"
	"github.com/subflow/subflow/internal/domain/renewallock"
	"github.com/subflow/subflow/internal/domain/subscription"
	"github.com/subflow/subflow/internal/gateway"
	"github.com/subflow/subflow/internal/ledger"
	"github.com/subflow/subflow/internal/logger"
	"github.com/subflow/subflow/internal/notification"
	"github.com/subflow/subflow/internal/task"
	"github.com/subflow/subflow/internal/types"
)

// ServiceParams bundles the dependencies shared by all services. Services
// embed it and pick what they need; construction sites fill it once.
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Clock  types.Clock

	// Repositories
	SubRepo           subscription.Repository
	RenewalLockRepo   renewallock.Repository
	PaymentRepo       payment.Repository
	PaymentMethodRepo payment.MethodRepository
	OrderRepo         order.Repository

	// External collaborators
	Ledger   ledger.Client
	Gateway  gateway.Gateway
	Notifier notification.Sink
	TaskSink task.Sink
}

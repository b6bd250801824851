package main

import (
	"context"

	"go.uber.org/fx"

	"github.com/subflow/subflow/internal/config"
	"github.com/subflow/subflow/internal/domain/order"
	"github.com/subflow/subflow/internal/domain/payment"
	"github.com/subflow/subflow/internal/domain/renewallock"
	"github.com/subflow/subflow/internal/domain/subscription"
	"github.com/subflow/subflow/internal/gateway"
	stripegateway "github.com/subflow/subflow/internal/gateway/stripe"
	"github.com/subflow/subflow/internal/ledger"
	"github.com/subflow/subflow/internal/lock"
	"github.com/subflow/subflow/internal/logger"
	"github.com/subflow/subflow/internal/notification"
	"github.com/subflow/subflow/internal/redis"
	"github.com/subflow/subflow/internal/scheduler"
	"github.com/subflow/subflow/internal/service"
	"github.com/subflow/subflow/internal/task"
	"github.com/subflow/subflow/internal/testutil"
	"github.com/subflow/subflow/internal/types"
)

func main() {
	fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			newRedisClient,
			newLockStore,
			newClock,
			newLedgerClient,
			newGateway,
			newNotificationSink,
			newTaskSink,
			newRepositories,
			newServiceParams,
			service.NewRenewalService,
			service.NewReconcilerService,
			service.NewMMUService,
			newScheduler,
		),
		fx.Invoke(registerJobs),
	).Run()
}

func newRedisClient(cfg *config.Configuration, log *logger.Logger) (*redis.Client, error) {
	return redis.NewClient(cfg.Redis, log)
}

func newLockStore(client *redis.Client, log *logger.Logger) lock.Store {
	return lock.NewRedisStore(client, log)
}

func newClock() types.Clock {
	return types.RealClock{}
}

func newLedgerClient(cfg *config.Configuration, log *logger.Logger) ledger.Client {
	return ledger.NewHTTPClient(cfg.Ledger, log)
}

func newGateway(cfg *config.Configuration, log *logger.Logger) gateway.Gateway {
	return stripegateway.NewClient(cfg.Stripe, log)
}

func newNotificationSink(log *logger.Logger) notification.Sink {
	return notification.NewLogSink(log)
}

func newTaskSink(log *logger.Logger) task.Sink {
	return task.NewLogSink(log)
}

// Durable storage is owned by the host platform; the in-memory stores keep a
// standalone deployment runnable.
func newRepositories() (subscription.Repository, renewallock.Repository, payment.Repository, payment.MethodRepository, order.Repository) {
	return testutil.NewInMemorySubscriptionStore(),
		testutil.NewInMemoryRenewalLockStore(),
		testutil.NewInMemoryPaymentStore(),
		testutil.NewInMemoryPaymentMethodStore(),
		testutil.NewInMemoryOrderStore()
}

func newServiceParams(
	cfg *config.Configuration,
	log *logger.Logger,
	clock types.Clock,
	subRepo subscription.Repository,
	lockRepo renewallock.Repository,
	paymentRepo payment.Repository,
	methodRepo payment.MethodRepository,
	orderRepo order.Repository,
	ledgerClient ledger.Client,
	gw gateway.Gateway,
	notifier notification.Sink,
	taskSink task.Sink,
) service.ServiceParams {
	return service.ServiceParams{
		Logger:            log,
		Config:            cfg,
		Clock:             clock,
		SubRepo:           subRepo,
		RenewalLockRepo:   lockRepo,
		PaymentRepo:       paymentRepo,
		PaymentMethodRepo: methodRepo,
		OrderRepo:         orderRepo,
		Ledger:            ledgerClient,
		Gateway:           gw,
		Notifier:          notifier,
		TaskSink:          taskSink,
	}
}

func newScheduler(store lock.Store, log *logger.Logger, clock types.Clock) *scheduler.Scheduler {
	return scheduler.New(store, log, clock)
}

func registerJobs(
	lc fx.Lifecycle,
	sched *scheduler.Scheduler,
	cfg *config.Configuration,
	redisClient *redis.Client,
	renewals service.RenewalService,
	reconciler service.ReconcilerService,
	mmu service.MMUService,
) {
	sched.Register(scheduler.JobConfig{
		Name:     "renewals.sweep",
		Interval: cfg.Renewal.SweepInterval,
		LockKey:  "jobs:renewals:sweep",
		LockTTL:  cfg.Renewal.JobLockTTL,
		Handler:  renewals.ProcessDueRenewals,
	})
	sched.Register(scheduler.JobConfig{
		Name:     "payments.reconcile",
		Interval: cfg.Renewal.ReconcileInterval,
		LockKey:  "jobs:payments:reconcile",
		LockTTL:  cfg.Renewal.JobLockTTL,
		Handler:  reconciler.ReconcilePendingPayments,
	})
	sched.Register(scheduler.JobConfig{
		Name:     "mmu.cycles",
		Interval: cfg.Renewal.MMUInterval,
		LockKey:  "jobs:mmu:cycles",
		LockTTL:  cfg.Renewal.JobLockTTL,
		Handler:  mmu.ProcessMMUCycles,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			return redisClient.Close()
		},
	})
}

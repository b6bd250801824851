package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/gateway"
	"github.com/subflow/subflow/internal/ledger"
	"github.com/subflow/subflow/internal/notification"
	"github.com/subflow/subflow/internal/task"
	"github.com/subflow/subflow/internal/types"
)

// FakeLedger implements ledger.Client against an in-memory balance map with
// real idempotency-key semantics: a replayed key is a no-op success.
type FakeLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	seenKeys map[string]bool
	spends   []ledger.SpendRequest
	failWith error
}

// NewFakeLedger creates an empty fake ledger.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		balances: make(map[string]decimal.Decimal),
		seenKeys: make(map[string]bool),
	}
}

// SetBalance seeds a user's prepaid balance.
func (l *FakeLedger) SetBalance(userID string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = amount
}

// Balance returns a user's current balance.
func (l *FakeLedger) Balance(userID string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// FailWith makes every Spend fail with the given error. Pass nil to restore.
func (l *FakeLedger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failWith = err
}

// SpendCount returns how many debits were actually applied.
func (l *FakeLedger) SpendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spends)
}

func (l *FakeLedger) Spend(ctx context.Context, req ledger.SpendRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failWith != nil {
		return l.failWith
	}
	if req.IdempotencyKey != "" && l.seenKeys[req.IdempotencyKey] {
		return nil
	}

	balance := l.balances[req.UserID]
	if balance.LessThan(req.Amount) {
		return ierr.NewError("insufficient balance").
			WithReportableDetails(map[string]interface{}{
				"user_id": req.UserID,
				"balance": balance.String(),
				"amount":  req.Amount.String(),
			}).
			Mark(ierr.ErrInsufficientBalance)
	}

	l.balances[req.UserID] = balance.Sub(req.Amount)
	if req.IdempotencyKey != "" {
		l.seenKeys[req.IdempotencyKey] = true
	}
	l.spends = append(l.spends, req)
	return nil
}

// FakeGateway implements gateway.Gateway with scripted charge results and a
// mutable status map for reconciliation tests.
type FakeGateway struct {
	mu       sync.Mutex
	charges  []gateway.CreateChargeRequest
	statuses map[string]types.PaymentStatus
	// NextStatus is the status assigned to newly created charges.
	NextStatus types.PaymentStatus
	failWith   error
	counter    int
}

// NewFakeGateway creates a gateway whose charges start out pending.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		statuses:   make(map[string]types.PaymentStatus),
		NextStatus: types.PaymentStatusPending,
	}
}

// FailWith makes every call fail with the given error. Pass nil to restore.
func (g *FakeGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

// SetStatus overrides the gateway-side status of an existing charge.
func (g *FakeGateway) SetStatus(gatewayPaymentID string, status types.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[gatewayPaymentID] = status
}

// ChargeCount returns how many charges were created.
func (g *FakeGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

// Charges returns a copy of all created charges.
func (g *FakeGateway) Charges() []gateway.CreateChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.CreateChargeRequest(nil), g.charges...)
}

func (g *FakeGateway) CreateOffSessionCharge(ctx context.Context, req gateway.CreateChargeRequest) (*gateway.CreateChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failWith != nil {
		return nil, g.failWith
	}

	g.counter++
	id := fmt.Sprintf("pi_fake_%03d", g.counter)
	g.charges = append(g.charges, req)
	g.statuses[id] = g.NextStatus

	return &gateway.CreateChargeResult{
		GatewayPaymentID: id,
		Status:           g.NextStatus,
	}, nil
}

func (g *FakeGateway) GetPaymentStatus(ctx context.Context, gatewayPaymentID string) (types.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failWith != nil {
		return "", g.failWith
	}

	status, ok := g.statuses[gatewayPaymentID]
	if !ok {
		return "", ierr.NewErrorf("unknown payment: %s", gatewayPaymentID).Mark(ierr.ErrNotFound)
	}
	return status, nil
}

// NotificationRecorder implements notification.Sink with dedupe-key no-op
// semantics.
type NotificationRecorder struct {
	mu   sync.Mutex
	seen map[string]bool
	sent []notification.Params
}

// NewNotificationRecorder creates an empty recorder.
func NewNotificationRecorder() *NotificationRecorder {
	return &NotificationRecorder{seen: make(map[string]bool)}
}

func (r *NotificationRecorder) CreateNotification(ctx context.Context, params notification.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if params.DedupeKey != "" && r.seen[params.DedupeKey] {
		return nil
	}
	if params.DedupeKey != "" {
		r.seen[params.DedupeKey] = true
	}
	r.sent = append(r.sent, params)
	return nil
}

// Sent returns a copy of all delivered notifications.
func (r *NotificationRecorder) Sent() []notification.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Params(nil), r.sent...)
}

// SentOfType returns delivered notifications of the given type.
func (r *NotificationRecorder) SentOfType(t types.NotificationType) []notification.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]notification.Params, 0)
	for _, n := range r.sent {
		if n.Type == t {
			result = append(result, n)
		}
	}
	return result
}

// TaskRecorder implements task.Sink, idempotent per (entity, category).
type TaskRecorder struct {
	mu      sync.Mutex
	open    map[string]bool
	created []task.Params
}

// NewTaskRecorder creates an empty recorder.
func NewTaskRecorder() *TaskRecorder {
	return &TaskRecorder{open: make(map[string]bool)}
}

func (r *TaskRecorder) CreateTask(ctx context.Context, params task.Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s:%s:%s", params.EntityType, params.EntityID, params.Category)
	if r.open[key] {
		return nil
	}
	r.open[key] = true
	r.created = append(r.created, params)
	return nil
}

// Created returns a copy of all created tasks.
func (r *TaskRecorder) Created() []task.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]task.Params(nil), r.created...)
}

package stripe

import (
	"context"

	stripesdk "github.com/stripe/stripe-go/v82"
	stripeclient "github.com/stripe/stripe-go/v82/client"

	"github.com/subflow/subflow/internal/config"
	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/gateway"
	"github.com/subflow/subflow/internal/logger"
	"github.com/subflow/subflow/internal/types"
)

// Client implements gateway.Gateway on top of Stripe PaymentIntents.
type Client struct {
	api *stripeclient.API
	log *logger.Logger
}

// NewClient creates a Stripe gateway client.
func NewClient(cfg config.StripeConfig, log *logger.Logger) *Client {
	api := &stripeclient.API{}
	api.Init(cfg.SecretKey, nil)

	return &Client{
		api: api,
		log: log,
	}
}

func (c *Client) CreateOffSessionCharge(ctx context.Context, req gateway.CreateChargeRequest) (*gateway.CreateChargeResult, error) {
	params := &stripesdk.PaymentIntentParams{
		Amount:        stripesdk.Int64(req.AmountCents),
		Currency:      stripesdk.String(req.Currency),
		Customer:      stripesdk.String(req.GatewayCustomerID),
		PaymentMethod: stripesdk.String(req.PaymentMethodID),
		Description:   stripesdk.String(req.Description),
		Confirm:       stripesdk.Bool(true),
		OffSession:    stripesdk.Bool(true),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripesdk.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		// A card decline still produces an intent we can track; anything
		// without an intent is ambiguous and must not be blindly retried.
		if stripeErr, ok := err.(*stripesdk.Error); ok && stripeErr.PaymentIntent != nil {
			c.log.Warnw("off-session charge declined",
				"user_id", req.UserID,
				"gateway_payment_id", stripeErr.PaymentIntent.ID,
				"decline_code", stripeErr.DeclineCode)
			return &gateway.CreateChargeResult{
				GatewayPaymentID: stripeErr.PaymentIntent.ID,
				Status:           types.PaymentStatusFailed,
			}, nil
		}

		return nil, ierr.WithError(err).
			WithHint("Failed to create off-session charge").
			WithReportableDetails(map[string]interface{}{
				"user_id":  req.UserID,
				"amount":   req.AmountCents,
				"currency": req.Currency,
			}).
			Mark(ierr.ErrIntegration)
	}

	return &gateway.CreateChargeResult{
		GatewayPaymentID: intent.ID,
		Status:           mapIntentStatus(intent.Status),
	}, nil
}

func (c *Client) GetPaymentStatus(ctx context.Context, gatewayPaymentID string) (types.PaymentStatus, error) {
	params := &stripesdk.PaymentIntentParams{}
	params.Context = ctx

	intent, err := c.api.PaymentIntents.Get(gatewayPaymentID, params)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to query payment status").
			WithReportableDetails(map[string]interface{}{
				"gateway_payment_id": gatewayPaymentID,
			}).
			Mark(ierr.ErrIntegration)
	}

	return mapIntentStatus(intent.Status), nil
}

// mapIntentStatus translates Stripe's intent lifecycle into the engine's
// four-state payment status.
func mapIntentStatus(status stripesdk.PaymentIntentStatus) types.PaymentStatus {
	switch status {
	case stripesdk.PaymentIntentStatusSucceeded:
		return types.PaymentStatusSucceeded
	case stripesdk.PaymentIntentStatusProcessing:
		return types.PaymentStatusProcessing
	case stripesdk.PaymentIntentStatusCanceled,
		stripesdk.PaymentIntentStatusRequiresPaymentMethod:
		return types.PaymentStatusFailed
	default:
		// requires_confirmation, requires_action, requires_capture: the
		// charge is created but not settled.
		return types.PaymentStatusPending
	}
}

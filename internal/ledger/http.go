package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/subflow/subflow/internal/config"
	ierr "github.com/subflow/subflow/internal/errors"
	"github.com/subflow/subflow/internal/logger"
)

const (
	spendPath = "/v1/ledger/spend"

	errCodeInsufficientBalance = "insufficient_balance"
)

type spendResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HTTPClient calls the ledger service over HTTP. Transport-level retries are
// handled by retryablehttp; a short backoff wraps the whole call for
// connection churn. The ledger's idempotency key makes retries safe.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	log     *logger.Logger
}

// NewHTTPClient creates a ledger client from config.
func NewHTTPClient(cfg config.LedgerConfig, log *logger.Logger) *HTTPClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = log.GetRetryableHTTPLogger()

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		log:     log,
	}
}

func (c *HTTPClient) Spend(ctx context.Context, req SpendRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode spend request").
			Mark(ierr.ErrInternal)
	}

	operation := func() error {
		return c.doSpend(ctx, payload, req)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return err
	}
	return nil
}

func (c *HTTPClient) doSpend(ctx context.Context, payload []byte, req SpendRequest) error {
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+spendPath, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(ierr.WithError(err).
			WithHint("Failed to build spend request").
			Mark(ierr.ErrInternal))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Ledger service unreachable").
			Mark(ierr.ErrHTTPClient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read ledger response").
			Mark(ierr.ErrHTTPClient)
	}

	var parsed spendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ierr.WithError(err).
			WithHint("Ledger returned an unparseable response").
			WithReportableDetails(map[string]interface{}{
				"status_code": resp.StatusCode,
			}).
			Mark(ierr.ErrIntegration)
	}

	if parsed.Success {
		return nil
	}

	// A declined spend is terminal; do not retry it through backoff.
	if parsed.ErrorCode == errCodeInsufficientBalance {
		return backoff.Permanent(ierr.NewError("insufficient balance").
			WithHint("User does not have enough credits for this renewal").
			WithReportableDetails(map[string]interface{}{
				"user_id": req.UserID,
				"amount":  req.Amount.String(),
			}).
			Mark(ierr.ErrInsufficientBalance))
	}

	c.log.Warnw("ledger spend failed",
		"user_id", req.UserID,
		"status_code", resp.StatusCode,
		"error_code", parsed.ErrorCode,
		"error", parsed.Error)

	return ierr.NewErrorf("ledger spend failed: %s", parsed.Error).
		WithReportableDetails(map[string]interface{}{
			"error_code":  parsed.ErrorCode,
			"status_code": resp.StatusCode,
		}).
		Mark(ierr.ErrIntegration)
}

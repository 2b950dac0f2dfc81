// Package webhook implements the Webhook Delivery Worker (spec
// component I): builds the payload envelope for a payment event, signs
// it with HMAC-SHA256, and delivers it to the configured sink URL with
// bounded concurrency and exponential backoff retries.
//
// Grounded directly on internal/callback/sender.go (HTTP POST with a
// bounded http.Client) and internal/callback/processor.go (semaphore
// bound, SelectForUpdate-then-update-outcome shape).
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/suncoastpay/orchestrator/internal/config"
)

const defaultTimeoutMs = 10_000

// Sender POSTs a signed webhook payload to a sink URL, same shape as
// internal/callback/sender.go's Sender.Send.
type Sender struct {
	client *http.Client
}

func NewSender(cfg config.Webhook) *Sender {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs == 0 {
		timeoutMs = defaultTimeoutMs
	}
	return &Sender{client: &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond}}
}

// Result carries the transport outcome of a single delivery attempt.
type Result struct {
	StatusCode int
	Body       string
}

// Send POSTs body to url with the X-Webhook-Signature header set to the
// hex-encoded HMAC-SHA256 signature, returning a transport error for
// connection failures and a non-nil Result with any status code
// (including non-2xx) otherwise — callers decide retry policy based on
// the status.
func (s *Sender) Send(ctx context.Context, logger *slog.Logger, url string, body []byte, signature string) (Result, error) {
	logger.DebugContext(ctx, "sending webhook", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.ErrorContext(ctx, "error sending webhook", "error", err, "url", url)
		return Result{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	logger.DebugContext(ctx, "webhook response", "status", resp.StatusCode, "url", url)

	return Result{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}

// IsSuccess reports whether status is a 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

func nonSuccessErr(status int, body string) error {
	return fmt.Errorf("webhook sink returned %d: %s", status, body)
}

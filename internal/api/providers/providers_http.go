package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrProviderStatus = errors.New("provider returned an unexpected status")
	ErrNoData         = errors.New("provider returned no data")
)

const maxResponseBytes = 16 << 20

// StatusError carries the status and a prefix of the body of a non-2xx reply.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrProviderStatus }

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// doer executes provider requests with exponential backoff. Network errors,
// 429 and 5xx are retried; every other status is returned immediately.
type doer struct {
	provider        string
	client          *http.Client
	maxRetries      uint64
	initialInterval time.Duration
	logger          *slog.Logger
}

func newDoer(provider string, client *http.Client, maxRetries uint64, logger *slog.Logger) *doer {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &doer{
		provider:        provider,
		client:          client,
		maxRetries:      maxRetries,
		initialInterval: 250 * time.Millisecond,
		logger:          logger.With(slog.String("provider", provider)),
	}
}

// do sends the request built by newReq and returns the body of a 2xx reply.
// newReq is called once per attempt so request bodies can be replayed.
func (d *doer) do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	attempt := 0

	operation := func() error {
		attempt++
		req, err := newReq(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: build request: %w", d.provider, err))
		}
		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.WarnContext(ctx, "Provider request failed", slog.Int("attempt", attempt), slog.Any("error", err))
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("%s: read body: %w", d.provider, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{Provider: d.provider, Code: resp.StatusCode, Body: truncate(string(payload), 256)}
			if retryable(resp.StatusCode) {
				d.logger.WarnContext(ctx, "Provider returned retryable status", slog.Int("attempt", attempt), slog.Int("status", resp.StatusCode))
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		body = payload
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.initialInterval
	policy.MaxInterval = 5 * time.Second
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, d.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

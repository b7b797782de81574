package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Webhook posts messages as JSON to a single URL.
type Webhook struct {
	url        string
	httpClient *http.Client
	retries    uint64
}

type WebhookOption func(*Webhook)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.httpClient = c }
}

func WithRetries(n uint64) WebhookOption {
	return func(w *Webhook) { w.retries = n }
}

func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retries:    2,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Configured reports whether a URL is set.
func (w *Webhook) Configured() bool {
	return w.url != ""
}

// Send posts msg. 5xx and 429 responses are retried.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if !w.Configured() {
		return ErrNotConfigured
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("post webhook: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		err = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, w.retries), ctx))
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// httpClient wraps net/http with bounded exponential retry on network
// failures and 5xx responses. Auth failures are never retried here; the
// session client decides what they mean.
type httpClient struct {
	hc         *http.Client
	maxElapsed time.Duration
}

func newHTTPClient(timeout, maxElapsed time.Duration) *httpClient {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
	return &httpClient{
		hc:         &http.Client{Transport: tr, Timeout: timeout},
		maxElapsed: maxElapsed,
	}
}

// postJSON sends body as JSON and decodes the response into out (when out is
// non-nil). The HTTP status is returned alongside so callers can separate
// auth failures from transport failures.
func (c *httpClient) postJSON(ctx context.Context, method, url, bearer string, body, out any) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
	}

	var status int
	var respBody []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %d", resp.StatusCode)
		}
		status = resp.StatusCode
		respBody = b
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return status, fmt.Errorf("decode response: %w", err)
		}
	}
	return status, nil
}

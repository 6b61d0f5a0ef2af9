// Package syncclient is the device side of replication: it talks to the
// server's /sync and /ics-proxy endpoints with the shared-secret cookie.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"daycard/internal/apperr"
	"daycard/internal/icsproxy"
	"daycard/internal/model"
	"daycard/pkg/circuitbreaker"
	"daycard/pkg/config"
	"daycard/pkg/util"
)

const DefaultCookieName = "app_auth"

type Client struct {
	baseURL    string
	cookieName string
	secret     string
	timeout    time.Duration
	http       *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

func New(cfg config.SyncConfig, cookieName string, logger *zap.Logger) *Client {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cookieName: cookieName,
		secret:     cfg.Secret,
		timeout:    cfg.Timeout(),
		http:       &http.Client{},
		breaker:    circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:     logger,
	}
}

// Configured reports whether a server URL is set at all.
func (c *Client) Configured() bool { return c.baseURL != "" }

// BreakerState exposes the sync breaker for status output.
func (c *Client) BreakerState() circuitbreaker.State { return c.breaker.GetState() }

// Pull fetches the remote snapshot changed after since ("" for everything).
func (c *Client) Pull(ctx context.Context, since string) (*model.Snapshot, error) {
	path := "/sync"
	if since != "" {
		path += "?since=" + url.QueryEscape(since)
	}

	var snap model.Snapshot
	err := c.call(ctx, "pull", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, path, nil, &snap)
	})
	if err != nil {
		return nil, err
	}
	snap.Normalize()
	return &snap, nil
}

// Push sends a changeset. The server answers {"ok":true}.
func (c *Client) Push(ctx context.Context, cs model.Changeset) error {
	body, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode changeset: %w", err)
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	err = c.call(ctx, "push", func(ctx context.Context) error {
		if err := c.doJSON(ctx, http.MethodPost, "/sync", body, &resp); err != nil {
			return err
		}
		if !resp.OK {
			return errors.New("push not acknowledged")
		}
		return nil
	})
	return err
}

// FetchFeed retrieves a calendar feed through the server-side proxy. Feed
// URLs are never fetched directly from the device.
func (c *Client) FetchFeed(ctx context.Context, feedURL string) (string, error) {
	if !c.Configured() {
		return "", apperr.New(apperr.KindConfig, "sync server not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/ics-proxy?url="+url.QueryEscape(feedURL), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamFetch, "Fetch failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, icsproxy.DefaultMaxBytes+1))
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstreamFetch, "Fetch failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, body)
	}
	if int64(len(body)) > icsproxy.DefaultMaxBytes {
		return "", apperr.New(apperr.KindResourceLimit, "Response too large")
	}
	return string(body), nil
}

// call bounds fn with the client timeout, runs it through the breaker and
// retries once when the failure looks transient. The final error is tagged
// SyncUnavailable.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if !c.Configured() {
		return apperr.New(apperr.KindSyncUnavailable, "sync server not configured")
	}

	attempt := func() error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			return fn(ctx)
		})
	}

	err := attempt()
	if err != nil && !errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		if retryable, kind := util.IsRetryableError(err); retryable {
			c.logger.Info("Retrying sync call", zap.String("op", op), zap.String("reason", kind))
			err = attempt()
		}
	}
	if err == nil {
		return nil
	}

	c.logger.Warn("Sync call failed", zap.String("op", op), zap.Error(err))
	if apperr.Is(err, apperr.KindAuth) {
		return err
	}
	return apperr.Wrap(apperr.KindSyncUnavailable, op+" failed", err)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.secret})
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, data)
	}
	return json.Unmarshal(data, out)
}

// statusError maps a non-200 answer to the error taxonomy. 5xx messages keep
// the "server returned 5xx" form the retry classifier recognizes.
func statusError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Error
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return apperr.New(apperr.KindAuth, msg)
	case status == http.StatusBadRequest:
		return apperr.New(apperr.KindValidation, msg)
	case status == http.StatusRequestEntityTooLarge:
		return apperr.New(apperr.KindResourceLimit, msg)
	case status == http.StatusBadGateway:
		return apperr.New(apperr.KindUpstreamFetch, msg)
	case status >= 500:
		return fmt.Errorf("server returned %d: %s", status, msg)
	}
	return fmt.Errorf("unexpected status %d: %s", status, msg)
}

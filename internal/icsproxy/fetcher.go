// Package icsproxy fetches third-party calendar feeds on behalf of clients.
// Every URL, redirect target and dialed address is checked against the
// private address policy before any byte leaves the host.
package icsproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"go.uber.org/zap"

	"daycard/internal/apperr"
	"daycard/pkg/config"
	"daycard/pkg/metrics"
)

const (
	DefaultMaxBytes  int64 = 5 * 1024 * 1024
	DefaultUserAgent       = "todo-ics-proxy"
	ContentType            = "text/calendar; charset=utf-8"

	maxRedirects   = 5
	fetchFailedMsg = "Fetch failed"
)

var (
	errInvalidURL  = apperr.Validationf("Invalid URL")
	errHTTPSOnly   = apperr.Validationf("Only https URLs are allowed")
	errPrivateAddr = apperr.Validationf("Private IPs are not allowed")
	errTooManyHops = apperr.Validationf("Too many redirects")
	errTooLarge    = apperr.New(apperr.KindResourceLimit, "Response too large")
)

// Resolver looks up a hostname. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

type Fetcher struct {
	client    *http.Client
	resolver  Resolver
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	logger    *zap.Logger
}

type Option func(*Fetcher)

// WithResolver replaces the DNS resolver used for URL validation.
func WithResolver(r Resolver) Option {
	return func(f *Fetcher) { f.resolver = r }
}

// WithTransport replaces the outbound transport. The dial-time address check
// only applies to the default transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.client.Transport = rt }
}

func NewFetcher(cfg config.ProxyConfig, logger *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		resolver:  net.DefaultResolver,
		timeout:   cfg.Timeout(),
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}

	dialer := &net.Dialer{Timeout: f.timeout, Control: guardDial}
	f.client = &http.Client{
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   f.timeout,
			ResponseHeaderTimeout: f.timeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       30 * time.Second,
		},
		CheckRedirect: f.checkRedirect,
	}

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// guardDial rejects a connection whose resolved address is forbidden. It
// catches DNS answers that changed between validation and connect.
func guardDial(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return errPrivateAddr
	}
	if IsBlockedAddr(ap.Addr()) {
		return errPrivateAddr
	}
	return nil
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errTooManyHops
	}
	_, err := f.ValidateURL(req.Context(), req.URL.String())
	return err
}

// ValidateURL parses raw and checks scheme and host against the address
// policy. Hostnames are resolved and every returned address must be public.
func (f *Fetcher) ValidateURL(ctx context.Context, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, apperr.Validationf("Missing url")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return nil, errInvalidURL
	}
	if u.Scheme != "https" {
		return nil, errHTTPSOnly
	}
	host := u.Hostname()
	if host == "" {
		return nil, errInvalidURL
	}
	if isLocalhostName(host) {
		return nil, errPrivateAddr
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlockedAddr(addr) {
			return nil, errPrivateAddr
		}
		return u, nil
	}

	addrs, err := f.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil || len(addrs) == 0 {
		return nil, apperr.Wrap(apperr.KindValidation, "Invalid URL", err)
	}
	for _, addr := range addrs {
		if IsBlockedAddr(addr) {
			return nil, errPrivateAddr
		}
	}
	return u, nil
}

// Fetch validates raw and downloads it within the timeout, aborting as soon
// as the body grows past the byte cap. Partial bodies are never returned.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (string, error) {
	u, err := f.ValidateURL(ctx, raw)
	if err != nil {
		metrics.RecordICSFetch("rejected", 0)
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errInvalidURL
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			metrics.RecordICSFetch("rejected", 0)
			return "", appErr
		}
		f.logger.Warn("ICS fetch failed",
			zap.String("host", u.Host),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		metrics.RecordICSFetch("upstream_error", 0)
		return "", apperr.Wrap(apperr.KindUpstreamFetch, fetchFailedMsg, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn("ICS upstream returned non-2xx",
			zap.String("host", u.Host),
			zap.Int("status", resp.StatusCode),
		)
		metrics.RecordICSFetch("upstream_status", 0)
		return "", apperr.Wrap(apperr.KindUpstreamFetch, fetchFailedMsg,
			fmt.Errorf("upstream status %d", resp.StatusCode))
	}

	body, err := readCapped(resp.Body, f.maxBytes)
	if err != nil {
		if apperr.Is(err, apperr.KindResourceLimit) {
			f.logger.Warn("ICS feed exceeded size cap",
				zap.String("host", u.Host),
				zap.Int64("max_bytes", f.maxBytes),
			)
			metrics.RecordICSFetch("too_large", f.maxBytes)
			return "", err
		}
		metrics.RecordICSFetch("upstream_error", 0)
		return "", apperr.Wrap(apperr.KindUpstreamFetch, fetchFailedMsg, err)
	}

	metrics.RecordICSFetch("ok", int64(len(body)))
	f.logger.Info("ICS feed fetched",
		zap.String("host", u.Host),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)),
	)
	return string(body), nil
}

// readCapped reads r in chunks, failing the moment the running total passes
// max.
func readCapped(r io.Reader, max int64) ([]byte, error) {
	var (
		out   []byte
		total int64
		chunk = make([]byte, 32*1024)
	)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > max {
				return nil, errTooLarge
			}
			out = append(out, chunk[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

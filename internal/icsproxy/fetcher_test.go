package icsproxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"go.uber.org/zap"

	"daycard/internal/apperr"
	"daycard/pkg/config"
)

type staticResolver map[string][]string

func (r staticResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	raw, ok := r[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	addrs := make([]netip.Addr, 0, len(raw))
	for _, s := range raw {
		addrs = append(addrs, netip.MustParseAddr(s))
	}
	return addrs, nil
}

var testResolver = staticResolver{
	"example.com":      {"93.184.216.34", "2606:2800:220:1:248:1893:25c8:1946"},
	"intranet.example": {"192.168.1.20"},
	"mixed.example":    {"93.184.216.34", "10.1.2.3"},
}

// newTestFetcher points every connection at srv while URLs keep their
// public-looking hostnames.
func newTestFetcher(t *testing.T, srv *httptest.Server, cfg config.ProxyConfig) *Fetcher {
	t.Helper()
	transport := srv.Client().Transport.(*http.Transport).Clone()
	target := srv.Listener.Addr().String()
	transport.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, target)
	}
	return NewFetcher(cfg, zap.NewNop(), WithResolver(testResolver), WithTransport(transport))
}

func TestValidateURL(t *testing.T) {
	f := NewFetcher(config.ProxyConfig{}, zap.NewNop(), WithResolver(testResolver))

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"plain http", "http://example.com/feed.ics", errHTTPSOnly},
		{"private literal", "https://10.0.0.5/feed.ics", errPrivateAddr},
		{"public host", "https://example.com/feed.ics", nil},
		{"localhost", "https://localhost/feed.ics", errPrivateAddr},
		{"localhost subdomain", "https://cal.localhost./feed.ics", errPrivateAddr},
		{"loopback v4", "https://127.0.0.1:8443/feed.ics", errPrivateAddr},
		{"loopback v6", "https://[::1]/feed.ics", errPrivateAddr},
		{"unique local v6", "https://[fd12::1]/feed.ics", errPrivateAddr},
		{"link local v6", "https://[fe80::1]/feed.ics", errPrivateAddr},
		{"link local v4", "https://169.254.169.254/latest", errPrivateAddr},
		{"mapped v4", "https://[::ffff:192.168.0.1]/feed.ics", errPrivateAddr},
		{"zoned loopback v6", "https://[::1%25lo]/feed.ics", errPrivateAddr},
		{"zoned link local v6", "https://[fe80::1%25eth0]/feed.ics", errPrivateAddr},
		{"zoned unique local v6", "https://[fd00::1%25eth0]/feed.ics", errPrivateAddr},
		{"172.16 edge", "https://172.16.0.1/feed.ics", errPrivateAddr},
		{"172.31 edge", "https://172.31.255.255/feed.ics", errPrivateAddr},
		{"172.32 is public", "https://172.32.0.1/feed.ics", nil},
		{"resolves private", "https://intranet.example/feed.ics", errPrivateAddr},
		{"any private answer", "https://mixed.example/feed.ics", errPrivateAddr},
		{"not a url", "::nope", errInvalidURL},
		{"relative", "/feed.ics", errInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ValidateURL(context.Background(), tt.raw)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected accept, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if apperr.HTTPStatus(err) != http.StatusBadRequest {
				t.Errorf("expected 400 classification, got %d", apperr.HTTPStatus(err))
			}
		})
	}
}

func TestValidateURLUnresolvableHost(t *testing.T) {
	f := NewFetcher(config.ProxyConfig{}, zap.NewNop(), WithResolver(testResolver))
	_, err := f.ValidateURL(context.Background(), "https://nowhere.example/feed.ics")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFetchReturnsBody(t *testing.T) {
	const feed = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	var gotUA string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, feed)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.ProxyConfig{})
	body, err := f.Fetch(context.Background(), "https://example.com/feed.ics")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body != feed {
		t.Errorf("unexpected body %q", body)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("expected user agent %q, got %q", DefaultUserAgent, gotUA)
	}
}

func TestFetchRejectsOversizedStream(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := bytes.Repeat([]byte("A"), 512)
		for i := 0; i < 8; i++ {
			_, _ = w.Write(chunk)
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.ProxyConfig{MaxBytes: 2048})
	body, err := f.Fetch(context.Background(), "https://example.com/big.ics")
	if !apperr.Is(err, apperr.KindResourceLimit) {
		t.Fatalf("expected resource limit error, got %v", err)
	}
	if body != "" {
		t.Errorf("partial data must be discarded, got %d bytes", len(body))
	}
	if apperr.HTTPStatus(err) != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", apperr.HTTPStatus(err))
	}
}

func TestReadCappedAtDefaultLimit(t *testing.T) {
	atLimit := io.LimitReader(zeroReader{}, DefaultMaxBytes)
	if b, err := readCapped(atLimit, DefaultMaxBytes); err != nil || int64(len(b)) != DefaultMaxBytes {
		t.Fatalf("exactly the cap must pass, got %d bytes, %v", len(b), err)
	}

	overLimit := io.LimitReader(zeroReader{}, DefaultMaxBytes+1)
	if _, err := readCapped(overLimit, DefaultMaxBytes); !errors.Is(err, errTooLarge) {
		t.Fatalf("expected errTooLarge one byte past the cap, got %v", err)
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestFetchUpstreamStatus(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.ProxyConfig{})
	_, err := f.Fetch(context.Background(), "https://example.com/missing.ics")
	if apperr.HTTPStatus(err) != http.StatusBadGateway {
		t.Fatalf("expected 502 classification, got %v", err)
	}
	if apperr.Message(err) != "Fetch failed" {
		t.Errorf("unexpected message %q", apperr.Message(err))
	}
}

func TestFetchRedirectToPrivateIsRejected(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://10.0.0.1/admin", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.ProxyConfig{})
	_, err := f.Fetch(context.Background(), "https://example.com/feed.ics")
	if !errors.Is(err, errPrivateAddr) {
		t.Fatalf("expected private address rejection on redirect, got %v", err)
	}
}

func TestFetchTimeoutIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, config.ProxyConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, "https://example.com/slow.ics")
	if !apperr.Is(err, apperr.KindUpstreamFetch) {
		t.Fatalf("expected upstream fetch error, got %v", err)
	}
}

func TestGuardDial(t *testing.T) {
	if err := guardDial("tcp", "127.0.0.1:443", nil); err == nil {
		t.Error("expected loopback dial to be refused")
	}
	if err := guardDial("tcp6", "[fe80::1]:443", nil); err == nil {
		t.Error("expected link-local dial to be refused")
	}
	for _, addr := range []string{"[fe80::1%eth0]:443", "[::1%lo]:443", "[fd00::1%eth0]:443"} {
		if err := guardDial("tcp6", addr, nil); err == nil {
			t.Errorf("expected zoned dial to %s to be refused", addr)
		}
	}
	if !IsBlockedAddr(netip.MustParseAddr("fe80::1%eth0")) {
		t.Error("zoned link-local address must be blocked")
	}
	if err := guardDial("tcp", "93.184.216.34:443", nil); err != nil {
		t.Errorf("expected public dial to pass, got %v", err)
	}
}

func TestIsLocalhostName(t *testing.T) {
	for _, h := range []string{"localhost", "LOCALHOST", "localhost.", "a.localhost"} {
		if !isLocalhostName(h) {
			t.Errorf("%q should be treated as localhost", h)
		}
	}
	if isLocalhostName("notlocalhost.com") {
		t.Error("notlocalhost.com is not localhost")
	}
}

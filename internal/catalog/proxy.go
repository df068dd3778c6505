// Package catalog proxies requests to the upstream movie catalog API and
// substitutes static data whenever the upstream cannot answer.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// MountPath is the prefix under which every catalog sub-path is served.
	MountPath = "/api/tmdb"
	// SourceHeader tells the caller whether the body came from the upstream
	// or from the fallback payload.
	SourceHeader = "X-Catalog-Source"

	defaultMaxBody = 10 << 20
)

// Failure reasons.
const (
	reasonRequest     = "request"
	reasonTimeout     = "timeout"
	reasonNetwork     = "network"
	reasonStatus      = "status"
	reasonInvalidJSON = "invalid_json"
	reasonTooLarge    = "too_large"
)

type upstreamError struct {
	reason string
	err    error
}

func (e *upstreamError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

// Proxy forwards requests to the upstream catalog. It never reports an
// upstream failure to the caller; the fallback payload is served instead.
type Proxy struct {
	baseURL  string
	timeout  time.Duration
	maxBody  int64
	client   *http.Client
	fallback Fallback
	logger   *zap.Logger
	metrics  *Metrics
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient replaces the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) { p.client = c }
}

// WithLogger sets the logger for upstream failures.
func WithLogger(l *zap.Logger) Option {
	return func(p *Proxy) { p.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

// NewProxy builds a proxy for baseURL. Each upstream call is abandoned after timeout.
func NewProxy(baseURL string, timeout time.Duration, fallback Fallback, opts ...Option) *Proxy {
	p := &Proxy{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  timeout,
		maxBody:  defaultMaxBody,
		client:   &http.Client{Timeout: timeout},
		fallback: fallback,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("catalog")
	return p
}

// ServeHTTP handles any method under MountPath.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := p.upstreamURL(r)
	p.logger.Debug("proxying catalog request", zap.String("path", strings.TrimPrefix(r.URL.Path, MountPath)))

	start := time.Now()
	body, err := p.fetch(r.Context(), target)
	elapsed := time.Since(start)

	if err != nil {
		var ue *upstreamError
		reason := reasonNetwork
		if errors.As(err, &ue) {
			reason = ue.reason
		}
		// A caller that went away is not an upstream failure.
		if r.Context().Err() != nil {
			p.logger.Debug("catalog caller went away",
				zap.String("upstream_reason", reason),
				zap.Duration("elapsed", elapsed),
			)
			p.metrics.observe(SourceFallback, "", elapsed)
			p.write(w, SourceFallback, p.fallback.Bytes())
			return
		}
		p.logger.Warn("catalog upstream failed; serving fallback data",
			zap.String("reason", reason),
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
		)
		p.metrics.observe(SourceFallback, reason, elapsed)
		p.write(w, SourceFallback, p.fallback.Bytes())
		return
	}

	p.metrics.observe(SourceUpstream, "", elapsed)
	p.write(w, SourceUpstream, body)
}

// upstreamURL joins the base URL, the sub-path after MountPath and the
// re-encoded query string.
func (p *Proxy) upstreamURL(r *http.Request) string {
	sub := strings.TrimPrefix(r.URL.EscapedPath(), MountPath)
	target := p.baseURL + sub
	if query := r.URL.Query().Encode(); query != "" {
		target += "?" + query
	}
	return target
}

func (p *Proxy) fetch(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &upstreamError{reason: reasonRequest, err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, p.maxBody))
		return nil, &upstreamError{reason: reasonStatus, err: fmt.Errorf("upstream returned %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	if err != nil {
		return nil, classify(err)
	}
	if int64(len(body)) > p.maxBody {
		return nil, &upstreamError{reason: reasonTooLarge, err: fmt.Errorf("body exceeds %d bytes", p.maxBody)}
	}
	if !json.Valid(body) {
		return nil, &upstreamError{reason: reasonInvalidJSON, err: errors.New("upstream body is not valid JSON")}
	}
	return body, nil
}

// classify strips the request URL (it carries the api key) and buckets the error.
func classify(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &upstreamError{reason: reasonTimeout, err: err}
	}
	return &upstreamError{reason: reasonNetwork, err: err}
}

func (p *Proxy) write(w http.ResponseWriter, source string, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(SourceHeader, source)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		p.logger.Debug("write catalog response", zap.Error(err))
	}
}

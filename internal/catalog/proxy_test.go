package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type upstreamCall struct {
	method string
	path   string
	query  string
}

func newUpstream(t *testing.T, handler http.HandlerFunc) (*httptest.Server, <-chan upstreamCall) {
	t.Helper()
	calls := make(chan upstreamCall, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- upstreamCall{method: r.Method, path: r.URL.EscapedPath(), query: r.URL.RawQuery}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func serveProxy(p *Proxy, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func fallbackIDs(t *testing.T, body []byte) []int {
	t.Helper()
	var payload struct {
		Results []struct {
			ID int `json:"id"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	ids := make([]int, 0, len(payload.Results))
	for _, r := range payload.Results {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestProxy_PassesUpstreamBodyThrough(t *testing.T) {
	const upstreamBody = `{"page":1,"results":[{"id":7,"title":"Real Movie","vote_average":7.1}],"total_pages":9}`
	upstream, calls := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamBody))
	})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	p := NewProxy(upstream.URL+"/3", time.Second, DefaultFallback(), WithMetrics(metrics))

	rec := serveProxy(p, http.MethodGet, "/api/tmdb/trending/all/week?api_key=X&language=en-US")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, upstreamBody, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, SourceUpstream, rec.Header().Get(SourceHeader))

	call := <-calls
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/3/trending/all/week", call.path)
	assert.Equal(t, "api_key=X&language=en-US", call.query)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(SourceUpstream)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.requests.WithLabelValues(SourceFallback)))
}

func TestProxy_AnyMethodIsForwardedAsGet(t *testing.T) {
	upstream, calls := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	p := NewProxy(upstream.URL, time.Second, DefaultFallback())

	rec := serveProxy(p, http.MethodPost, "/api/tmdb/discover/tv?with_networks=213")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
	call := <-calls
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/discover/tv", call.path)
	assert.Equal(t, "with_networks=213", call.query)
}

func TestProxy_NoQueryString(t *testing.T) {
	upstream, calls := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"genres":[]}`))
	})
	p := NewProxy(upstream.URL, time.Second, DefaultFallback())

	rec := serveProxy(p, http.MethodGet, "/api/tmdb/genre/movie/list")

	assert.JSONEq(t, `{"genres":[]}`, rec.Body.String())
	call := <-calls
	assert.Equal(t, "/genre/movie/list", call.path)
	assert.Empty(t, call.query)
}

func TestProxy_FallbackOnFailures(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{"results":[{"id":1}]}`))
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		baseURL string
		maxBody int64
		reason  string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"status_message":"boom"}`, http.StatusInternalServerError)
			},
			reason: reasonStatus,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status_code":7,"status_message":"Invalid API key"}`))
			},
			reason: reasonStatus,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>maintenance</html>"))
			},
			reason: reasonInvalidJSON,
		},
		{
			name:    "timeout",
			handler: slow,
			reason:  reasonTimeout,
		},
		{
			name: "body over limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"results":[{"id":1,"title":"` + strings.Repeat("x", 64) + `"}]}`))
			},
			maxBody: 32,
			reason:  reasonTooLarge,
		},
		{
			name:    "unbuildable request",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			baseURL: "http://%zz",
			reason:  reasonRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			upstream, _ := newUpstream(t, tc.handler)
			base := upstream.URL
			if tc.baseURL != "" {
				base = tc.baseURL
			}
			reg := prometheus.NewRegistry()
			metrics := NewMetrics(reg)
			core, logs := observer.New(zap.WarnLevel)
			p := NewProxy(base, 100*time.Millisecond, DefaultFallback(),
				WithMetrics(metrics), WithLogger(zap.New(core)))
			if tc.maxBody > 0 {
				p.maxBody = tc.maxBody
			}

			rec := serveProxy(p, http.MethodGet, "/api/tmdb/trending/all/week?api_key=X")

			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, string(defaultFallback), rec.Body.String())
			assert.Equal(t, SourceFallback, rec.Header().Get(SourceHeader))
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues(tc.reason)))
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(SourceFallback)))

			entries := logs.FilterMessage("catalog upstream failed; serving fallback data").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.reason, entries[0].ContextMap()["reason"])
			errText, _ := entries[0].ContextMap()["error"].(string)
			assert.NotContains(t, errText, "api_key")
		})
	}
}

func TestProxy_BodyAtLimitIsPassedThrough(t *testing.T) {
	const body = `{"results":[]}`
	upstream, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
	p := NewProxy(upstream.URL, time.Second, DefaultFallback())
	p.maxBody = int64(len(body))

	rec := serveProxy(p, http.MethodGet, "/api/tmdb/movie/popular")

	assert.Equal(t, SourceUpstream, rec.Header().Get(SourceHeader))
	assert.Equal(t, body, rec.Body.String())
}

func TestProxy_CallerGoneIsNotAnUpstreamFailure(t *testing.T) {
	upstream, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	core, logs := observer.New(zap.WarnLevel)
	p := NewProxy(upstream.URL, time.Second, DefaultFallback(),
		WithMetrics(metrics), WithLogger(zap.New(core)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/tmdb/movie/popular?api_key=X", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.Equal(t, SourceFallback, rec.Header().Get(SourceHeader))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(SourceFallback)))
	assert.Equal(t, 0, testutil.CollectAndCount(metrics.failures), "no failure reason may be recorded")
	assert.Zero(t, logs.Len(), "no warning for a caller that disconnected")
}

func TestProxy_FallbackWhenUpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	base := upstream.URL
	upstream.Close()

	core, logs := observer.New(zap.WarnLevel)
	p := NewProxy(base, time.Second, DefaultFallback(), WithLogger(zap.New(core)))

	rec := serveProxy(p, http.MethodGet, "/api/tmdb/trending/all/week?api_key=X")

	require.Equal(t, http.StatusOK, rec.Code)
	ids := fallbackIDs(t, rec.Body.Bytes())
	assert.Equal(t, []int{101, 102, 103, 104, 105}, ids)

	require.Equal(t, 1, logs.Len())
	errText, _ := logs.All()[0].ContextMap()["error"].(string)
	assert.NotContains(t, errText, "api_key", "request URL must not leak into logs")
}

func TestProxy_FallbackIsIdenticalAcrossFailures(t *testing.T) {
	upstream, _ := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	p := NewProxy(upstream.URL, time.Second, DefaultFallback())

	first := serveProxy(p, http.MethodGet, "/api/tmdb/movie/popular").Body.String()
	second := serveProxy(p, http.MethodGet, "/api/tmdb/tv/top_rated?page=2").Body.String()
	assert.Equal(t, first, second)
}

func TestNewFallback(t *testing.T) {
	_, err := NewFallback([]byte(`{"page":1}`))
	require.Error(t, err)

	_, err = NewFallback([]byte(`not json`))
	require.Error(t, err)

	f, err := NewFallback([]byte("{\n  \"results\": [ {\"id\": 1} ]\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"results":[{"id":1}]}`, string(f.Bytes()))

	b := f.Bytes()
	b[0] = 'X'
	assert.Equal(t, `{"results":[{"id":1}]}`, string(f.Bytes()), "fallback must not be mutable through Bytes")
}

func TestLoadFallback(t *testing.T) {
	f, err := LoadFallback("")
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102, 103, 104, 105}, fallbackIDs(t, f.Bytes()))

	path := filepath.Join(t.TempDir(), "fallback.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"results":[{"id":9,"title":"Local"}]}`), 0o600))
	f, err = LoadFallback(path)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, fallbackIDs(t, f.Bytes()))

	_, err = LoadFallback(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "read fallback file"))
}

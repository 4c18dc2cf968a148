package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/rate"
)

type payload struct {
	Value string `json:"value"`
}

func newGet(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestDoJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":"ok"}`)
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), 2, "testprov", nil)

	var out payload
	err := exec.DoJSON(context.Background(), newGet(t, srv.URL), &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)
}

func TestDoJSON_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"value":"recovered"}`)
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), 3, "testprov", nil)

	var out payload
	err := exec.DoJSON(context.Background(), newGet(t, srv.URL), &out)
	require.NoError(t, err)
	assert.Equal(t, "recovered", out.Value)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDoJSON_RetryReplaysRequestBody(t *testing.T) {
	var hits atomic.Int32
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, body)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"value":"accepted"}`)
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), 2, "testprov", nil)

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"amount":"1000000"}`))
	require.NoError(t, err)

	var out payload
	require.NoError(t, exec.DoJSON(context.Background(), req, &out))
	assert.Equal(t, "accepted", out.Value)

	require.Len(t, bodies, 2)
	assert.Equal(t, `{"amount":"1000000"}`, string(bodies[1]), "retried request must carry the full body")
}

func TestDoJSON_ExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), 1, "testprov", nil)

	err := exec.DoJSON(context.Background(), newGet(t, srv.URL), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), hits.Load())
}

func TestDoJSON_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"code":"UNSUPPORTED_ROUTE"}`)
	}))
	defer srv.Close()

	sentinel := errors.New("unsupported route")
	exec := New(zap.NewNop(), nil, srv.Client(), 3, "testprov", func(status int, body []byte) error {
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Contains(t, string(body), "UNSUPPORTED_ROUTE")
		return sentinel
	})

	err := exec.DoJSON(context.Background(), newGet(t, srv.URL), nil)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(1), hits.Load(), "4xx responses are not retried")
}

func TestDoJSON_ClientErrorDefaultMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), 0, "testprov", nil)

	err := exec.DoJSON(context.Background(), newGet(t, srv.URL), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testprov returned 400")
}

func TestDoJSON_DecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), 0, "testprov", nil)

	var out payload
	err := exec.DoJSON(context.Background(), newGet(t, srv.URL), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode failed")
}

func TestDoJSON_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), 5, "testprov", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := exec.DoJSON(ctx, newGet(t, srv.URL), nil)
	require.Error(t, err)
}

func TestDoJSON_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	mgr := rate.NewManager(rate.Config{RequestsPerSecond: 1, Burst: 1})
	exec := New(zap.NewNop(), mgr, srv.Client(), 0, "testprov", nil)

	// First call consumes the only token.
	require.NoError(t, exec.DoJSON(context.Background(), newGet(t, srv.URL), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := exec.DoJSON(ctx, newGet(t, srv.URL), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Backoff(0))
	assert.Equal(t, 250*time.Millisecond, Backoff(1))
	assert.Equal(t, 500*time.Millisecond, Backoff(2))
	assert.Equal(t, 500*time.Millisecond, Backoff(7))
}

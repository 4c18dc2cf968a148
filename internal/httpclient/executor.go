package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
// One Executor is shared per provider adapter; it carries the provider tag for
// log keys and the provider-specific 4xx error mapping.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	retryMax     int
	providerTag  string
	errorHandler func(status int, body []byte) error
}

// New creates an Executor. errorHandler is called on 4xx failure responses to
// produce a provider-specific error. If nil, a default error is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	providerTag string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		retryMax:     retryMax,
		providerTag:  providerTag,
		errorHandler: errorHandler,
	}
}

// DoJSON executes req with rate limiting and retries, then JSON-decodes the
// response into out. Retries cover transport errors and 5xx only; 4xx responses
// are returned immediately.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, e.providerTag); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// The transport drains the body on send; a retry must carry a
		// fresh copy or POSTs would go out empty.
		attemptReq := req
		if attempt > 0 {
			var rerr error
			attemptReq, rerr = rewind(req)
			if rerr != nil {
				return fmt.Errorf("%s retry: %w", e.providerTag, rerr)
			}
		}

		start := time.Now()
		resp, err := e.http.Do(attemptReq)
		if err != nil {
			lastErr = err
			e.logger.Warn(e.providerTag+".http_failed",
				zap.String("url", req.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			sleepCtx(ctx, Backoff(attempt))
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)

		if resp.StatusCode >= 500 {
			e.logger.Warn(e.providerTag+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", req.URL.String()),
				zap.Duration("latency", elapsed))
			lastErr = fmt.Errorf("%s server error: %d", e.providerTag, resp.StatusCode)
			sleepCtx(ctx, Backoff(attempt))
			continue
		}

		if resp.StatusCode >= 400 {
			if e.errorHandler != nil {
				return e.errorHandler(resp.StatusCode, body)
			}
			return fmt.Errorf("%s returned %d", e.providerTag, resp.StatusCode)
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				e.logger.Warn(e.providerTag+".decode_failed",
					zap.Error(err),
					zap.String("url", req.URL.String()))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.logger.Debug(e.providerTag+".http_success",
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))

		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.providerTag, e.retryMax+1, lastErr)
}

// rewind clones req with a replayed body. Requests built from an in-memory
// reader carry GetBody; anything else cannot be re-sent safely.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

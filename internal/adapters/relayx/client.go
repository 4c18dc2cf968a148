package relayx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/httpclient"
	"github.com/etherlinkx/bridge-engine/internal/rate"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Client wraps low-level HTTP communication with the RelayX quote API.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
	apiKey  string
}

// NewClient constructs a new RelayX HTTP client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, baseURL, apiKey string, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, 1, "relayx", func(status int, body []byte) error {
		var errResp ErrorResponse
		_ = json.Unmarshal(body, &errResp)

		if errResp.Code == "UNSUPPORTED_ROUTE" || errResp.Code == "NO_ROUTES" {
			return model.NewProviderUnsupported(Name)
		}

		logger.Warn("relayx.client_error",
			zap.Int("status", status),
			zap.String("code", errResp.Code),
			zap.String("message", errResp.Message))

		msg := errResp.Message
		if msg == "" {
			msg = string(body)
		}
		return model.NewProviderFailure(Name, fmt.Errorf("relayx returned %d: %s", status, msg))
	})
	return &Client{
		logger:  logger,
		exec:    exec,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// CreateQuote requests a quote from RelayX.
// POST /v1/quote
func (c *Client) CreateQuote(ctx context.Context, req *QuoteRequest) (*QuoteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/quote", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	var resp QuoteResponse
	if err := c.exec.DoJSON(ctx, httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

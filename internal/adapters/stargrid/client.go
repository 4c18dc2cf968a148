package stargrid

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

// Client wraps low-level HTTP communication with the StarGrid API.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
	apiKey  string
}

// NewClient constructs a new StarGrid HTTP client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, baseURL, apiKey string, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, 1, "stargrid", func(status int, body []byte) error {
		var errResp ErrorResponse
		_ = json.Unmarshal(body, &errResp)

		// StarGrid signals an unserved pair with code 1404.
		if errResp.Code == 1404 {
			return model.NewProviderUnsupported(Name)
		}

		msg := errResp.Message
		if msg == "" {
			msg = string(body)
		}
		return model.NewProviderFailure(Name, fmt.Errorf("stargrid returned %d: %s", status, msg))
	})
	return &Client{logger: logger, exec: exec, baseURL: baseURL, apiKey: apiKey}
}

// FindRoutes requests routes from StarGrid.
// POST /api/v1/routes
func (c *Client) FindRoutes(ctx context.Context, req *RouteRequest) (*RouteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/routes", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var resp RouteResponse
	if err := c.exec.DoJSON(ctx, httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

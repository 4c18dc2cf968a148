package hopline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/httpclient"
	"github.com/etherlinkx/bridge-engine/internal/rate"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Client wraps low-level HTTP communication with the Hopline API.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

// NewClient constructs a new Hopline HTTP client instance.
func NewClient(logger *zap.Logger, rateMgr *rate.Manager, baseURL string, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, 1, "hopline", func(status int, body []byte) error {
		var errResp ErrorResponse
		_ = json.Unmarshal(body, &errResp)

		if status == http.StatusUnprocessableEntity || strings.Contains(errResp.Error, "not supported") {
			return model.NewProviderUnsupported(Name)
		}

		msg := errResp.Error
		if msg == "" {
			msg = string(body)
		}
		return model.NewProviderFailure(Name, fmt.Errorf("hopline returned %d: %s", status, msg))
	})
	return &Client{logger: logger, exec: exec, baseURL: baseURL}
}

// GetTransferQuote requests a quote from Hopline.
// GET /v1/transfer-quote
func (c *Client) GetTransferQuote(ctx context.Context, req model.RouteRequest) (*QuoteResponse, error) {
	q := url.Values{}
	q.Set("fromChainId", strconv.FormatInt(req.FromChain, 10))
	q.Set("toChainId", strconv.FormatInt(req.ToChain, 10))
	q.Set("token", req.FromToken.Address)
	q.Set("destinationToken", req.ToToken.Address)
	q.Set("amount", req.Amount.String())
	q.Set("slippage", strconv.FormatInt(req.SlippageBps, 10))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/transfer-quote?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	var resp QuoteResponse
	if err := c.exec.DoJSON(ctx, httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

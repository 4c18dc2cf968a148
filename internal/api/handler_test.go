package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// --- Mock Engine ---

type mockEngine struct {
	getBestRouteFn     func(ctx context.Context, req model.RouteRequest) ([]model.Quote, error)
	acceptQuoteFn      func(ctx context.Context, quoteID, account string) (*model.Transaction, error)
	getTransactionFn   func(ctx context.Context, id string) (*model.Transaction, error)
	listTransactionsFn func(ctx context.Context, account string, page, pageSize int) ([]model.Transaction, bool, error)
	cancelFn           func(ctx context.Context, id string) (*model.Transaction, error)
	retryFn            func(ctx context.Context, id string) (*model.Transaction, error)
	subscribeFn        func(ctx context.Context, id string) (<-chan model.Transaction, func(), error)
	healthFn           func(ctx context.Context) error
}

func (m *mockEngine) GetBestRoute(ctx context.Context, req model.RouteRequest) ([]model.Quote, error) {
	if m.getBestRouteFn != nil {
		return m.getBestRouteFn(ctx, req)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEngine) AcceptQuote(ctx context.Context, quoteID, account string) (*model.Transaction, error) {
	if m.acceptQuoteFn != nil {
		return m.acceptQuoteFn(ctx, quoteID, account)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEngine) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if m.getTransactionFn != nil {
		return m.getTransactionFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEngine) ListTransactions(ctx context.Context, account string, page, pageSize int) ([]model.Transaction, bool, error) {
	if m.listTransactionsFn != nil {
		return m.listTransactionsFn(ctx, account, page, pageSize)
	}
	return nil, false, fmt.Errorf("not implemented")
}

func (m *mockEngine) CancelTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEngine) RetryTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if m.retryFn != nil {
		return m.retryFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockEngine) SubscribeTransaction(ctx context.Context, id string) (<-chan model.Transaction, func(), error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, id)
	}
	return nil, nil, fmt.Errorf("not implemented")
}

func (m *mockEngine) HealthCheck(ctx context.Context) error {
	if m.healthFn != nil {
		return m.healthFn(ctx)
	}
	return nil
}

// --- Test Helpers ---

func newTestApp(eng BridgeEngine) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app, &Handler{Logger: zap.NewNop(), Engine: eng})
	return app
}

func sampleQuote(id string, amountOut int64) model.Quote {
	return model.Quote{
		ID:        id,
		Provider:  "relayx",
		AmountOut: decimal.NewFromInt(amountOut),
		CreatedAt: time.Now().UTC(),
		TTL:       30 * time.Second,
	}
}

func routeBody() string {
	return `{
		"from_chain": 10,
		"to_chain": 42161,
		"from_token": {"chain_id": 10, "address": "0xToken", "decimals": 6},
		"to_token": {"chain_id": 42161, "address": "0xToken2", "decimals": 6},
		"amount": "1000000",
		"slippage_bps": 50
	}`
}

// --- GetRoutes ---

func TestGetRoutes_Success(t *testing.T) {
	eng := &mockEngine{
		getBestRouteFn: func(ctx context.Context, req model.RouteRequest) ([]model.Quote, error) {
			assert.Equal(t, int64(10), req.FromChain)
			assert.Equal(t, int64(42161), req.ToChain)
			return []model.Quote{sampleQuote("q-1", 997_000), sampleQuote("q-2", 995_000)}, nil
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader(routeBody()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result RoutesResponse
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Equal(t, "q-1", result.Best.ID)
	require.Len(t, result.Alternatives, 1)
	assert.Equal(t, "q-2", result.Alternatives[0].ID)
}

func TestGetRoutes_NoRoute(t *testing.T) {
	eng := &mockEngine{
		getBestRouteFn: func(ctx context.Context, req model.RouteRequest) ([]model.Quote, error) {
			return nil, model.ErrNoRouteFound
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader(routeBody()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetRoutes_ValidationError(t *testing.T) {
	eng := &mockEngine{
		getBestRouteFn: func(ctx context.Context, req model.RouteRequest) ([]model.Quote, error) {
			return nil, &model.ValidationError{Field: "to_chain", Reason: "must differ from from_chain"}
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader(routeBody()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetRoutes_ProviderError(t *testing.T) {
	eng := &mockEngine{
		getBestRouteFn: func(ctx context.Context, req model.RouteRequest) ([]model.Quote, error) {
			return nil, model.NewProviderFailure("relayx", fmt.Errorf("upstream down"))
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader(routeBody()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

// --- AcceptQuote ---

func TestAcceptQuote_Success(t *testing.T) {
	eng := &mockEngine{
		acceptQuoteFn: func(ctx context.Context, quoteID, account string) (*model.Transaction, error) {
			assert.Equal(t, "q-1", quoteID)
			assert.Equal(t, "0xAccount", account)
			return &model.Transaction{ID: "tx-1", Status: model.StatusCreated, Account: account}, nil
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/quotes/q-1/accept", strings.NewReader(`{"account":"0xAccount"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var tx model.Transaction
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &tx))
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, model.StatusCreated, tx.Status)
}

func TestAcceptQuote_Expired(t *testing.T) {
	eng := &mockEngine{
		acceptQuoteFn: func(ctx context.Context, quoteID, account string) (*model.Transaction, error) {
			return nil, model.ErrQuoteExpired
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/quotes/q-1/accept", strings.NewReader(`{"account":"0xAccount"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)
}

func TestAcceptQuote_InsufficientBalance(t *testing.T) {
	eng := &mockEngine{
		acceptQuoteFn: func(ctx context.Context, quoteID, account string) (*model.Transaction, error) {
			return nil, model.ErrInsufficientBalance
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/quotes/q-1/accept", strings.NewReader(`{"account":"0xAccount"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

// --- Transactions ---

func TestGetTransaction_NotFound(t *testing.T) {
	eng := &mockEngine{
		getTransactionFn: func(ctx context.Context, id string) (*model.Transaction, error) {
			return nil, model.ErrTransactionNotFound
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/transactions/tx-missing", nil)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestListTransactions_Paging(t *testing.T) {
	eng := &mockEngine{
		listTransactionsFn: func(ctx context.Context, account string, page, pageSize int) ([]model.Transaction, bool, error) {
			assert.Equal(t, "0xAccount", account)
			assert.Equal(t, 2, page)
			assert.Equal(t, 5, pageSize)
			return []model.Transaction{{ID: "tx-6"}}, true, nil
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/transactions?account=0xAccount&page=2&page_size=5", nil)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result TransactionsResponse
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &result))
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 5, result.PageSize)
	assert.True(t, result.HasMore)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "tx-6", result.Transactions[0].ID)
}

func TestCancelTransaction_Conflict(t *testing.T) {
	eng := &mockEngine{
		cancelFn: func(ctx context.Context, id string) (*model.Transaction, error) {
			return nil, model.ErrNotCancellable
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/transactions/tx-1/cancel", nil)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestCancelTransaction_Success(t *testing.T) {
	eng := &mockEngine{
		cancelFn: func(ctx context.Context, id string) (*model.Transaction, error) {
			return &model.Transaction{ID: id, Status: model.StatusFailed, FailureReason: model.ReasonCancelled}, nil
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/transactions/tx-1/cancel", nil)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var tx model.Transaction
	respBody, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(respBody, &tx))
	assert.Equal(t, model.StatusFailed, tx.Status)
	assert.Equal(t, model.ReasonCancelled, tx.FailureReason)
}

func TestRetryTransaction_Success(t *testing.T) {
	eng := &mockEngine{
		retryFn: func(ctx context.Context, id string) (*model.Transaction, error) {
			return &model.Transaction{ID: id, Status: model.StatusCreated, RetryCount: 1}, nil
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/transactions/tx-1/retry", nil)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

// --- Stream ---

func TestStreamTransaction(t *testing.T) {
	eng := &mockEngine{
		subscribeFn: func(ctx context.Context, id string) (<-chan model.Transaction, func(), error) {
			ch := make(chan model.Transaction, 2)
			ch <- model.Transaction{ID: id, Status: model.StatusExecuting}
			ch <- model.Transaction{ID: id, Status: model.StatusCompleted}
			close(ch)
			return ch, func() {}, nil
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/transactions/tx-1/stream", nil)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, _ := io.ReadAll(resp.Body)
	events := strings.Split(strings.TrimSpace(string(body)), "\n\n")
	require.Len(t, events, 2)

	var last model.Transaction
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[1], "data: ")), &last))
	assert.Equal(t, model.StatusCompleted, last.Status)
}

// --- Health ---

func TestHealth_OK(t *testing.T) {
	app := newTestApp(&mockEngine{})

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHealth_Unavailable(t *testing.T) {
	eng := &mockEngine{
		healthFn: func(ctx context.Context) error {
			return fmt.Errorf("redis unreachable")
		},
	}

	app := newTestApp(eng)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

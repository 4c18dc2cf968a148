package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// BridgeEngine is the routing and lifecycle surface the HTTP layer exposes.
type BridgeEngine interface {
	GetBestRoute(ctx context.Context, req model.RouteRequest) ([]model.Quote, error)
	AcceptQuote(ctx context.Context, quoteID, account string) (*model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, account string, page, pageSize int) ([]model.Transaction, bool, error)
	CancelTransaction(ctx context.Context, id string) (*model.Transaction, error)
	RetryTransaction(ctx context.Context, id string) (*model.Transaction, error)
	SubscribeTransaction(ctx context.Context, id string) (<-chan model.Transaction, func(), error)
	HealthCheck(ctx context.Context) error
}

type Handler struct {
	Logger *zap.Logger
	Engine BridgeEngine
}

// GetRoutes godoc
func (h *Handler) GetRoutes(c *fiber.Ctx) error {
	var req model.RouteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	quotes, err := h.Engine.GetBestRoute(c.Context(), req)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(RoutesResponse{
		Best:         quotes[0],
		Alternatives: quotes[1:],
	})
}

// AcceptQuote godoc
func (h *Handler) AcceptQuote(c *fiber.Ctx) error {
	quoteID := c.Params("quote_id")
	if quoteID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "missing quote_id"})
	}

	var req AcceptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	tx, err := h.Engine.AcceptQuote(c.Context(), quoteID, req.Account)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(tx)
}

// GetTransaction godoc
func (h *Handler) GetTransaction(c *fiber.Ctx) error {
	tx, err := h.Engine.GetTransaction(c.Context(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(tx)
}

// ListTransactions godoc
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	account := c.Query("account")
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)

	txs, hasMore, err := h.Engine.ListTransactions(c.Context(), account, page, pageSize)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(TransactionsResponse{
		Transactions: txs,
		Page:         page,
		PageSize:     pageSize,
		HasMore:      hasMore,
	})
}

// CancelTransaction godoc
func (h *Handler) CancelTransaction(c *fiber.Ctx) error {
	tx, err := h.Engine.CancelTransaction(c.Context(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(tx)
}

// RetryTransaction godoc
func (h *Handler) RetryTransaction(c *fiber.Ctx) error {
	tx, err := h.Engine.RetryTransaction(c.Context(), c.Params("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(tx)
}

// StreamTransaction streams transaction snapshots as server-sent events,
// ending after the terminal snapshot.
func (h *Handler) StreamTransaction(c *fiber.Ctx) error {
	id := c.Params("id")
	ch, release, err := h.Engine.SubscribeTransaction(c.Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer release()
		for tx := range ch {
			data, err := json.Marshal(tx)
			if err != nil {
				h.Logger.Error("api.stream_marshal_failed", zap.String("tx_id", id), zap.Error(err))
				return
			}
			if _, err := w.WriteString("data: " + string(data) + "\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

// Health godoc
func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.Engine.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusOK).SendString("ok")
}

func (h *Handler) writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case model.IsValidation(err):
		status = fiber.StatusBadRequest
	case errors.Is(err, model.ErrNoRouteFound),
		errors.Is(err, model.ErrQuoteNotFound),
		errors.Is(err, model.ErrTransactionNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, model.ErrQuoteExpired):
		status = fiber.StatusGone
	case errors.Is(err, model.ErrInsufficientBalance):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotCancellable):
		status = fiber.StatusConflict
	default:
		var provErr *model.ProviderError
		if errors.As(err, &provErr) {
			status = fiber.StatusBadGateway
		}
	}

	if status == fiber.StatusInternalServerError {
		h.Logger.Error("api.request_failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

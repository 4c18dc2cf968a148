package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/aggregator"
	"github.com/etherlinkx/bridge-engine/internal/chainclient"
	"github.com/etherlinkx/bridge-engine/internal/lifecycle"
	"github.com/etherlinkx/bridge-engine/internal/store"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// QuotePublisher receives quote-selected events. Optional.
type QuotePublisher interface {
	PublishQuoteSelected(ctx context.Context, quote model.Quote, account string) error
}

// Engine is the facade over route aggregation and transaction lifecycle. API
// handlers and the command consumer talk to it, never to the parts directly.
type Engine struct {
	logger     *zap.Logger
	aggregator *aggregator.Aggregator
	store      store.Store
	tracker    *lifecycle.Tracker
	reader     chainclient.Reader
	publisher  QuotePublisher
}

func New(logger *zap.Logger, agg *aggregator.Aggregator, st store.Store, tracker *lifecycle.Tracker, reader chainclient.Reader, pub QuotePublisher) *Engine {
	return &Engine{
		logger:     logger,
		aggregator: agg,
		store:      st,
		tracker:    tracker,
		reader:     reader,
		publisher:  pub,
	}
}

// GetBestRoute returns ranked quotes for the request, best first. Returned
// quotes are registered in the store and can be accepted by id until they
// expire.
func (e *Engine) GetBestRoute(ctx context.Context, req model.RouteRequest) ([]model.Quote, error) {
	quotes, err := e.aggregator.GetBestRoute(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.store.PutQuotes(ctx, quotes); err != nil {
		e.logger.Warn("engine.store_quotes_failed", zap.Error(err))
	}
	return quotes, nil
}

// AcceptQuote turns a previously returned quote into a tracked transaction.
// The quote must still be valid and the account must hold enough of the
// source token; otherwise no transaction is created.
func (e *Engine) AcceptQuote(ctx context.Context, quoteID, account string) (*model.Transaction, error) {
	if account == "" {
		return nil, &model.ValidationError{Field: "account", Reason: "must not be empty"}
	}

	quote, err := e.store.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Expired(time.Now().UTC()) {
		return nil, model.ErrQuoteExpired
	}

	balance, err := e.reader.GetBalance(ctx, quote.Request.FromChain, quote.Request.FromToken.Address, account)
	if err != nil {
		return nil, fmt.Errorf("balance check failed: %w", err)
	}
	if balance.LessThan(quote.Request.Amount) {
		return nil, model.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	tx := model.Transaction{
		ID:          model.NewUUID().String(),
		Account:     account,
		Recipient:   quote.Request.Recipient,
		Request:     quote.Request,
		Quote:       *quote,
		Status:      model.StatusCreated,
		StepResults: make([]model.StepResult, len(quote.Steps)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if tx.Recipient == "" {
		tx.Recipient = account
	}

	if err := e.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	e.logger.Info("engine.quote_accepted",
		zap.String("tx_id", tx.ID),
		zap.String("quote_id", quoteID),
		zap.String("provider", quote.Provider),
		zap.String("account", account))

	if e.publisher != nil {
		if err := e.publisher.PublishQuoteSelected(ctx, *quote, account); err != nil {
			e.logger.Warn("engine.publish_quote_selected_failed", zap.Error(err))
		}
	}

	e.tracker.Track(context.WithoutCancel(ctx), tx.ID)
	return &tx, nil
}

func (e *Engine) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return e.store.GetTransaction(ctx, id)
}

func (e *Engine) ListTransactions(ctx context.Context, account string, page, pageSize int) ([]model.Transaction, bool, error) {
	return e.store.ListTransactions(ctx, account, page, pageSize)
}

func (e *Engine) CancelTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return e.tracker.Cancel(ctx, id)
}

func (e *Engine) RetryTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return e.tracker.Retry(context.WithoutCancel(ctx), id)
}

// SubscribeTransaction streams transaction snapshots, starting with the
// current state and closing after the terminal one.
func (e *Engine) SubscribeTransaction(ctx context.Context, id string) (<-chan model.Transaction, func(), error) {
	return e.tracker.Subscribe(ctx, id)
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.store.HealthCheck(ctx)
}

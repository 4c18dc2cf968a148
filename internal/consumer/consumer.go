package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// AcceptCommand asks the engine to accept a quote on behalf of an account.
type AcceptCommand struct {
	QuoteID string `json:"quote_id"`
	Account string `json:"account"`
}

// CancelCommand asks the engine to cancel a tracked transaction.
type CancelCommand struct {
	TransactionID string `json:"transaction_id"`
}

// BridgeService is the slice of the engine the consumer drives.
type BridgeService interface {
	AcceptQuote(ctx context.Context, quoteID, account string) (*model.Transaction, error)
	CancelTransaction(ctx context.Context, id string) (*model.Transaction, error)
}

// Consumer consumes accept and cancel commands from RabbitMQ.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	service BridgeService
	queue   string
	logger  *zap.Logger
	done    chan struct{}
}

// NewConsumer connects to RabbitMQ. queue is the base queue name; accept and
// cancel commands arrive on <queue>.accept and <queue>.cancel.
func NewConsumer(url, queue string, service BridgeService, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		service: service,
		queue:   queue,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start declares the queues and starts the consumer goroutines.
func (c *Consumer) Start(ctx context.Context) error {
	acceptQueue := c.queue + ".accept"
	cancelQueue := c.queue + ".cancel"

	if _, err := c.channel.QueueDeclare(acceptQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", acceptQueue, err)
	}

	if _, err := c.channel.QueueDeclare(cancelQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", cancelQueue, err)
	}

	acceptMsgs, err := c.channel.Consume(acceptQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", acceptQueue, err)
	}

	cancelMsgs, err := c.channel.Consume(cancelQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", cancelQueue, err)
	}

	c.logger.Info("consumer.started",
		zap.String("accept_queue", acceptQueue),
		zap.String("cancel_queue", cancelQueue),
	)

	go c.consumeAccepts(ctx, acceptMsgs)
	go c.consumeCancels(ctx, cancelMsgs)

	return nil
}

func (c *Consumer) consumeAccepts(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("consumer.accept_channel_closed")
				return
			}

			var cmd AcceptCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("consumer.unmarshal_accept_failed", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			tx, err := c.service.AcceptQuote(ctx, cmd.QuoteID, cmd.Account)
			if err != nil {
				c.logger.Error("consumer.accept_failed",
					zap.String("quote_id", cmd.QuoteID),
					zap.Error(err))
				msg.Nack(false, requeueable(err))
				continue
			}

			c.logger.Info("consumer.accepted",
				zap.String("quote_id", cmd.QuoteID),
				zap.String("tx_id", tx.ID))
			msg.Ack(false)
		}
	}
}

func (c *Consumer) consumeCancels(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("consumer.cancel_channel_closed")
				return
			}

			var cmd CancelCommand
			if err := json.Unmarshal(msg.Body, &cmd); err != nil {
				c.logger.Error("consumer.unmarshal_cancel_failed", zap.Error(err))
				msg.Nack(false, false)
				continue
			}

			if _, err := c.service.CancelTransaction(ctx, cmd.TransactionID); err != nil {
				c.logger.Error("consumer.cancel_failed",
					zap.String("tx_id", cmd.TransactionID),
					zap.Error(err))
				msg.Nack(false, requeueable(err))
				continue
			}

			msg.Ack(false)
		}
	}
}

// requeueable reports whether a failed command is worth redelivering. Domain
// rejections will fail the same way every time.
func requeueable(err error) bool {
	if model.IsValidation(err) {
		return false
	}
	switch {
	case errors.Is(err, model.ErrQuoteNotFound),
		errors.Is(err, model.ErrQuoteExpired),
		errors.Is(err, model.ErrTransactionNotFound),
		errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrNotCancellable):
		return false
	}
	return true
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	close(c.done)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/lifecycle"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

const (
	statusDelivered = "delivered"
	statusRefunded  = "refunded"
)

// updateMessage is a transfer status push from the provider feed.
type updateMessage struct {
	Type       string `json:"type"`
	TxHash     string `json:"tx_hash"`
	Status     string `json:"status"`
	DestTxHash string `json:"dest_tx_hash,omitempty"`
}

type subscribeMessage struct {
	Op     string `json:"op"`
	TxHash string `json:"tx_hash"`
}

// Client is a WebSocket client for the transfer status feed. It implements
// lifecycle.DeliveryWatcher: one shared connection fans received updates out
// to per-transfer waiters keyed by source tx hash.
type Client struct {
	url            string
	conn           *websocket.Conn
	logger         *zap.Logger
	writeMu        sync.Mutex
	connected      bool
	connectedMu    sync.RWMutex
	done           chan struct{}
	reconnectDelay time.Duration

	waitersMu sync.Mutex
	waiters   map[string]chan lifecycle.DeliveryResult
}

func NewClient(url string, logger *zap.Logger) *Client {
	return &Client{
		url:            url,
		logger:         logger,
		done:           make(chan struct{}),
		reconnectDelay: 5 * time.Second,
		waiters:        make(map[string]chan lifecycle.DeliveryResult),
	}
}

// Connect establishes the WebSocket connection and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("feed.connecting", zap.String("url", c.url))

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to status feed: %w", err)
	}

	c.conn = conn
	c.setConnected(true)
	c.logger.Info("feed.connected")

	go c.readLoop()

	return nil
}

func (c *Client) Close() error {
	close(c.done)
	c.setConnected(false)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.connectedMu.RLock()
	defer c.connectedMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.connectedMu.Lock()
	defer c.connectedMu.Unlock()
	c.connected = connected
}

// WaitForDelivery blocks until the feed reports the transfer identified by
// the bridge step's source tx hash as delivered or refunded, or ctx expires.
func (c *Client) WaitForDelivery(ctx context.Context, tx model.Transaction) (lifecycle.DeliveryResult, error) {
	hash := bridgeTxHash(tx)
	if hash == "" {
		return lifecycle.DeliveryResult{}, fmt.Errorf("transaction %s has no bridge tx hash", tx.ID)
	}
	key := strings.ToLower(hash)

	ch := make(chan lifecycle.DeliveryResult, 1)
	c.waitersMu.Lock()
	c.waiters[key] = ch
	c.waitersMu.Unlock()
	defer func() {
		c.waitersMu.Lock()
		delete(c.waiters, key)
		c.waitersMu.Unlock()
	}()

	if err := c.send(subscribeMessage{Op: "subscribe", TxHash: hash}); err != nil {
		return lifecycle.DeliveryResult{}, err
	}

	select {
	case <-ctx.Done():
		return lifecycle.DeliveryResult{}, ctx.Err()
	case result := <-ch:
		return result, nil
	}
}

func bridgeTxHash(tx model.Transaction) string {
	for i, step := range tx.Quote.Steps {
		if step.Kind == model.StepApprove {
			continue
		}
		if i < len(tx.StepResults) {
			return tx.StepResults[i].TxHash
		}
		return ""
	}
	return ""
}

func (c *Client) send(payload any) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected to status feed")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer func() {
		c.setConnected(false)
		c.logger.Info("feed.read_loop_exited")
	}()

	for {
		select {
		case <-c.done:
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info("feed.closed_normally")
					return
				}
				c.logger.Error("feed.read_error", zap.Error(err))
				c.scheduleReconnect()
				return
			}

			var update updateMessage
			if err := json.Unmarshal(message, &update); err != nil {
				c.logger.Error("feed.unmarshal_failed", zap.Error(err))
				continue
			}

			c.dispatch(update)
		}
	}
}

func (c *Client) dispatch(update updateMessage) {
	if update.Status != statusDelivered && update.Status != statusRefunded {
		return
	}

	key := strings.ToLower(update.TxHash)
	c.waitersMu.Lock()
	ch, ok := c.waiters[key]
	if ok {
		delete(c.waiters, key)
	}
	c.waitersMu.Unlock()
	if !ok {
		return
	}

	outcome := lifecycle.DeliveryDelivered
	if update.Status == statusRefunded {
		outcome = lifecycle.DeliveryRefunded
	}
	ch <- lifecycle.DeliveryResult{Outcome: outcome, TxHash: update.DestTxHash}
}

func (c *Client) scheduleReconnect() {
	c.logger.Info("feed.reconnect_scheduled", zap.Duration("delay", c.reconnectDelay))

	time.AfterFunc(c.reconnectDelay, func() {
		select {
		case <-c.done:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.Connect(ctx); err != nil {
			c.logger.Error("feed.reconnect_failed", zap.Error(err))
			c.scheduleReconnect()
		}
	})
}

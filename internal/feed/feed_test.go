package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/lifecycle"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

var upgrader = websocket.Upgrader{}

// feedStub upgrades to websocket and hands the server conn to serve.
func feedStub(t *testing.T, serve func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		serve(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func bridgedTx(hash string) model.Transaction {
	return model.Transaction{
		ID: "tx-1",
		Quote: model.Quote{
			Steps: []model.Step{
				{Kind: model.StepApprove},
				{Kind: model.StepBridge},
			},
		},
		StepResults: []model.StepResult{
			{TxHash: "0xApproveHash"},
			{TxHash: hash},
		},
	}
}

func TestConnect(t *testing.T) {
	srv := feedStub(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // block until client closes
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.True(t, c.IsConnected())
}

func TestConnect_Failure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", zap.NewNop())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, c.IsConnected())
}

func TestWaitForDelivery_Delivered(t *testing.T) {
	srv := feedStub(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub subscribeMessage
		if json.Unmarshal(msg, &sub) != nil || sub.Op != "subscribe" {
			return
		}
		update, _ := json.Marshal(updateMessage{
			Type:       "transfer.update",
			TxHash:     strings.ToUpper(sub.TxHash), // feed may echo a different case
			Status:     "delivered",
			DestTxHash: "0xDestHash",
		})
		conn.WriteMessage(websocket.TextMessage, update)
		conn.ReadMessage()
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := c.WaitForDelivery(ctx, bridgedTx("0xbridgehash"))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DeliveryDelivered, result.Outcome)
	assert.Equal(t, "0xDestHash", result.TxHash)
}

func TestWaitForDelivery_Refunded(t *testing.T) {
	srv := feedStub(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub subscribeMessage
		_ = json.Unmarshal(msg, &sub)

		// Intermediate statuses are ignored by waiters.
		pending, _ := json.Marshal(updateMessage{TxHash: sub.TxHash, Status: "pending"})
		conn.WriteMessage(websocket.TextMessage, pending)

		refunded, _ := json.Marshal(updateMessage{TxHash: sub.TxHash, Status: "refunded"})
		conn.WriteMessage(websocket.TextMessage, refunded)
		conn.ReadMessage()
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := c.WaitForDelivery(ctx, bridgedTx("0xbridgehash"))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.DeliveryRefunded, result.Outcome)
}

func TestWaitForDelivery_ContextExpires(t *testing.T) {
	srv := feedStub(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // swallow subscribe, never answer
		conn.ReadMessage()
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.WaitForDelivery(ctx, bridgedTx("0xbridgehash"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForDelivery_NoBridgeHash(t *testing.T) {
	srv := feedStub(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	tx := bridgedTx("")
	_, err := c.WaitForDelivery(context.Background(), tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bridge tx hash")
}

func TestWaitForDelivery_NotConnected(t *testing.T) {
	c := NewClient("ws://unused", zap.NewNop())

	_, err := c.WaitForDelivery(context.Background(), bridgedTx("0xbridgehash"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestBridgeTxHash(t *testing.T) {
	// First non-approve step carries the bridge source hash.
	assert.Equal(t, "0xBridgeHash", bridgeTxHash(bridgedTx("0xBridgeHash")))

	// No steps at all.
	assert.Equal(t, "", bridgeTxHash(model.Transaction{}))

	// Bridge step exists but has not been submitted yet.
	tx := model.Transaction{
		Quote:       model.Quote{Steps: []model.Step{{Kind: model.StepBridge}}},
		StepResults: []model.StepResult{{}},
	}
	assert.Equal(t, "", bridgeTxHash(tx))
}

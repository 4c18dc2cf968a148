package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/httpclient"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

const (
	selectorBalanceOf = "0x70a08231"
	selectorAllowance = "0xdd62ed3e"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcReceipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

// RPCReader implements Reader over EVM JSON-RPC endpoints, one per chain.
type RPCReader struct {
	logger       *zap.Logger
	endpoints    map[int64]string
	exec         *httpclient.Executor
	pollInterval time.Duration
}

func NewRPCReader(logger *zap.Logger, endpoints map[int64]string, pollInterval time.Duration) *RPCReader {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &RPCReader{
		logger:       logger,
		endpoints:    endpoints,
		exec:         httpclient.New(logger, nil, &http.Client{Timeout: 10 * time.Second}, 0, "rpc", nil),
		pollInterval: pollInterval,
	}
}

func (r *RPCReader) call(ctx context.Context, chainID int64, method string, params []any, result any) error {
	endpoint, ok := r.endpoints[chainID]
	if !ok {
		return fmt.Errorf("no RPC endpoint configured for chain %d", chainID)
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp rpcResponse
	if err := r.exec.DoJSON(ctx, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("rpc %s on chain %d: %s (code %d)", method, chainID, resp.Error.Message, resp.Error.Code)
	}
	if result != nil {
		return json.Unmarshal(resp.Result, result)
	}
	return nil
}

// GetBalance returns owner's balance of token in smallest units.
func (r *RPCReader) GetBalance(ctx context.Context, chainID int64, token, owner string) (decimal.Decimal, error) {
	if strings.EqualFold(token, model.NativeTokenAddress) {
		var hexBalance string
		if err := r.call(ctx, chainID, "eth_getBalance", []any{owner, "latest"}, &hexBalance); err != nil {
			return decimal.Zero, err
		}
		return parseHexAmount(hexBalance)
	}

	data := selectorBalanceOf + pad32(owner)
	var hexBalance string
	err := r.call(ctx, chainID, "eth_call", []any{
		map[string]string{"to": token, "data": data}, "latest",
	}, &hexBalance)
	if err != nil {
		return decimal.Zero, err
	}
	return parseHexAmount(hexBalance)
}

// GetAllowance returns the ERC-20 allowance granted by owner to spender.
func (r *RPCReader) GetAllowance(ctx context.Context, chainID int64, token, owner, spender string) (decimal.Decimal, error) {
	data := selectorAllowance + pad32(owner) + pad32(spender)
	var hexAllowance string
	err := r.call(ctx, chainID, "eth_call", []any{
		map[string]string{"to": token, "data": data}, "latest",
	}, &hexAllowance)
	if err != nil {
		return decimal.Zero, err
	}
	return parseHexAmount(hexAllowance)
}

// WaitForReceipt polls for the transaction receipt until mined or ctx expires.
func (r *RPCReader) WaitForReceipt(ctx context.Context, chainID int64, txHash string) (Receipt, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		var receipt *rpcReceipt
		if err := r.call(ctx, chainID, "eth_getTransactionReceipt", []any{txHash}, &receipt); err != nil {
			r.logger.Warn("rpc.receipt_poll_failed",
				zap.Int64("chain", chainID),
				zap.String("tx_hash", txHash),
				zap.Error(err))
		} else if receipt != nil && receipt.BlockNumber != "" {
			status := ReceiptReverted
			if receipt.Status == "0x1" {
				status = ReceiptSuccess
			}
			block, err := parseHexAmount(receipt.BlockNumber)
			if err != nil {
				return Receipt{}, err
			}
			return Receipt{
				TxHash:      txHash,
				Status:      status,
				BlockNumber: uint64(block.IntPart()),
			}, nil
		}

		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// pad32 left-pads a hex address to a 32-byte ABI word.
func pad32(addr string) string {
	trimmed := strings.TrimPrefix(strings.ToLower(addr), "0x")
	return strings.Repeat("0", 64-len(trimmed)) + trimmed
}

func parseHexAmount(hexValue string) (decimal.Decimal, error) {
	trimmed := strings.TrimPrefix(hexValue, "0x")
	if trimmed == "" {
		return decimal.Zero, nil
	}
	n, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid hex amount %q", hexValue)
	}
	return decimal.NewFromBigInt(n, 0), nil
}

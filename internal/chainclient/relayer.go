package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/httpclient"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

type relayerSubmitRequest struct {
	ChainID   int64           `json:"chain_id"`
	Kind      model.StepKind  `json:"kind"`
	Account   string          `json:"account"`
	Recipient string          `json:"recipient"`
	Token     string          `json:"token"`
	ToChainID int64           `json:"to_chain_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type relayerSubmitResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

// RelayerClient implements Wallet against the remote signing service that
// holds the account keys. The engine never touches key material.
type RelayerClient struct {
	logger  *zap.Logger
	baseURL string
	apiKey  string
	exec    *httpclient.Executor
}

func NewRelayerClient(logger *zap.Logger, baseURL, apiKey string) *RelayerClient {
	return &RelayerClient{
		logger:  logger,
		baseURL: baseURL,
		apiKey:  apiKey,
		exec:    httpclient.New(logger, nil, &http.Client{Timeout: 30 * time.Second}, 0, "relayer", nil),
	}
}

// SignAndSend submits the step to the relayer, which signs and broadcasts it,
// and returns the source-chain tx hash.
func (c *RelayerClient) SignAndSend(ctx context.Context, txReq TxRequest) (string, error) {
	payload, err := json.Marshal(relayerSubmitRequest{
		ChainID:   txReq.ChainID,
		Kind:      txReq.Step.Kind,
		Account:   txReq.Account,
		Recipient: txReq.Recipient,
		Token:     txReq.Step.FromToken.Address,
		ToChainID: txReq.Step.ToChain,
		Amount:    txReq.Amount,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	var resp relayerSubmitResponse
	if err := c.exec.DoJSON(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("relayer rejected %s step: %s", txReq.Step.Kind, resp.Error)
	}
	if resp.TxHash == "" {
		return "", fmt.Errorf("relayer returned no tx hash for %s step", txReq.Step.Kind)
	}

	c.logger.Info("relayer.submitted",
		zap.String("kind", string(txReq.Step.Kind)),
		zap.Int64("chain", txReq.ChainID),
		zap.String("tx_hash", resp.TxHash))
	return resp.TxHash, nil
}

package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/chainclient"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// DeliveryOutcome is the terminal result of destination-side execution.
type DeliveryOutcome string

const (
	DeliveryDelivered DeliveryOutcome = "delivered"
	DeliveryRefunded  DeliveryOutcome = "refunded"
)

// DeliveryResult reports how a transfer completed on the destination chain.
type DeliveryResult struct {
	Outcome DeliveryOutcome
	TxHash  string
}

// DeliveryWatcher observes the destination chain (or a provider status feed)
// and blocks until the transfer lands, is refunded, or ctx expires.
type DeliveryWatcher interface {
	WaitForDelivery(ctx context.Context, tx model.Transaction) (DeliveryResult, error)
}

// BalanceWatcher is the fallback watcher used when no provider status feed is
// configured. It polls the recipient's destination-chain balance and treats an
// increase of at least MinAmountOut as delivery. It cannot observe refunds.
type BalanceWatcher struct {
	logger       *zap.Logger
	reader       chainclient.Reader
	pollInterval time.Duration
}

func NewBalanceWatcher(logger *zap.Logger, reader chainclient.Reader, pollInterval time.Duration) *BalanceWatcher {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &BalanceWatcher{
		logger:       logger,
		reader:       reader,
		pollInterval: pollInterval,
	}
}

func (w *BalanceWatcher) WaitForDelivery(ctx context.Context, tx model.Transaction) (DeliveryResult, error) {
	baseline, err := w.reader.GetBalance(ctx, tx.Request.ToChain, tx.Request.ToToken.Address, tx.Recipient)
	if err != nil {
		return DeliveryResult{}, err
	}
	target := baseline.Add(tx.Quote.MinAmountOut)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return DeliveryResult{}, ctx.Err()
		case <-ticker.C:
			balance, err := w.reader.GetBalance(ctx, tx.Request.ToChain, tx.Request.ToToken.Address, tx.Recipient)
			if err != nil {
				w.logger.Warn("watcher.balance_poll_failed",
					zap.String("tx_id", tx.ID),
					zap.Int64("chain", tx.Request.ToChain),
					zap.Error(err))
				continue
			}
			if balance.GreaterThanOrEqual(target) {
				return DeliveryResult{Outcome: DeliveryDelivered}, nil
			}
		}
	}
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/chainclient"
	"github.com/etherlinkx/bridge-engine/internal/metrics"
	"github.com/etherlinkx/bridge-engine/pkg/eventbus"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// errTerminal aborts a mutation because the transaction already reached a
// terminal state (for example a concurrent cancellation).
var errTerminal = errors.New("transaction is terminal")

// TxStore is the slice of the store the tracker needs. All writes go through
// MutateTransaction, which serializes mutations per transaction id.
type TxStore interface {
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	MutateTransaction(ctx context.Context, id string, fn func(*model.Transaction) error) (*model.Transaction, error)
}

type Config struct {
	// ConfirmationTimeout bounds each wait on a source-chain receipt and is
	// added as grace on top of the quote ETA for destination delivery.
	ConfirmationTimeout time.Duration
	// Spenders maps provider name to the contract address approvals are
	// granted to. A missing entry forces the approval step to run.
	Spenders map[string]string
}

type subscriber struct {
	ch chan model.Transaction
}

// Tracker drives accepted transactions through the lifecycle state machine.
// Each tracked transaction gets its own monitor goroutine; state mutations are
// serialized by the store and every transition is published on the bus.
type Tracker struct {
	logger  *zap.Logger
	store   TxStore
	wallet  chainclient.Wallet
	reader  chainclient.Reader
	watcher DeliveryWatcher
	bus     *eventbus.EventBus
	cfg     Config

	active sync.Map // tx id -> context.CancelFunc

	mu   sync.Mutex
	subs map[string][]*subscriber
}

func NewTracker(logger *zap.Logger, store TxStore, wallet chainclient.Wallet, reader chainclient.Reader, watcher DeliveryWatcher, bus *eventbus.EventBus, cfg Config) *Tracker {
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 2 * time.Minute
	}
	return &Tracker{
		logger:  logger,
		store:   store,
		wallet:  wallet,
		reader:  reader,
		watcher: watcher,
		bus:     bus,
		cfg:     cfg,
		subs:    make(map[string][]*subscriber),
	}
}

// Track starts a monitor goroutine for the transaction. Calling Track for an
// id that is already being monitored is a no-op.
func (t *Tracker) Track(ctx context.Context, txID string) {
	runCtx, cancel := context.WithCancel(ctx)
	if _, loaded := t.active.LoadOrStore(txID, cancel); loaded {
		cancel()
		return
	}
	go t.run(runCtx, txID)
}

// Cancel applies the cancellation rules. In CREATED, APPROVING or SUBMITTING
// the transaction fails with reason "cancelled". Once a bridge transaction is
// in flight the cancel is still recorded, with CancelledAfterSubmission set,
// because the on-chain transfer can no longer be stopped. Terminal
// transactions return ErrNotCancellable.
func (t *Tracker) Cancel(ctx context.Context, txID string) (*model.Transaction, error) {
	var from model.TxStatus
	tx, err := t.store.MutateTransaction(ctx, txID, func(tx *model.Transaction) error {
		if tx.Status.Terminal() {
			return model.ErrNotCancellable
		}
		from = tx.Status
		afterSubmission := from != model.StatusCreated &&
			from != model.StatusApproving &&
			from != model.StatusSubmitting

		tx.Status = model.StatusFailed
		tx.FailureReason = model.ReasonCancelled
		tx.FailureTag = model.FailureFinal
		tx.CancelledAfterSubmission = afterSubmission
		tx.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cancel, ok := t.active.Load(txID); ok {
		cancel.(context.CancelFunc)()
	}
	t.emit(*tx, from, model.StatusFailed)
	return tx, nil
}

// Retry moves a retryably-failed transaction back to CREATED and restarts its
// monitor. Final failures are not retryable.
func (t *Tracker) Retry(ctx context.Context, txID string) (*model.Transaction, error) {
	tx, err := t.store.MutateTransaction(ctx, txID, func(tx *model.Transaction) error {
		if tx.Status != model.StatusFailed {
			return fmt.Errorf("cannot retry transaction in status %s", tx.Status)
		}
		if tx.FailureTag != model.FailureRetryable {
			return fmt.Errorf("failure %q is not retryable", tx.FailureReason)
		}
		tx.Status = model.StatusCreated
		tx.RetryCount++
		tx.FailureReason = ""
		tx.FailureTag = ""
		tx.CancelledAfterSubmission = false
		tx.CurrentStep = 0
		// Keep results of confirmed steps so a confirmed approval is not
		// re-sent; drop anything that never confirmed.
		for i := range tx.StepResults {
			if !tx.StepResults[i].Completed {
				tx.StepResults[i] = model.StepResult{}
			}
		}
		tx.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.emit(*tx, model.StatusFailed, model.StatusCreated)
	t.Track(ctx, txID)
	return tx, nil
}

// Subscribe returns a channel of transaction snapshots, starting with the
// current state. The channel is closed after the terminal snapshot. The
// returned release func must be called when the caller is done.
func (t *Tracker) Subscribe(ctx context.Context, txID string) (<-chan model.Transaction, func(), error) {
	tx, err := t.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan model.Transaction, 16)
	ch <- *tx
	if tx.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	sub := &subscriber{ch: ch}
	t.mu.Lock()
	t.subs[txID] = append(t.subs[txID], sub)
	t.mu.Unlock()

	release := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		list := t.subs[txID]
		for i, s := range list {
			if s == sub {
				t.subs[txID] = append(list[:i], list[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return ch, release, nil
}

func (t *Tracker) emit(tx model.Transaction, from, to model.TxStatus) {
	metrics.IncTransition(string(to))
	t.logger.Info("lifecycle.transition",
		zap.String("tx_id", tx.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("provider", tx.Quote.Provider))

	if t.bus != nil {
		t.bus.PublishSync(TransitionEvent{
			Transaction: tx,
			From:        from,
			To:          to,
			At:          time.Now().UTC(),
		})
	}

	// Sends stay under the lock so a concurrent release cannot close a
	// channel mid-fanout. They never block: the channel is buffered and a
	// full buffer drops the snapshot.
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.subs[tx.ID]
	if tx.Status.Terminal() {
		delete(t.subs, tx.ID)
	}
	for _, s := range list {
		select {
		case s.ch <- tx:
		default:
			t.logger.Warn("lifecycle.subscriber_slow", zap.String("tx_id", tx.ID))
		}
		if tx.Status.Terminal() {
			close(s.ch)
		}
	}
}

func (t *Tracker) transition(ctx context.Context, txID string, to model.TxStatus, mutate func(*model.Transaction)) (*model.Transaction, error) {
	var from model.TxStatus
	tx, err := t.store.MutateTransaction(ctx, txID, func(tx *model.Transaction) error {
		if tx.Status.Terminal() {
			return errTerminal
		}
		if !CanTransition(tx.Status, to) {
			return fmt.Errorf("illegal transition %s -> %s", tx.Status, to)
		}
		from = tx.Status
		tx.Status = to
		tx.UpdatedAt = time.Now().UTC()
		if mutate != nil {
			mutate(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.emit(*tx, from, to)
	return tx, nil
}

func (t *Tracker) fail(ctx context.Context, txID, reason string, tag model.FailureTag) {
	// A concurrent cancellation may already have made the transaction
	// terminal; that is not an error here.
	_, err := t.transition(ctx, txID, model.StatusFailed, func(tx *model.Transaction) {
		tx.FailureReason = reason
		tx.FailureTag = tag
	})
	if err != nil && !errors.Is(err, errTerminal) {
		t.logger.Error("lifecycle.fail_transition_error",
			zap.String("tx_id", txID),
			zap.Error(err))
	}
}

func (t *Tracker) run(ctx context.Context, txID string) {
	defer func() {
		if cancel, ok := t.active.LoadAndDelete(txID); ok {
			cancel.(context.CancelFunc)()
		}
	}()

	tx, err := t.store.GetTransaction(ctx, txID)
	if err != nil {
		t.logger.Error("lifecycle.load_failed", zap.String("tx_id", txID), zap.Error(err))
		return
	}
	if tx.Status != model.StatusCreated {
		t.logger.Warn("lifecycle.unexpected_start_status",
			zap.String("tx_id", txID),
			zap.String("status", string(tx.Status)))
		return
	}
	if len(tx.Quote.Steps) == 0 {
		t.fail(ctx, txID, model.ReasonProviderError, model.FailureFinal)
		return
	}

	steps := tx.Quote.Steps
	bridgeIdx := 0
	for i, step := range steps {
		if step.Kind != model.StepApprove {
			bridgeIdx = i
			break
		}
	}

	if steps[0].Kind == model.StepApprove && !tx.StepResults[0].Completed {
		if t.needsApproval(ctx, tx) {
			if !t.runApproval(ctx, txID, steps[0]) {
				return
			}
		} else {
			// Allowance already covers the amount; the approval step is
			// satisfied without an on-chain call.
			t.markStepSkipped(ctx, txID, 0)
		}
	}

	if !t.runBridge(ctx, tx, bridgeIdx) {
		return
	}
	t.awaitDelivery(ctx, *tx)
}

// needsApproval re-checks the allowance at acceptance time. The quoted
// approval step may be stale: an approval granted between quote and accept
// lets us skip straight to submission.
func (t *Tracker) needsApproval(ctx context.Context, tx *model.Transaction) bool {
	if tx.Request.FromToken.IsNative() {
		return false
	}
	spender, ok := t.cfg.Spenders[tx.Quote.Provider]
	if !ok || spender == "" {
		return true
	}
	allowance, err := t.reader.GetAllowance(ctx, tx.Request.FromChain, tx.Request.FromToken.Address, tx.Account, spender)
	if err != nil {
		t.logger.Warn("lifecycle.allowance_check_failed",
			zap.String("tx_id", tx.ID),
			zap.Error(err))
		return true
	}
	return allowance.LessThan(tx.Request.Amount)
}

func (t *Tracker) markStepSkipped(ctx context.Context, txID string, idx int) {
	now := time.Now().UTC()
	_, err := t.store.MutateTransaction(ctx, txID, func(tx *model.Transaction) error {
		tx.StepResults[idx].Completed = true
		tx.StepResults[idx].ConfirmedAt = now
		tx.UpdatedAt = now
		return nil
	})
	if err != nil {
		t.logger.Error("lifecycle.mark_step_failed", zap.String("tx_id", txID), zap.Error(err))
	}
}

func (t *Tracker) runApproval(ctx context.Context, txID string, step model.Step) bool {
	tx, err := t.transition(ctx, txID, model.StatusApproving, func(tx *model.Transaction) {
		tx.CurrentStep = 0
	})
	if err != nil {
		return false
	}

	hash, err := t.wallet.SignAndSend(ctx, chainclient.TxRequest{
		ChainID:   tx.Request.FromChain,
		Step:      step,
		Account:   tx.Account,
		Recipient: tx.Recipient,
		Amount:    tx.Request.Amount,
	})
	if err != nil {
		t.logger.Error("lifecycle.approval_send_failed", zap.String("tx_id", txID), zap.Error(err))
		t.fail(ctx, txID, model.ReasonProviderError, model.FailureRetryable)
		return false
	}

	if _, err := t.transition(ctx, txID, model.StatusAwaitingApprovalConfirmation, func(tx *model.Transaction) {
		tx.StepResults[0].TxHash = hash
	}); err != nil {
		return false
	}

	return t.confirmStep(ctx, txID, tx.Request.FromChain, hash, 0)
}

func (t *Tracker) runBridge(ctx context.Context, tx *model.Transaction, bridgeIdx int) bool {
	txID := tx.ID
	step := tx.Quote.Steps[bridgeIdx]

	cur, err := t.store.GetTransaction(ctx, txID)
	if err != nil {
		return false
	}
	switch cur.Status {
	case model.StatusCreated:
		if _, err := t.transition(ctx, txID, model.StatusSubmitting, func(tx *model.Transaction) {
			tx.CurrentStep = bridgeIdx
		}); err != nil {
			return false
		}
	case model.StatusSubmitting:
		// Entered via the approval confirmation.
		if _, err := t.store.MutateTransaction(ctx, txID, func(tx *model.Transaction) error {
			tx.CurrentStep = bridgeIdx
			return nil
		}); err != nil {
			return false
		}
	default:
		return false
	}

	hash, err := t.wallet.SignAndSend(ctx, chainclient.TxRequest{
		ChainID:   tx.Request.FromChain,
		Step:      step,
		Account:   tx.Account,
		Recipient: tx.Recipient,
		Amount:    tx.Request.Amount,
	})
	if err != nil {
		t.logger.Error("lifecycle.bridge_send_failed", zap.String("tx_id", txID), zap.Error(err))
		t.fail(ctx, txID, model.ReasonProviderError, model.FailureRetryable)
		return false
	}

	if _, err := t.transition(ctx, txID, model.StatusAwaitingConfirmation, func(tx *model.Transaction) {
		tx.StepResults[bridgeIdx].TxHash = hash
	}); err != nil {
		return false
	}

	return t.confirmStep(ctx, txID, tx.Request.FromChain, hash, bridgeIdx)
}

// confirmStep blocks on the source-chain receipt for the given step and
// records the result. Returns false if the lifecycle should stop here.
func (t *Tracker) confirmStep(ctx context.Context, txID string, chainID int64, hash string, idx int) bool {
	rctx, cancel := context.WithTimeout(ctx, t.cfg.ConfirmationTimeout)
	receipt, err := t.reader.WaitForReceipt(rctx, chainID, hash)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			t.fail(ctx, txID, model.ReasonConfirmationTimeout, model.FailureRetryable)
		} else if ctx.Err() == nil {
			t.fail(ctx, txID, model.ReasonProviderError, model.FailureRetryable)
		}
		return false
	}
	if receipt.Status == chainclient.ReceiptReverted {
		t.fail(ctx, txID, model.ReasonOnChainRevert, model.FailureFinal)
		return false
	}

	// After the approval receipt the next state is SUBMITTING; after the
	// bridge receipt it is EXECUTING.
	cur, err := t.store.GetTransaction(ctx, txID)
	if err != nil {
		return false
	}
	next := model.StatusSubmitting
	if cur.Quote.Steps[idx].Kind != model.StepApprove {
		next = model.StatusExecuting
	}

	now := time.Now().UTC()
	_, err = t.transition(ctx, txID, next, func(tx *model.Transaction) {
		tx.StepResults[idx].Completed = true
		tx.StepResults[idx].BlockNumber = receipt.BlockNumber
		tx.StepResults[idx].ConfirmedAt = now
	})
	return err == nil
}

// awaitDelivery watches for the transfer to land on the destination chain.
// The deadline is the quote's ETA plus the confirmation grace period.
func (t *Tracker) awaitDelivery(ctx context.Context, tx model.Transaction) {
	cur, err := t.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		return
	}
	if cur.Status != model.StatusExecuting {
		return
	}

	deadline := time.Duration(cur.Quote.EstimatedDuration)*time.Second + t.cfg.ConfirmationTimeout
	dctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result, err := t.watcher.WaitForDelivery(dctx, *cur)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			t.fail(ctx, tx.ID, model.ReasonConfirmationTimeout, model.FailureRetryable)
		} else if ctx.Err() == nil {
			t.fail(ctx, tx.ID, model.ReasonProviderError, model.FailureRetryable)
		}
		return
	}

	now := time.Now().UTC()
	switch result.Outcome {
	case DeliveryRefunded:
		_, err = t.transition(ctx, tx.ID, model.StatusRefunded, func(tx *model.Transaction) {
			tx.FailureReason = model.ReasonRefunded
		})
	default:
		_, err = t.transition(ctx, tx.ID, model.StatusCompleted, func(tx *model.Transaction) {
			// Destination-side steps are executed by the provider; delivery
			// confirms them all.
			for i := range tx.StepResults {
				if !tx.StepResults[i].Completed {
					tx.StepResults[i].Completed = true
					tx.StepResults[i].ConfirmedAt = now
				}
			}
			if result.TxHash != "" {
				tx.StepResults[len(tx.StepResults)-1].TxHash = result.TxHash
			}
			tx.CurrentStep = len(tx.StepResults) - 1
		})
	}
	if err != nil && !errors.Is(err, errTerminal) {
		t.logger.Error("lifecycle.delivery_transition_error",
			zap.String("tx_id", tx.ID),
			zap.Error(err))
	}
}

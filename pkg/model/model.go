package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NativeTokenAddress is the sentinel address used for a chain's native asset.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// ChainRef identifies a supported chain. Registered at startup, never mutated.
type ChainRef struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	NativeSymbol string `json:"native_symbol"`
	IsL1         bool   `json:"is_l1"`
}

// TokenRef identifies a token on a specific chain. The native asset uses
// NativeTokenAddress as its address.
type TokenRef struct {
	ChainID  int64  `json:"chain_id"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// IsNative reports whether the token is the chain's native asset.
func (t TokenRef) IsNative() bool {
	return strings.EqualFold(t.Address, NativeTokenAddress)
}

// Equal compares tokens by (chainID, address), address case-insensitive.
func (t TokenRef) Equal(other TokenRef) bool {
	return t.ChainID == other.ChainID && strings.EqualFold(t.Address, other.Address)
}

// RouteRequest is the immutable value object describing a requested route.
// Amount is an integer in the source token's smallest unit.
type RouteRequest struct {
	FromChain   int64           `json:"from_chain"`
	ToChain     int64           `json:"to_chain"`
	FromToken   TokenRef        `json:"from_token"`
	ToToken     TokenRef        `json:"to_token"`
	Amount      decimal.Decimal `json:"amount"`
	Recipient   string          `json:"recipient,omitempty"`
	SlippageBps int64           `json:"slippage_bps"`
}

// Validate rejects malformed requests before any adapter is invoked.
func (r RouteRequest) Validate() error {
	if r.Amount.Sign() <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if r.FromChain == r.ToChain {
		return &ValidationError{Field: "to_chain", Reason: "must differ from from_chain"}
	}
	if r.FromToken.Address == "" || r.ToToken.Address == "" {
		return &ValidationError{Field: "token", Reason: "missing token address"}
	}
	if r.SlippageBps < 0 || r.SlippageBps >= 10000 {
		return &ValidationError{Field: "slippage_bps", Reason: "must be in [0, 10000)"}
	}
	return nil
}

// StepKind tags one execution leg within a quote.
type StepKind string

const (
	StepApprove  StepKind = "approve"
	StepSwap     StepKind = "swap"
	StepBridge   StepKind = "bridge"
	StepDeposit  StepKind = "deposit"
	StepWithdraw StepKind = "withdraw"
)

// Step is one ordered execution leg within a Quote.
type Step struct {
	Kind              StepKind        `json:"kind"`
	FromChain         int64           `json:"from_chain"`
	ToChain           int64           `json:"to_chain"`
	FromToken         TokenRef        `json:"from_token"`
	ToToken           TokenRef        `json:"to_token"`
	AmountIn          decimal.Decimal `json:"amount_in"`
	AmountOut         decimal.Decimal `json:"amount_out"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
	FeeToken          TokenRef        `json:"fee_token"`
	EstimatedDuration int64           `json:"estimated_duration_seconds"`
}

// Quote is one provider's priced, timed offer to execute a route.
type Quote struct {
	ID                string          `json:"id"`
	Provider          string          `json:"provider"`
	Request           RouteRequest    `json:"request"`
	AmountOut         decimal.Decimal `json:"amount_out"`
	MinAmountOut      decimal.Decimal `json:"min_amount_out"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
	FeeToken          TokenRef        `json:"fee_token"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`
	EstimatedDuration int64           `json:"estimated_duration_seconds"`
	Steps             []Step          `json:"steps"`
	CreatedAt         time.Time       `json:"created_at"`
	TTL               time.Duration   `json:"ttl"`
}

// Expired reports whether the quote is past its TTL at the given instant.
func (q Quote) Expired(now time.Time) bool {
	return now.After(q.CreatedAt.Add(q.TTL))
}

// StepsDuration sums the estimated duration of all steps.
func (q Quote) StepsDuration() int64 {
	var total int64
	for _, s := range q.Steps {
		total += s.EstimatedDuration
	}
	return total
}

// MinAmountOutFor applies a slippage tolerance in basis points:
// out * (10000 - slippageBps) / 10000, truncated to an integer unit.
func MinAmountOutFor(amountOut decimal.Decimal, slippageBps int64) decimal.Decimal {
	factor := decimal.NewFromInt(10000 - slippageBps).Div(decimal.NewFromInt(10000))
	return amountOut.Mul(factor).Floor()
}

// TxStatus is the lifecycle state of a tracked transaction.
type TxStatus string

const (
	StatusCreated                      TxStatus = "CREATED"
	StatusApproving                    TxStatus = "APPROVING"
	StatusAwaitingApprovalConfirmation TxStatus = "AWAITING_APPROVAL_CONFIRMATION"
	StatusSubmitting                   TxStatus = "SUBMITTING"
	StatusAwaitingConfirmation         TxStatus = "AWAITING_CONFIRMATION"
	StatusExecuting                    TxStatus = "EXECUTING"
	StatusCompleted                    TxStatus = "COMPLETED"
	StatusFailed                       TxStatus = "FAILED"
	StatusRefunded                     TxStatus = "REFUNDED"
)

// Terminal reports whether the status has no outgoing transitions
// (other than the explicit retry action on FAILED).
func (s TxStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

// FailureTag classifies a failure for retry purposes.
type FailureTag string

const (
	FailureRetryable FailureTag = "retryable"
	FailureFinal     FailureTag = "final"
)

// StepResult records the on-chain outcome of one executed step.
type StepResult struct {
	TxHash      string    `json:"tx_hash,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`
	Completed   bool      `json:"completed"`
}

// Transaction is the lifecycle-tracked execution of an accepted quote.
// The Quote snapshot is frozen at acceptance time.
type Transaction struct {
	ID                       string       `json:"id"`
	Account                  string       `json:"account"`
	Recipient                string       `json:"recipient"`
	Request                  RouteRequest `json:"request"`
	Quote                    Quote        `json:"quote"`
	Status                   TxStatus     `json:"status"`
	CurrentStep              int          `json:"current_step"`
	StepResults              []StepResult `json:"step_results"`
	RetryCount               int          `json:"retry_count"`
	FailureReason            string       `json:"failure_reason,omitempty"`
	FailureTag               FailureTag   `json:"failure_tag,omitempty"`
	CancelledAfterSubmission bool         `json:"cancelled_after_submission,omitempty"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
}

// Snapshot returns a deep copy safe to hand to subscribers.
func (t Transaction) Snapshot() Transaction {
	cp := t
	cp.StepResults = append([]StepResult(nil), t.StepResults...)
	cp.Quote.Steps = append([]Step(nil), t.Quote.Steps...)
	return cp
}

// Envelope is the canonical event envelope for messages published to NATS.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Account       string          `json:"account,omitempty"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

func NewUUID() uuid.UUID {
	return uuid.New()
}

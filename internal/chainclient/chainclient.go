package chainclient

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Collaborator contracts consumed by the lifecycle tracker. The engine never
// holds private keys and never encodes calldata; implementations live with
// the embedding application (wallet connector, chain RPC client).

// ReceiptStatus is the outcome of a mined transaction.
type ReceiptStatus string

const (
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptReverted ReceiptStatus = "reverted"
)

// Receipt is the confirmation result for one on-chain transaction.
type Receipt struct {
	TxHash      string
	Status      ReceiptStatus
	BlockNumber uint64
}

// TxRequest describes the intent of one step's on-chain call. The wallet
// collaborator owns encoding and gas handling.
type TxRequest struct {
	ChainID   int64
	Step      model.Step
	Account   string
	Recipient string
	Amount    decimal.Decimal
}

// Wallet signs and broadcasts transactions on behalf of an account.
type Wallet interface {
	SignAndSend(ctx context.Context, tx TxRequest) (txHash string, err error)
}

// Reader exposes the read-side chain queries the tracker depends on.
type Reader interface {
	// GetAllowance returns the current ERC-20 allowance granted by owner to
	// spender, in smallest units.
	GetAllowance(ctx context.Context, chainID int64, token, owner, spender string) (decimal.Decimal, error)

	// GetBalance returns owner's balance of token in smallest units. The
	// native-asset sentinel address selects the native balance.
	GetBalance(ctx context.Context, chainID int64, token, owner string) (decimal.Decimal, error)

	// WaitForReceipt blocks until txHash is mined on chainID or ctx expires.
	WaitForReceipt(ctx context.Context, chainID int64, txHash string) (Receipt, error)
}

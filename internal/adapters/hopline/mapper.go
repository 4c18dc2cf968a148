package hopline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/etherlinkx/bridge-engine/internal/chains"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Mapper translates Hopline payloads into the canonical domain models.
// Hopline reports a single bridged transfer; the mapper expands it into the
// ordered step list the lifecycle tracker executes.
type Mapper struct {
	chains *chains.Registry
}

func NewMapper(chainReg *chains.Registry) *Mapper { return &Mapper{chains: chainReg} }

// FromQuoteResponse converts a Hopline quote response to a canonical Quote.
func (m *Mapper) FromQuoteResponse(resp *QuoteResponse, req model.RouteRequest, ttl time.Duration) (model.Quote, error) {
	amountOut, err := decimal.NewFromString(resp.EstimatedReceived)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad estimatedReceived %q: %w", resp.EstimatedReceived, err)
	}
	bonderFee, err := decimal.NewFromString(resp.BonderFee)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad bonderFee %q: %w", resp.BonderFee, err)
	}
	destFee := decimal.Zero
	if resp.DestinationTxFee != "" {
		destFee, err = decimal.NewFromString(resp.DestinationTxFee)
		if err != nil {
			return model.Quote{}, fmt.Errorf("bad destinationTxFee %q: %w", resp.DestinationTxFee, err)
		}
	}
	fee := bonderFee.Add(destFee)

	duration := resp.EstimatedSeconds
	if duration == 0 {
		if m.chains.TouchesL1(req.FromChain, req.ToChain) {
			duration = 900
		} else {
			duration = 300
		}
	}

	var steps []model.Step

	// Approval executes on the source chain before the bridge call. Native
	// asset transfers never need one.
	if resp.RequiresApproval && !req.FromToken.IsNative() {
		steps = append(steps, model.Step{
			Kind:      model.StepApprove,
			FromChain: req.FromChain,
			ToChain:   req.FromChain,
			FromToken: req.FromToken,
			ToToken:   req.FromToken,
			AmountIn:  req.Amount,
			AmountOut: req.Amount,
			FeeAmount: decimal.Zero,
			FeeToken:  req.FromToken,
			// allowance txs confirm within a block or two
			EstimatedDuration: 30,
		})
	}

	bridgeDuration := duration
	if len(steps) > 0 {
		bridgeDuration = duration - steps[0].EstimatedDuration
	}

	steps = append(steps, model.Step{
		Kind:              model.StepBridge,
		FromChain:         req.FromChain,
		ToChain:           req.ToChain,
		FromToken:         req.FromToken,
		ToToken:           req.ToToken,
		AmountIn:          req.Amount,
		AmountOut:         amountOut,
		FeeAmount:         fee,
		FeeToken:          req.FromToken,
		EstimatedDuration: bridgeDuration,
	})

	var rate decimal.Decimal
	if req.Amount.Sign() > 0 {
		rate = amountOut.Div(req.Amount)
	}

	return model.Quote{
		ID:                uuid.NewString(),
		Provider:          Name,
		Request:           req,
		AmountOut:         amountOut,
		MinAmountOut:      model.MinAmountOutFor(amountOut, req.SlippageBps),
		FeeAmount:         fee,
		FeeToken:          req.FromToken,
		ExchangeRate:      rate,
		EstimatedDuration: duration,
		Steps:             steps,
		CreatedAt:         time.Now().UTC(),
		TTL:               ttl,
	}, nil
}

package relayx

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/etherlinkx/bridge-engine/internal/chains"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Mapper translates between RelayX payloads and the canonical domain models.
type Mapper struct {
	chains *chains.Registry
}

// NewMapper constructs a Mapper instance.
func NewMapper(chainReg *chains.Registry) *Mapper { return &Mapper{chains: chainReg} }

// ToQuoteRequest converts a canonical RouteRequest to RelayX's request format.
func (m *Mapper) ToQuoteRequest(r model.RouteRequest) *QuoteRequest {
	return &QuoteRequest{
		OriginChainID:      r.FromChain,
		DestinationChainID: r.ToChain,
		OriginToken:        r.FromToken.Address,
		DestinationToken:   r.ToToken.Address,
		Amount:             r.Amount.String(),
		Recipient:          r.Recipient,
		SlippageBps:        r.SlippageBps,
	}
}

// FromQuoteResponse converts a RelayX quote response to a canonical Quote.
func (m *Mapper) FromQuoteResponse(resp *QuoteResponse, req model.RouteRequest, ttl time.Duration) (model.Quote, error) {
	amountOut, err := decimal.NewFromString(resp.AmountOut)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad amountOut %q: %w", resp.AmountOut, err)
	}
	minOut, err := decimal.NewFromString(resp.MinAmountOut)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad minAmountOut %q: %w", resp.MinAmountOut, err)
	}
	fee, err := decimal.NewFromString(resp.TotalFee.Amount)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad fee %q: %w", resp.TotalFee.Amount, err)
	}

	steps := make([]model.Step, 0, len(resp.Legs))
	for _, leg := range resp.Legs {
		step, err := m.fromLeg(leg, req)
		if err != nil {
			return model.Quote{}, err
		}
		steps = append(steps, step)
	}

	duration := resp.TimeEstimate
	if duration == 0 {
		duration = m.fallbackDuration(req.FromChain, req.ToChain)
	}
	reconcileDurations(steps, duration)

	var rate decimal.Decimal
	if req.Amount.Sign() > 0 {
		rate = amountOut.Div(req.Amount)
	}

	return model.Quote{
		ID:                uuid.NewString(),
		Provider:          Name,
		Request:           req,
		AmountOut:         amountOut,
		MinAmountOut:      minOut,
		FeeAmount:         fee,
		FeeToken:          req.FromToken,
		ExchangeRate:      rate,
		EstimatedDuration: duration,
		Steps:             steps,
		CreatedAt:         time.Now().UTC(),
		TTL:               ttl,
	}, nil
}

func (m *Mapper) fromLeg(leg LegDetail, req model.RouteRequest) (model.Step, error) {
	amountIn, err := decimal.NewFromString(leg.AmountIn)
	if err != nil {
		return model.Step{}, fmt.Errorf("bad leg amountIn %q: %w", leg.AmountIn, err)
	}
	amountOut, err := decimal.NewFromString(leg.AmountOut)
	if err != nil {
		return model.Step{}, fmt.Errorf("bad leg amountOut %q: %w", leg.AmountOut, err)
	}

	fee := decimal.Zero
	if leg.Fee.Amount != "" {
		fee, err = decimal.NewFromString(leg.Fee.Amount)
		if err != nil {
			return model.Step{}, fmt.Errorf("bad leg fee %q: %w", leg.Fee.Amount, err)
		}
	}

	toChain := leg.ToChainID
	if toChain == 0 {
		toChain = leg.ChainID
	}

	return model.Step{
		Kind:              stepKind(leg.Action),
		FromChain:         leg.ChainID,
		ToChain:           toChain,
		FromToken:         m.tokenRef(leg.ChainID, leg.TokenIn),
		ToToken:           m.tokenRef(toChain, leg.TokenOut),
		AmountIn:          amountIn,
		AmountOut:         amountOut,
		FeeAmount:         fee,
		FeeToken:          req.FromToken,
		EstimatedDuration: leg.TimeEstimate,
	}, nil
}

// reconcileDurations makes the step durations sum to the quote total. The
// provider's per-leg estimates are often missing or stale; the bridge leg
// absorbs the residual.
func reconcileDurations(steps []model.Step, total int64) {
	if len(steps) == 0 {
		return
	}
	bridgeIdx := len(steps) - 1
	for i, step := range steps {
		if step.Kind == model.StepBridge {
			bridgeIdx = i
		}
	}
	var others int64
	for i, step := range steps {
		if i != bridgeIdx {
			others += step.EstimatedDuration
		}
	}
	residual := total - others
	if residual < 0 {
		residual = 0
	}
	steps[bridgeIdx].EstimatedDuration = residual
}

// tokenRef resolves a wire address to a TokenRef. Legs only carry an
// address; the native sentinel picks up its symbol from the chain registry.
func (m *Mapper) tokenRef(chainID int64, addr string) model.TokenRef {
	ref := model.TokenRef{ChainID: chainID, Address: addr}
	if ref.IsNative() {
		return m.chains.NativeToken(chainID)
	}
	return ref
}

func stepKind(action string) model.StepKind {
	switch action {
	case "approve":
		return model.StepApprove
	case "swap":
		return model.StepSwap
	default:
		return model.StepBridge
	}
}

// fallbackDuration mirrors observed bridge latency: routes touching an L1
// settle in ~15 minutes, L2-to-L2 in ~5.
func (m *Mapper) fallbackDuration(fromChain, toChain int64) int64 {
	if m.chains.TouchesL1(fromChain, toChain) {
		return 900
	}
	return 300
}

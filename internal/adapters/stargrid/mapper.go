package stargrid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/etherlinkx/bridge-engine/internal/chains"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Mapper translates StarGrid payloads into the canonical domain models.
type Mapper struct {
	chains *chains.Registry
}

func NewMapper(chainReg *chains.Registry) *Mapper { return &Mapper{chains: chainReg} }

// ToRouteRequest converts a canonical RouteRequest to StarGrid's format.
func (m *Mapper) ToRouteRequest(r model.RouteRequest) *RouteRequest {
	return &RouteRequest{
		SrcChainID:  r.FromChain,
		DstChainID:  r.ToChain,
		SrcToken:    r.FromToken.Address,
		DstToken:    r.ToToken.Address,
		AmountIn:    r.Amount.String(),
		SlippageBps: r.SlippageBps,
	}
}

// FromRoute converts the best StarGrid route to a canonical Quote.
func (m *Mapper) FromRoute(route Route, req model.RouteRequest, ttl time.Duration) (model.Quote, error) {
	amountOut, err := decimal.NewFromString(route.AmountOut)
	if err != nil {
		return model.Quote{}, fmt.Errorf("bad amountOut %q: %w", route.AmountOut, err)
	}

	// Fee in bps on amountIn: amount * feeBps / 10000.
	fee := req.Amount.Mul(decimal.NewFromInt(route.FeeBps)).Div(decimal.NewFromInt(10000)).Floor()

	duration := route.EtaSeconds
	if duration == 0 {
		if m.chains.TouchesL1(req.FromChain, req.ToChain) {
			duration = 900
		} else {
			duration = 300
		}
	}

	var steps []model.Step
	remaining := duration

	if route.NeedsApproval && !req.FromToken.IsNative() {
		steps = append(steps, model.Step{
			Kind:              model.StepApprove,
			FromChain:         req.FromChain,
			ToChain:           req.FromChain,
			FromToken:         req.FromToken,
			ToToken:           req.FromToken,
			AmountIn:          req.Amount,
			AmountOut:         req.Amount,
			FeeAmount:         decimal.Zero,
			FeeToken:          req.FromToken,
			EstimatedDuration: 30,
		})
		remaining -= 30
	}

	bridgeDuration := remaining
	if route.NeedsSwap {
		// reserve a slice of the ETA for the destination swap leg
		bridgeDuration = remaining - 60
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

	if route.NeedsSwap {
		steps = append(steps, model.Step{
			Kind:              model.StepSwap,
			FromChain:         req.ToChain,
			ToChain:           req.ToChain,
			FromToken:         req.ToToken,
			ToToken:           req.ToToken,
			AmountIn:          amountOut,
			AmountOut:         amountOut,
			FeeAmount:         decimal.Zero,
			FeeToken:          req.ToToken,
			EstimatedDuration: 60,
		})
	}

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

// BestRoute picks the route with the highest amountOut.
func (m *Mapper) BestRoute(resp *RouteResponse) (Route, bool) {
	if len(resp.Routes) == 0 {
		return Route{}, false
	}
	best := resp.Routes[0]
	bestOut, _ := decimal.NewFromString(best.AmountOut)
	for _, r := range resp.Routes[1:] {
		out, err := decimal.NewFromString(r.AmountOut)
		if err != nil {
			continue
		}
		if out.GreaterThan(bestOut) {
			best, bestOut = r, out
		}
	}
	return best, true
}

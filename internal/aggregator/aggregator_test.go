package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/provider"
	"github.com/etherlinkx/bridge-engine/internal/quotecache"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

type fakeAdapter struct {
	name     string
	quote    model.Quote
	err      error
	delay    time.Duration
	supports bool
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) SupportsRoute(fromChain, toChain int64) bool { return f.supports }

func (f *fakeAdapter) GetQuote(ctx context.Context, req model.RouteRequest) (model.Quote, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.Quote{}, model.NewProviderTimeout(f.name, ctx.Err())
		}
	}
	if f.err != nil {
		return model.Quote{}, f.err
	}
	q := f.quote
	q.ID = model.NewUUID().String()
	q.Provider = f.name
	q.CreatedAt = time.Now().UTC()
	q.TTL = 30 * time.Second
	return q, nil
}

func quoteWith(amountOut int64, duration int64) model.Quote {
	return model.Quote{
		AmountOut:         decimal.NewFromInt(amountOut),
		EstimatedDuration: duration,
	}
}

func testRequest() model.RouteRequest {
	return model.RouteRequest{
		FromChain:   1,
		ToChain:     10,
		FromToken:   model.TokenRef{ChainID: 1, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
		ToToken:     model.TokenRef{ChainID: 10, Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"},
		Amount:      decimal.NewFromInt(1_000_000),
		SlippageBps: 50,
	}
}

func newAggregator(t *testing.T, adapters ...provider.Adapter) *Aggregator {
	t.Helper()
	registry := provider.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	cache := quotecache.New(zap.NewNop(), 30*time.Second, time.Minute)
	return New(zap.NewNop(), registry, cache, 2*time.Second)
}

func TestGetBestRouteRanksByAmountOut(t *testing.T) {
	agg := newAggregator(t,
		&fakeAdapter{name: "hopline", quote: quoteWith(998, 300), supports: true},
		&fakeAdapter{name: "relayx", quote: quoteWith(999, 900), supports: true},
		&fakeAdapter{name: "stargrid", quote: quoteWith(997, 120), supports: true},
	)

	quotes, err := agg.GetBestRoute(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	// Highest output wins even when it is the slowest route.
	assert.Equal(t, "relayx", quotes[0].Provider)
	assert.Equal(t, "hopline", quotes[1].Provider)
	assert.Equal(t, "stargrid", quotes[2].Provider)
}

func TestGetBestRouteSurvivesPartialFailure(t *testing.T) {
	agg := newAggregator(t,
		&fakeAdapter{name: "relayx", err: model.NewProviderFailure("relayx", assert.AnError), supports: true},
		&fakeAdapter{name: "hopline", quote: quoteWith(995, 300), supports: true},
	)

	quotes, err := agg.GetBestRoute(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "hopline", quotes[0].Provider)
}

func TestGetBestRouteAllProvidersFail(t *testing.T) {
	agg := newAggregator(t,
		&fakeAdapter{name: "relayx", err: model.NewProviderFailure("relayx", assert.AnError), supports: true},
		&fakeAdapter{name: "hopline", err: model.NewProviderUnsupported("hopline"), supports: true},
	)

	_, err := agg.GetBestRoute(context.Background(), testRequest())
	assert.ErrorIs(t, err, model.ErrNoRouteFound)
}

func TestGetBestRouteNoEligibleProviders(t *testing.T) {
	agg := newAggregator(t,
		&fakeAdapter{name: "relayx", quote: quoteWith(999, 900), supports: false},
	)

	_, err := agg.GetBestRoute(context.Background(), testRequest())
	assert.ErrorIs(t, err, model.ErrNoRouteFound)
}

func TestGetBestRouteSlowProviderDropped(t *testing.T) {
	registry := provider.NewRegistry()
	registry.Register(&fakeAdapter{name: "relayx", quote: quoteWith(999, 900), delay: 5 * time.Second, supports: true})
	registry.Register(&fakeAdapter{name: "hopline", quote: quoteWith(995, 300), supports: true})
	cache := quotecache.New(zap.NewNop(), 30*time.Second, time.Minute)
	agg := New(zap.NewNop(), registry, cache, 200*time.Millisecond)

	quotes, err := agg.GetBestRoute(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "hopline", quotes[0].Provider)
}

func TestGetBestRouteRejectsInvalidRequest(t *testing.T) {
	agg := newAggregator(t,
		&fakeAdapter{name: "relayx", quote: quoteWith(999, 900), supports: true},
	)

	req := testRequest()
	req.ToChain = req.FromChain
	_, err := agg.GetBestRoute(context.Background(), req)
	assert.True(t, model.IsValidation(err), "same-chain request must be rejected before fan-out, got %v", err)
}

func TestGetBestRouteUsesCache(t *testing.T) {
	adapter := &fakeAdapter{name: "relayx", quote: quoteWith(999, 900), supports: true}
	agg := newAggregator(t, adapter)

	first, err := agg.GetBestRoute(context.Background(), testRequest())
	require.NoError(t, err)
	second, err := agg.GetBestRoute(context.Background(), testRequest())
	require.NoError(t, err)

	// The second call is served from the cache: same quote id, no new call.
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestRankTieBreaks(t *testing.T) {
	quotes := []model.Quote{
		{Provider: "stargrid", AmountOut: decimal.NewFromInt(1000), EstimatedDuration: 300},
		{Provider: "relayx", AmountOut: decimal.NewFromInt(1000), EstimatedDuration: 300},
		{Provider: "hopline", AmountOut: decimal.NewFromInt(1000), EstimatedDuration: 120},
	}

	Rank(quotes)

	// Equal output: faster route first, then provider name.
	assert.Equal(t, "hopline", quotes[0].Provider)
	assert.Equal(t, "relayx", quotes[1].Provider)
	assert.Equal(t, "stargrid", quotes[2].Provider)
}

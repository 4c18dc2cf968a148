package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/etherlinkx/bridge-engine/internal/provider"
	"github.com/etherlinkx/bridge-engine/internal/quotecache"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Aggregator fans a route request out to all eligible provider adapters,
// tolerates partial failure, and returns a deterministically ranked list.
type Aggregator struct {
	logger   *zap.Logger
	registry *provider.Registry
	cache    *quotecache.Cache
	timeout  time.Duration // overall fan-out budget
}

func New(logger *zap.Logger, registry *provider.Registry, cache *quotecache.Cache, timeout time.Duration) *Aggregator {
	return &Aggregator{
		logger:   logger,
		registry: registry,
		cache:    cache,
		timeout:  timeout,
	}
}

// GetBestRoute returns ranked quotes for the request: amountOut descending,
// estimated duration ascending, provider name as the final tie-break.
// Malformed requests fail fast with a ValidationError and no network calls.
func (a *Aggregator) GetBestRoute(ctx context.Context, req model.RouteRequest) ([]model.Quote, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := quotecache.Key(req)
	return a.cache.Fetch(ctx, key, func() ([]model.Quote, error) {
		return a.fanOut(ctx, req)
	})
}

func (a *Aggregator) fanOut(ctx context.Context, req model.RouteRequest) ([]model.Quote, error) {
	adapters := a.registry.Eligible(req)
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no provider serves chains %d -> %d: %w",
			req.FromChain, req.ToChain, model.ErrNoRouteFound)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		quotes []model.Quote
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range adapters {
		ad := adapter
		g.Go(func() error {
			quote, err := ad.GetQuote(gctx, req)
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// Adapter failures are absorbed; they only matter if
				// every adapter fails.
				a.logger.Debug("aggregator.adapter_dropped",
					zap.String("provider", ad.Name()),
					zap.String("kind", string(model.ProviderErrKind(err))),
					zap.Error(err))
				return nil
			}
			quotes = append(quotes, quote)
			return nil
		})
	}

	// Goroutines report errors as handled; Wait only observes ctx failure.
	_ = g.Wait()

	if len(quotes) == 0 {
		return nil, fmt.Errorf("all %d providers failed: %w", len(adapters), model.ErrNoRouteFound)
	}

	Rank(quotes)

	a.logger.Info("aggregator.routes_ranked",
		zap.Int("providers_asked", len(adapters)),
		zap.Int("quotes", len(quotes)),
		zap.String("best_provider", quotes[0].Provider),
		zap.String("best_amount_out", quotes[0].AmountOut.String()))

	return quotes, nil
}

// Rank orders quotes in place: amountOut desc, duration asc, provider asc.
func Rank(quotes []model.Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		if !quotes[i].AmountOut.Equal(quotes[j].AmountOut) {
			return quotes[i].AmountOut.GreaterThan(quotes[j].AmountOut)
		}
		if quotes[i].EstimatedDuration != quotes[j].EstimatedDuration {
			return quotes[i].EstimatedDuration < quotes[j].EstimatedDuration
		}
		return quotes[i].Provider < quotes[j].Provider
	})
}

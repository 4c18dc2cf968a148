package relayx

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/etherlinkx/bridge-engine/internal/chains"
	"github.com/etherlinkx/bridge-engine/internal/metrics"
	"github.com/etherlinkx/bridge-engine/internal/rate"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Name is the provider identifier for RelayX.
const Name = "relayx"

// Adapter implements provider.Adapter for the RelayX bridge aggregator.
type Adapter struct {
	logger  *zap.Logger
	client  *Client
	mapper  *Mapper
	chains  *chains.Registry
	timeout time.Duration
	ttl     time.Duration
}

// New constructs the RelayX adapter. Both ends of a route must be in the
// chain registry for RelayX to quote it.
func New(logger *zap.Logger, rateMgr *rate.Manager, baseURL, apiKey string, chainReg *chains.Registry, timeout, ttl time.Duration) *Adapter {
	return &Adapter{
		logger:  logger,
		client:  NewClient(logger, rateMgr, baseURL, apiKey, timeout),
		mapper:  NewMapper(chainReg),
		chains:  chainReg,
		timeout: timeout,
		ttl:     ttl,
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) SupportsRoute(fromChain, toChain int64) bool {
	return a.chains.SupportsRoute(fromChain, toChain)
}

// GetQuote fetches one quote. The call budget is enforced here so a slow
// upstream surfaces as a typed timeout instead of blocking the fan-out.
func (a *Adapter) GetQuote(ctx context.Context, req model.RouteRequest) (model.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.CreateQuote(ctx, a.mapper.ToQuoteRequest(req))
	metrics.ObserveDuration(metrics.ProviderRequestDuration, start, Name)

	if err != nil {
		if isTimeout(ctx, err) {
			metrics.IncProviderRequest(Name, "timeout")
			return model.Quote{}, model.NewProviderTimeout(Name, err)
		}
		if model.ProviderErrKind(err) != "" {
			metrics.IncProviderRequest(Name, string(model.ProviderErrKind(err)))
			return model.Quote{}, err
		}
		metrics.IncProviderRequest(Name, "error")
		return model.Quote{}, model.NewProviderFailure(Name, err)
	}

	quote, err := a.mapper.FromQuoteResponse(resp, req, a.ttl)
	if err != nil {
		a.logger.Warn("relayx.map_failed", zap.Error(err))
		metrics.IncProviderRequest(Name, "error")
		return model.Quote{}, model.NewProviderFailure(Name, err)
	}

	metrics.IncProviderRequest(Name, "ok")
	return quote, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

package stargrid

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

// Name is the provider identifier for StarGrid.
const Name = "stargrid"

// Adapter implements provider.Adapter for the StarGrid pool bridge.
type Adapter struct {
	logger  *zap.Logger
	client  *Client
	mapper  *Mapper
	chains  *chains.Registry
	timeout time.Duration
	ttl     time.Duration
}

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

func (a *Adapter) GetQuote(ctx context.Context, req model.RouteRequest) (model.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.FindRoutes(ctx, a.mapper.ToRouteRequest(req))
	metrics.ObserveDuration(metrics.ProviderRequestDuration, start, Name)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isNetTimeout(err) {
			metrics.IncProviderRequest(Name, "timeout")
			return model.Quote{}, model.NewProviderTimeout(Name, err)
		}
		if kind := model.ProviderErrKind(err); kind != "" {
			metrics.IncProviderRequest(Name, string(kind))
			return model.Quote{}, err
		}
		metrics.IncProviderRequest(Name, "error")
		return model.Quote{}, model.NewProviderFailure(Name, err)
	}

	route, ok := a.mapper.BestRoute(resp)
	if !ok {
		metrics.IncProviderRequest(Name, "unsupported_route")
		return model.Quote{}, model.NewProviderUnsupported(Name)
	}

	quote, err := a.mapper.FromRoute(route, req, a.ttl)
	if err != nil {
		a.logger.Warn("stargrid.map_failed", zap.Error(err))
		metrics.IncProviderRequest(Name, "error")
		return model.Quote{}, model.NewProviderFailure(Name, err)
	}

	metrics.IncProviderRequest(Name, "ok")
	return quote, nil
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Adapter is the uniform contract for one external bridge/DEX aggregator.
// Implementations are stateless per call and safe for concurrent use; each
// call enforces its own request timeout and returns typed provider errors.
// Caching is the aggregator's responsibility, never the adapter's.
type Adapter interface {
	// Name returns the provider identifier used in ranking tie-breaks,
	// rate limiting and metrics labels.
	Name() string

	// SupportsRoute reports declared chain-pair support. Used to filter the
	// fan-out set before any network call is made.
	SupportsRoute(fromChain, toChain int64) bool

	// GetQuote fetches and normalizes one quote for the request. The request
	// is validated upstream; adapters may assume a positive amount and
	// distinct chains.
	GetQuote(ctx context.Context, req model.RouteRequest) (model.Quote, error)
}

// Registry holds the configured adapters. Registration happens at startup;
// reads are concurrent during fan-out.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter by name, or nil.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// Eligible returns the adapters that declare support for the route,
// ordered by name for deterministic fan-out.
func (r *Registry) Eligible(req model.RouteRequest) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Adapter
	for _, a := range r.adapters {
		if a.SupportsRoute(req.FromChain, req.ToChain) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

package chains

import (
	"fmt"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// catalog holds the chains the engine ships with. SUPPORTED_CHAINS selects
// from it at startup; IDs outside the catalog get a generic entry so an
// operator can enable a new rollup without a code change.
var catalog = map[int64]model.ChainRef{
	1:     {ID: 1, Name: "Ethereum", NativeSymbol: "ETH", IsL1: true},
	10:    {ID: 10, Name: "Optimism", NativeSymbol: "ETH"},
	137:   {ID: 137, Name: "Polygon", NativeSymbol: "POL"},
	8453:  {ID: 8453, Name: "Base", NativeSymbol: "ETH"},
	42161: {ID: 42161, Name: "Arbitrum One", NativeSymbol: "ETH"},
}

// Registry holds the chains enabled for this deployment, keyed by chain ID.
// Built once at startup, read-only afterwards.
type Registry struct {
	byID map[int64]model.ChainRef
}

// NewRegistry builds a registry for the given chain IDs.
func NewRegistry(ids []int64) *Registry {
	byID := make(map[int64]model.ChainRef, len(ids))
	for _, id := range ids {
		ref, ok := catalog[id]
		if !ok {
			ref = model.ChainRef{ID: id, Name: fmt.Sprintf("chain-%d", id), NativeSymbol: "ETH"}
		}
		byID[id] = ref
	}
	return &Registry{byID: byID}
}

// Get returns the chain reference for id.
func (r *Registry) Get(id int64) (model.ChainRef, bool) {
	ref, ok := r.byID[id]
	return ref, ok
}

// Supports reports whether the chain is enabled.
func (r *Registry) Supports(id int64) bool {
	_, ok := r.byID[id]
	return ok
}

// SupportsRoute reports whether both ends of a route are enabled.
func (r *Registry) SupportsRoute(fromChain, toChain int64) bool {
	return r.Supports(fromChain) && r.Supports(toChain)
}

// TouchesL1 reports whether either end of the route is an L1 chain.
func (r *Registry) TouchesL1(fromChain, toChain int64) bool {
	return r.byID[fromChain].IsL1 || r.byID[toChain].IsL1
}

// NativeToken returns the chain's native asset as a TokenRef.
func (r *Registry) NativeToken(id int64) model.TokenRef {
	symbol := r.byID[id].NativeSymbol
	if symbol == "" {
		symbol = "ETH"
	}
	return model.TokenRef{
		ChainID:  id,
		Address:  model.NativeTokenAddress,
		Symbol:   symbol,
		Decimals: 18,
	}
}

// All returns the enabled chains in no particular order.
func (r *Registry) All() []model.ChainRef {
	refs := make([]model.ChainRef, 0, len(r.byID))
	for _, ref := range r.byID {
		refs = append(refs, ref)
	}
	return refs
}

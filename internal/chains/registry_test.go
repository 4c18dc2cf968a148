package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etherlinkx/bridge-engine/pkg/model"
)

func TestRegistryKnownChains(t *testing.T) {
	r := NewRegistry([]int64{1, 10, 137})

	eth, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Ethereum", eth.Name)
	assert.Equal(t, "ETH", eth.NativeSymbol)
	assert.True(t, eth.IsL1)

	polygon, ok := r.Get(137)
	require.True(t, ok)
	assert.Equal(t, "POL", polygon.NativeSymbol)

	_, ok = r.Get(42161)
	assert.False(t, ok, "chains outside the configured set are not registered")
}

func TestRegistryUnknownChainGetsGenericEntry(t *testing.T) {
	r := NewRegistry([]int64{534352})

	ref, ok := r.Get(534352)
	require.True(t, ok)
	assert.Equal(t, "chain-534352", ref.Name)
	assert.Equal(t, "ETH", ref.NativeSymbol)
	assert.False(t, ref.IsL1)
}

func TestRegistrySupportsRoute(t *testing.T) {
	r := NewRegistry([]int64{1, 10})

	assert.True(t, r.SupportsRoute(1, 10))
	assert.False(t, r.SupportsRoute(1, 42161))
	assert.False(t, r.SupportsRoute(42161, 8453))
}

func TestRegistryTouchesL1(t *testing.T) {
	r := NewRegistry([]int64{1, 10, 42161})

	assert.True(t, r.TouchesL1(1, 10))
	assert.True(t, r.TouchesL1(10, 1))
	assert.False(t, r.TouchesL1(10, 42161))
}

func TestRegistryNativeToken(t *testing.T) {
	r := NewRegistry([]int64{1, 137})

	eth := r.NativeToken(1)
	assert.Equal(t, model.NativeTokenAddress, eth.Address)
	assert.Equal(t, "ETH", eth.Symbol)
	assert.Equal(t, int32(18), eth.Decimals)
	assert.True(t, eth.IsNative())

	pol := r.NativeToken(137)
	assert.Equal(t, "POL", pol.Symbol)
}

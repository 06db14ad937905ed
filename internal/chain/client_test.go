package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"

	"github.com/clamm-labs/exerciser/internal/config"
)

func TestRegistryDialsLazilyAndCaches(t *testing.T) {
	config.SetChains(map[uint64]config.ChainEntry{
		42161: {RPCURL: "https://arb1.example.org/rpc"},
	})
	config.DefaultRPCURL = ""

	dials := 0
	registry := NewRegistry()
	registry.dial = func(url string) (*ethclient.Client, error) {
		dials++
		require.Equal(t, "https://arb1.example.org/rpc", url)
		return &ethclient.Client{}, nil
	}

	first, err := registry.Client(42161)
	require.NoError(t, err)
	second, err := registry.Client(42161)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, dials)
}

func TestRegistryUnconfiguredChain(t *testing.T) {
	config.SetChains(map[uint64]config.ChainEntry{})
	config.DefaultRPCURL = ""

	registry := NewRegistry()
	_, err := registry.Client(999)
	require.ErrorIs(t, err, config.ErrMissingChainConfig)
}

package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func cacheKeyRequest() ProfitabilityRequest {
	return ProfitabilityRequest{
		ChainID:  42161,
		Market:   common.HexToAddress("0x1110000000000000000000000000000000000001"),
		Pool:     common.HexToAddress("0x2220000000000000000000000000000000000002"),
		OptionID: "42",
		IsCall:   true,
		Ranges: []TickRange{
			{TickLower: -60, TickUpper: 60, Liquidity: big.NewInt(1000)},
			{TickLower: -120, TickUpper: 120, Liquidity: big.NewInt(2000)},
		},
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := cacheKeyRequest()
	b := cacheKeyRequest()
	require.Equal(t, a.CacheKey(), b.CacheKey())
}

func TestCacheKeySensitivity(t *testing.T) {
	base := cacheKeyRequest().CacheKey()

	t.Run("chain id", func(t *testing.T) {
		req := cacheKeyRequest()
		req.ChainID = 1
		require.NotEqual(t, base, req.CacheKey())
	})

	t.Run("option side", func(t *testing.T) {
		req := cacheKeyRequest()
		req.IsCall = false
		require.NotEqual(t, base, req.CacheKey())
	})

	t.Run("liquidity", func(t *testing.T) {
		req := cacheKeyRequest()
		req.Ranges[0].Liquidity = big.NewInt(1001)
		require.NotEqual(t, base, req.CacheKey())
	})

	t.Run("range order", func(t *testing.T) {
		req := cacheKeyRequest()
		req.Ranges[0], req.Ranges[1] = req.Ranges[1], req.Ranges[0]
		require.NotEqual(t, base, req.CacheKey())
	})

	t.Run("nil liquidity reads as zero", func(t *testing.T) {
		a := cacheKeyRequest()
		a.Ranges[0].Liquidity = nil
		b := cacheKeyRequest()
		b.Ranges[0].Liquidity = big.NewInt(0)
		require.Equal(t, a.CacheKey(), b.CacheKey())
	})
}

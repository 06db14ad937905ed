package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/clamm-labs/exerciser/internal/chain"
	"github.com/clamm-labs/exerciser/internal/config"
	"github.com/clamm-labs/exerciser/internal/logger"
	"github.com/clamm-labs/exerciser/internal/metrics"
	"github.com/clamm-labs/exerciser/internal/types"
)

// ErrMetadataBatch indicates the metadata multicall failed or returned a
// failed sub-call. Partial metadata is never cached or returned: a wrong
// token mapping would silently invert the profit sign.
var ErrMetadataBatch = errors.New("metadata batch failed")

// MetadataSource resolves market metadata. Implemented by MetadataCache;
// tests substitute fakes.
type MetadataSource interface {
	Resolve(ctx context.Context, chainID uint64, market, pool common.Address) (types.MarketMetadata, error)
}

// MetadataCache resolves and memoizes the structural facts about a
// (chain, market, pool) triple. Entries never expire and are never evicted:
// metadata is immutable for a live market/pool pair and the cache is bounded
// by the number of distinct pairs ever seen.
type MetadataCache struct {
	logger zerolog.Logger
	chains chain.CallerSource

	mu      sync.RWMutex
	entries map[string]types.MarketMetadata
}

// NewMetadataCache creates an empty metadata cache reading through the given
// caller source.
func NewMetadataCache(chains chain.CallerSource) *MetadataCache {
	return &MetadataCache{
		logger:  logger.GetForComponent("metadata_cache"),
		chains:  chains,
		entries: make(map[string]types.MarketMetadata),
	}
}

// Resolve returns the metadata for a (chain, market, pool) triple, issuing
// one batched read on a cache miss. A batch in which any sub-call fails is a
// single failure for the whole resolution.
func (mc *MetadataCache) Resolve(ctx context.Context, chainID uint64, market, pool common.Address) (types.MarketMetadata, error) {
	key := fmt.Sprintf("%d|%s|%s", chainID, market.Hex(), pool.Hex())

	mc.mu.RLock()
	cached, ok := mc.entries[key]
	mc.mu.RUnlock()
	if ok {
		metrics.MetadataCacheHits.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.MetadataCacheHits.WithLabelValues("miss").Inc()

	md, err := mc.fetch(ctx, chainID, market, pool)
	if err != nil {
		return types.MarketMetadata{}, err
	}

	mc.mu.Lock()
	mc.entries[key] = md
	mc.mu.Unlock()

	mc.logger.Debug().
		Uint64("chainID", chainID).
		Str("market", market.Hex()).
		Str("pool", pool.Hex()).
		Uint32("fee", md.Fee).
		Msg("Market metadata resolved")

	return md, nil
}

// Size returns the number of cached entries.
func (mc *MetadataCache) Size() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}

func (mc *MetadataCache) fetch(ctx context.Context, chainID uint64, market, pool common.Address) (types.MarketMetadata, error) {
	caller, err := mc.chains.Caller(chainID)
	if err != nil {
		return types.MarketMetadata{}, err
	}
	multicall, err := config.MulticallAddress(chainID)
	if err != nil {
		return types.MarketMetadata{}, err
	}

	calls := []chain.Call{
		chain.FeeCall(pool),
		chain.CallAssetCall(market),
		chain.PutAssetCall(market),
		chain.Token0Call(pool),
		chain.Token1Call(pool),
	}
	wantPrimePool := market != pool
	if wantPrimePool {
		calls = append(calls, chain.PrimePoolCall(market))
	}

	results, err := chain.AggregateCalls(ctx, caller, multicall, calls)
	if err != nil {
		return types.MarketMetadata{}, fmt.Errorf("%w: %w", ErrMetadataBatch, err)
	}
	for i, r := range results {
		if !r.Success {
			return types.MarketMetadata{}, fmt.Errorf("%w: sub-call %d reverted", ErrMetadataBatch, i)
		}
	}

	var md types.MarketMetadata
	if md.Fee, err = chain.DecodeUint24(results[0].ReturnData); err != nil {
		return types.MarketMetadata{}, fmt.Errorf("%w: fee: %w", ErrMetadataBatch, err)
	}
	if md.CallAsset, err = chain.DecodeAddress(results[1].ReturnData); err != nil {
		return types.MarketMetadata{}, fmt.Errorf("%w: callAsset: %w", ErrMetadataBatch, err)
	}
	if md.PutAsset, err = chain.DecodeAddress(results[2].ReturnData); err != nil {
		return types.MarketMetadata{}, fmt.Errorf("%w: putAsset: %w", ErrMetadataBatch, err)
	}
	if md.Token0, err = chain.DecodeAddress(results[3].ReturnData); err != nil {
		return types.MarketMetadata{}, fmt.Errorf("%w: token0: %w", ErrMetadataBatch, err)
	}
	if md.Token1, err = chain.DecodeAddress(results[4].ReturnData); err != nil {
		return types.MarketMetadata{}, fmt.Errorf("%w: token1: %w", ErrMetadataBatch, err)
	}
	if wantPrimePool {
		if md.PrimePool, err = chain.DecodeAddress(results[5].ReturnData); err != nil {
			return types.MarketMetadata{}, fmt.Errorf("%w: primePool: %w", ErrMetadataBatch, err)
		}
	}
	return md, nil
}

package evaluator

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/clamm-labs/exerciser/internal/chain"
	"github.com/clamm-labs/exerciser/internal/config"
	"github.com/clamm-labs/exerciser/internal/logger"
	"github.com/clamm-labs/exerciser/internal/metrics"
	"github.com/clamm-labs/exerciser/internal/pricer"
	"github.com/clamm-labs/exerciser/internal/types"
)

// Evaluator computes per-position profitability. It owns the only two pieces
// of mutable shared state in the core: the permanent metadata cache and the
// TTL'd result cache. Both support concurrent use; the orchestrator loop and
// the synchronous web adapter share one Evaluator.
type Evaluator struct {
	logger zerolog.Logger
	meta   MetadataSource
	ranges pricer.RangeCalculator
	quotes pricer.QuoteSource

	ttl time.Duration

	mu      sync.RWMutex
	results map[string]cachedResult
}

type cachedResult struct {
	result   types.ProfitabilityResult
	storedAt time.Time
}

// New creates an evaluator wired to the production metadata cache, range
// calculator, and quote batcher.
func New(chains chain.CallerSource, ttl time.Duration) *Evaluator {
	return NewWithDeps(NewMetadataCache(chains), pricer.Calculator{}, pricer.NewQuoteBatcher(chains), ttl)
}

// NewWithDeps creates an evaluator with explicit collaborators. Used by tests.
func NewWithDeps(meta MetadataSource, ranges pricer.RangeCalculator, quotes pricer.QuoteSource, ttl time.Duration) *Evaluator {
	return &Evaluator{
		logger:  logger.GetForComponent("profitability_evaluator"),
		meta:    meta,
		ranges:  ranges,
		quotes:  quotes,
		ttl:     ttl,
		results: make(map[string]cachedResult),
	}
}

// Calculate evaluates a profitability request. It never returns an error: any
// failure during resolution, pricing, or encoding degrades to a
// not-profitable result with empty exercise parameters. A transient RPC error
// must never be mistaken for "profitable".
func (ev *Evaluator) Calculate(ctx context.Context, req types.ProfitabilityRequest) types.ProfitabilityResult {
	started := time.Now()
	defer func() {
		metrics.CalculateDuration.Observe(time.Since(started).Seconds())
	}()

	key := req.CacheKey()
	if cached, ok := ev.lookup(key); ok {
		metrics.ResultCacheHits.WithLabelValues("hit").Inc()
		return cached
	}
	metrics.ResultCacheHits.WithLabelValues("miss").Inc()

	result, err := ev.calculate(ctx, req)
	if err != nil {
		ev.logger.Error().Err(err).
			Uint64("chainID", req.ChainID).
			Str("market", req.Market.Hex()).
			Str("optionID", req.OptionID).
			Msg("Profitability calculation failed, returning not-profitable default")
		return failSafeResult(req)
	}

	ev.store(key, result)
	return result
}

// ResolveMetadata exposes the metadata cache's public entry point; the
// orchestrator uses it to build settlement parameters for expired positions.
func (ev *Evaluator) ResolveMetadata(ctx context.Context, chainID uint64, market, pool common.Address) (types.MarketMetadata, error) {
	return ev.meta.Resolve(ctx, chainID, market, pool)
}

// CleanupCache deletes all result-cache entries older than the TTL. The
// metadata cache is untouched: it has no expiry by design.
func (ev *Evaluator) CleanupCache() {
	now := time.Now()
	ev.mu.Lock()
	defer ev.mu.Unlock()
	removed := 0
	for key, entry := range ev.results {
		if now.Sub(entry.storedAt) >= ev.ttl {
			delete(ev.results, key)
			removed++
		}
	}
	if removed > 0 {
		ev.logger.Debug().Int("removed", removed).Int("remaining", len(ev.results)).Msg("Swept expired profitability results")
	}
}

// CachedResults returns the number of live result-cache entries.
func (ev *Evaluator) CachedResults() int {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	return len(ev.results)
}

func (ev *Evaluator) lookup(key string) (types.ProfitabilityResult, bool) {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	entry, ok := ev.results[key]
	if !ok || time.Since(entry.storedAt) >= ev.ttl {
		return types.ProfitabilityResult{}, false
	}
	return entry.result, true
}

func (ev *Evaluator) store(key string, result types.ProfitabilityResult) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.results[key] = cachedResult{result: result, storedAt: time.Now()}
}

// calculate runs the uncached pipeline: resolve metadata, size each range,
// quote all non-empty ranges in one batch, and assemble the result.
func (ev *Evaluator) calculate(ctx context.Context, req types.ProfitabilityRequest) (types.ProfitabilityResult, error) {
	md, err := ev.meta.Resolve(ctx, req.ChainID, req.Market, req.Pool)
	if err != nil {
		return types.ProfitabilityResult{}, err
	}

	// The exercised asset and the asset paid back follow from the call/put
	// flag and which pool token carries each role.
	assetToUse := md.CallAsset
	assetToGet := md.PutAsset
	if !req.IsCall {
		assetToUse = md.PutAsset
		assetToGet = md.CallAsset
	}
	lockedIsToken0 := assetToUse == md.Token0

	details := make([]types.SubPositionProfit, len(req.Ranges))
	var quoteRequests []pricer.QuoteRequest
	var quoteIndex []int

	for i, rg := range req.Ranges {
		if rg.Liquidity == nil || rg.Liquidity.Sign() <= 0 {
			details[i] = zeroDetail(i)
			continue
		}

		amount0, amount1, err := ev.ranges.AmountsForLiquidity(rg.TickLower, rg.TickUpper, rg.Liquidity)
		if err != nil {
			return types.ProfitabilityResult{}, fmt.Errorf("range %d: %w", i, err)
		}

		locked, refill := amount0, amount1
		if !lockedIsToken0 {
			locked, refill = amount1, amount0
		}

		details[i] = types.SubPositionProfit{
			Index:           i,
			Liquidity:       rg.Liquidity,
			AmountLocked:    locked,
			QuotedAmountOut: big.NewInt(0),
			AmountToRefill:  refill,
			Profit:          big.NewInt(0),
		}
		quoteRequests = append(quoteRequests, pricer.QuoteRequest{
			TokenIn:  assetToUse,
			TokenOut: assetToGet,
			AmountIn: locked,
			Fee:      md.Fee,
		})
		quoteIndex = append(quoteIndex, i)
	}

	// Single round trip regardless of range count.
	if len(quoteRequests) > 0 {
		quotes, err := ev.quotes.QuoteBatch(ctx, req.ChainID, quoteRequests)
		if err != nil {
			return types.ProfitabilityResult{}, err
		}
		if len(quotes) != len(quoteRequests) {
			return types.ProfitabilityResult{}, fmt.Errorf("quote batch returned %d results for %d requests", len(quotes), len(quoteRequests))
		}
		for slot, quote := range quotes {
			if !quote.Success {
				return types.ProfitabilityResult{}, fmt.Errorf("quote batch slot %d failed", slot)
			}
			i := quoteIndex[slot]
			details[i].QuotedAmountOut = quote.AmountOut
			details[i].Profit = new(big.Int).Sub(quote.AmountOut, details[i].AmountToRefill)
			details[i].IsProfitable = details[i].Profit.Sign() > 0
		}
	}

	swapper, err := config.SwapperAddress(req.ChainID)
	if err != nil {
		return types.ProfitabilityResult{}, err
	}

	params := types.ExerciseParams{
		OptionID:            req.OptionID,
		Swapper:             make([]common.Address, 0, len(details)),
		SwapData:            make([][]byte, 0, len(details)),
		LiquidityToExercise: make([]*big.Int, 0, len(details)),
	}
	totalProfit := big.NewInt(0)

	for i := range details {
		liquidity := big.NewInt(0)
		if details[i].IsProfitable {
			liquidity = details[i].Liquidity
			totalProfit.Add(totalProfit, details[i].Profit)
		}
		swapData, err := chain.EncodeSwapData(md.Fee, details[i].AmountToRefill)
		if err != nil {
			return types.ProfitabilityResult{}, err
		}
		params.Swapper = append(params.Swapper, swapper)
		params.SwapData = append(params.SwapData, swapData)
		params.LiquidityToExercise = append(params.LiquidityToExercise, liquidity)
	}

	return types.ProfitabilityResult{
		Details:        details,
		TotalProfit:    totalProfit,
		IsProfitable:   totalProfit.Sign() > 0,
		ExerciseParams: params,
	}, nil
}

func zeroDetail(index int) types.SubPositionProfit {
	return types.SubPositionProfit{
		Index:           index,
		Liquidity:       big.NewInt(0),
		AmountLocked:    big.NewInt(0),
		QuotedAmountOut: big.NewInt(0),
		AmountToRefill:  big.NewInt(0),
		Profit:          big.NewInt(0),
	}
}

// failSafeResult is the degraded answer for any calculation failure: not
// profitable, no details, and exercise parameters with one zero liquidity
// entry per input range so the shape stays stable for the caller.
func failSafeResult(req types.ProfitabilityRequest) types.ProfitabilityResult {
	zeros := make([]*big.Int, len(req.Ranges))
	for i := range zeros {
		zeros[i] = big.NewInt(0)
	}
	return types.ProfitabilityResult{
		Details:      []types.SubPositionProfit{},
		TotalProfit:  big.NewInt(0),
		IsProfitable: false,
		ExerciseParams: types.ExerciseParams{
			OptionID:            req.OptionID,
			Swapper:             []common.Address{},
			SwapData:            [][]byte{},
			LiquidityToExercise: zeros,
		},
	}
}

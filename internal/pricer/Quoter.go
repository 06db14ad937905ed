/*

This file groups swap-amount-in queries against the on-chain quoter into one
batched round trip. Result count and order always match the request list so
callers can zip quotes back onto their originating range by position.

*/

package pricer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/clamm-labs/exerciser/internal/chain"
	"github.com/clamm-labs/exerciser/internal/config"
	"github.com/clamm-labs/exerciser/internal/logger"
	"github.com/clamm-labs/exerciser/internal/metrics"
)

var ErrQuoteBatchMismatch = errors.New("quote batch result count mismatch")

// QuoteRequest is one exact-amount-in quote query.
type QuoteRequest struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	Fee      uint32
}

// QuoteResult is one query's outcome. AmountOut is nil when Success is false.
type QuoteResult struct {
	AmountOut *big.Int
	Success   bool
}

// QuoteSource is the batched quoting capability the evaluator depends on.
type QuoteSource interface {
	QuoteBatch(ctx context.Context, chainID uint64, requests []QuoteRequest) ([]QuoteResult, error)
}

// QuoteBatcher issues quote batches through the chain's Multicall3 contract.
type QuoteBatcher struct {
	logger zerolog.Logger
	chains chain.CallerSource
}

// NewQuoteBatcher creates a batcher reading through the given caller source.
func NewQuoteBatcher(chains chain.CallerSource) *QuoteBatcher {
	return &QuoteBatcher{
		logger: logger.GetForComponent("quote_batcher"),
		chains: chains,
	}
}

// QuoteBatch executes all requests in a single round trip. A reverted
// sub-call becomes a failure marker in its slot; the batch itself only errors
// when the round trip or the chain configuration fails.
func (qb *QuoteBatcher) QuoteBatch(ctx context.Context, chainID uint64, requests []QuoteRequest) ([]QuoteResult, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	quoter, err := config.QuoterAddress(chainID)
	if err != nil {
		return nil, err
	}
	multicall, err := config.MulticallAddress(chainID)
	if err != nil {
		return nil, err
	}
	caller, err := qb.chains.Caller(chainID)
	if err != nil {
		return nil, err
	}

	calls := make([]chain.Call, len(requests))
	for i, req := range requests {
		call, err := chain.QuoteCall(quoter, req.TokenIn, req.TokenOut, req.Fee, req.AmountIn)
		if err != nil {
			return nil, err
		}
		calls[i] = call
	}

	raw, err := chain.AggregateCalls(ctx, caller, multicall, calls)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(requests) {
		return nil, fmt.Errorf("%w: %d results for %d requests", ErrQuoteBatchMismatch, len(raw), len(requests))
	}
	metrics.QuoteBatchSize.Observe(float64(len(requests)))

	results := make([]QuoteResult, len(requests))
	for i, r := range raw {
		if !r.Success {
			qb.logger.Debug().Uint64("chainID", chainID).Int("slot", i).Msg("Quote sub-call reverted")
			results[i] = QuoteResult{}
			continue
		}
		amountOut, err := chain.DecodeUint256(r.ReturnData)
		if err != nil {
			qb.logger.Debug().Err(err).Uint64("chainID", chainID).Int("slot", i).Msg("Quote return data malformed")
			results[i] = QuoteResult{}
			continue
		}
		results[i] = QuoteResult{AmountOut: amountOut, Success: true}
	}
	return results, nil
}

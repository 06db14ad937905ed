/*

This file contains the request/result types for the profitability pipeline:
the evaluator's cache key material, the immutable per-market metadata, and the
exercise/settlement call parameters handed to the submitter.

*/

package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TickRange is one (tickLower, tickUpper, liquidity) triple of a
// profitability request.
type TickRange struct {
	TickLower int      `json:"tick_lower"`
	TickUpper int      `json:"tick_upper"`
	Liquidity *big.Int `json:"liquidity"`
}

// ProfitabilityRequest identifies one profitability calculation. Every field,
// including the order of the ranges, is part of the cache key: reordering
// ranges is a different request.
type ProfitabilityRequest struct {
	ChainID  uint64         `json:"chain_id"`
	Market   common.Address `json:"market"`
	Pool     common.Address `json:"pool"`
	OptionID string         `json:"option_id"`
	IsCall   bool           `json:"is_call"`
	Ranges   []TickRange    `json:"ranges"`
}

// CacheKey returns a deterministic fingerprint of the full request.
func (r ProfitabilityRequest) CacheKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%s|%s|%t", r.ChainID, r.Market.Hex(), r.Pool.Hex(), r.OptionID, r.IsCall)
	for _, rg := range r.Ranges {
		liq := "0"
		if rg.Liquidity != nil {
			liq = rg.Liquidity.String()
		}
		fmt.Fprintf(&b, "|%d:%d:%s", rg.TickLower, rg.TickUpper, liq)
	}
	return b.String()
}

// MarketMetadata holds the structural facts about a (market, pool) pair.
// Pools and markets never change which tokens they hold, so metadata is
// immutable once resolved.
type MarketMetadata struct {
	Fee       uint32         `json:"fee"`
	CallAsset common.Address `json:"call_asset"`
	PutAsset  common.Address `json:"put_asset"`
	Token0    common.Address `json:"token0"`
	Token1    common.Address `json:"token1"`
	// PrimePool is the market's configured pricing pool. Zero when the
	// market address and pool address are the same contract.
	PrimePool common.Address `json:"prime_pool,omitempty"`
}

// SubPositionProfit is the per-range detail of a profitability result.
type SubPositionProfit struct {
	Index           int      `json:"index"`
	Liquidity       *big.Int `json:"liquidity"`
	AmountLocked    *big.Int `json:"amount_locked"`
	QuotedAmountOut *big.Int `json:"quoted_amount_out"`
	AmountToRefill  *big.Int `json:"amount_to_refill"`
	Profit          *big.Int `json:"profit"`
	IsProfitable    bool     `json:"is_profitable"`
}

// ExerciseParams is the auto-exercise call payload. It is always populated,
// even for unprofitable results, with zero liquidity entries for ranges that
// should not be exercised.
type ExerciseParams struct {
	OptionID            string           `json:"option_id"`
	Swapper             []common.Address `json:"swapper"`
	SwapData            [][]byte         `json:"swap_data"`
	LiquidityToExercise []*big.Int       `json:"liquidity_to_exercise"`
}

// SettleParams is the settle call payload for an expired position.
type SettleParams struct {
	OptionID          string           `json:"option_id"`
	Swapper           []common.Address `json:"swapper"`
	SwapData          [][]byte         `json:"swap_data"`
	LiquidityToSettle []*big.Int       `json:"liquidity_to_settle"`
}

// ProfitabilityResult is the evaluator's answer for one request.
type ProfitabilityResult struct {
	Details        []SubPositionProfit `json:"details"`
	TotalProfit    *big.Int            `json:"total_profit"`
	IsProfitable   bool                `json:"is_profitable"`
	ExerciseParams ExerciseParams      `json:"exercise_params"`
}

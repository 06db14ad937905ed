/*

This file contains the types for on-chain option positions as reported by the
indexer. Positions are read-only inputs: the engine only derives requests and
call parameters from them, it never mutates them.

*/

package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SubPosition is one contiguous tick range of liquidity inside a position
// ("internal option"). The four liquidity figures track the range over the
// position's life.
type SubPosition struct {
	TickLower int `json:"tick_lower"`
	TickUpper int `json:"tick_upper"`

	LiquidityAtOpen    *big.Int `json:"liquidity_at_open"`
	LiquidityExercised *big.Int `json:"liquidity_exercised"`
	LiquiditySettled   *big.Int `json:"liquidity_settled"`
	LiquidityAtLive    *big.Int `json:"liquidity_at_live"`
}

// SettleableLiquidity returns the liquidity still owed settlement:
// open minus exercised minus settled. The result is clamped at zero; a
// negative raw value signals corrupted upstream data and the second return
// reports it so callers can log the anomaly.
func (s SubPosition) SettleableLiquidity() (*big.Int, bool) {
	remaining := new(big.Int).Set(zeroIfNil(s.LiquidityAtOpen))
	remaining.Sub(remaining, zeroIfNil(s.LiquidityExercised))
	remaining.Sub(remaining, zeroIfNil(s.LiquiditySettled))
	if remaining.Sign() < 0 {
		return big.NewInt(0), true
	}
	return remaining, false
}

// Position is an on-chain option: a bundle of liquidity ranges with an expiry,
// owned by a market contract and priced against a pool.
type Position struct {
	ID           string         `json:"id"`
	Market       common.Address `json:"market"`
	Pool         common.Address `json:"pool"`
	ChainID      uint64         `json:"chain_id"`
	IsCall       bool           `json:"is_call"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	SubPositions []SubPosition  `json:"sub_positions"`
}

func zeroIfNil(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return x
}

/*

This file converts pool ticks to square-root prices in the Q96 fixed-point
representation used by concentrated-liquidity pools. All arithmetic is done on
big integers so results match the on-chain math bit for bit.

*/

package pricer

import (
	"errors"
	"fmt"
	"math/big"
)

// Tick bounds supported by the pricing pools.
const (
	MinTick = -887272
	MaxTick = 887272
)

var (
	ErrTickOutOfRange = errors.New("tick out of range")

	// Q96 is 2^96, the fixed-point scale of sqrt prices.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// Per-bit multipliers for sqrt(1.0001)^-(2^i), Q128 fixed point.
	tickRatios = []string{
		"fffcb933bd6fad37aa2d162d1a594001",
		"fff97272373d413259a46990580e213a",
		"fff2e50f5f656932ef12357cf3c7fdcc",
		"ffe5caca7e10e4e61c3624eaa0941cd0",
		"ffcb9843d60f6159c9db58835c926644",
		"ff973b41fa98c081472e6896dfb254c0",
		"ff2ea16466c96a3843ec78b326b52861",
		"fe5dee046a99a2a811c461f1969c3053",
		"fcbe86c7900a88aedcffc83b479aa3a4",
		"f987a7253ac413176f2b074cf7815e54",
		"f3392b0822b70005940c7a398e4b70f3",
		"e7159475a2c29b7443b29c7fa6e889d9",
		"d097f3bdfd2022b8845ad8f792aa5825",
		"a9f746462d870fdf8a65dc1f90e061e5",
		"70d869a156d2a1b890bb3df62baf32f7",
		"31be135f97d08fd981231505542fcfa6",
		"9aa508b5b7a84e1c677de54f3e99bc9",
		"5d6af8dedb81196699c329225ee604",
		"2216e584f5fa1ea926041bedfe98",
		"48a170391f7dc42444e8fa2",
	}

	tickRatioInts []*big.Int
)

func init() {
	tickRatioInts = make([]*big.Int, len(tickRatios))
	for i, s := range tickRatios {
		v, ok := new(big.Int).SetString(s, 16)
		if !ok {
			panic("pricer: bad tick ratio constant " + s)
		}
		tickRatioInts[i] = v
	}
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q96 fixed-point number.
func SqrtRatioAtTick(tick int) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	if absTick&1 != 0 {
		ratio.Set(tickRatioInts[0])
	}
	for i := 1; i < len(tickRatioInts); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickRatioInts[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// Q128 -> Q96, rounding up so the price never understates.
	rem := new(big.Int)
	ratio.DivMod(ratio, new(big.Int).Lsh(big.NewInt(1), 32), rem)
	if rem.Sign() != 0 {
		ratio.Add(ratio, big.NewInt(1))
	}
	return ratio, nil
}

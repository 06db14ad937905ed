/*

This file maps a liquidity position's tick range to the token amounts the
position occupies between those bounds. Every division rounds up: the results
are amounts of token that must be supplied or returned, and rounding down
would systematically overstate profit.

*/

package pricer

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidTickOrder  = errors.New("tick lower must be below tick upper")
	ErrNegativeLiquidity = errors.New("liquidity must not be negative")
)

// RangeCalculator computes token amounts for tick ranges. The evaluator
// depends on this interface; Calculator is the production implementation.
type RangeCalculator interface {
	AmountsForLiquidity(tickLower, tickUpper int, liquidity *big.Int) (amount0, amount1 *big.Int, err error)
}

// Calculator is the fixed-point range calculator.
type Calculator struct{}

// AmountsForLiquidity returns the token0 and token1 amounts a position of the
// given liquidity occupies between the two ticks, rounded up. Zero liquidity
// short-circuits to (0, 0) without converting any tick to a price.
func (Calculator) AmountsForLiquidity(tickLower, tickUpper int, liquidity *big.Int) (*big.Int, *big.Int, error) {
	if tickLower >= tickUpper {
		return nil, nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidTickOrder, tickLower, tickUpper)
	}
	if liquidity != nil && liquidity.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNegativeLiquidity, liquidity)
	}
	if liquidity == nil || liquidity.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}

	sqrtLower, err := SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtUpper, err := SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, err
	}

	amount0 := amount0Delta(sqrtLower, sqrtUpper, liquidity)
	amount1 := amount1Delta(sqrtLower, sqrtUpper, liquidity)
	return amount0, amount1, nil
}

// amount0Delta is ceil(L * 2^96 * (sqrtB - sqrtA) / (sqrtB * sqrtA)),
// computed as two rounded-up divisions to match the on-chain formulation.
func amount0Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	numerator := new(big.Int).Lsh(liquidity, 96)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	inner := mulDivRoundingUp(numerator, diff, sqrtB)
	return divRoundingUp(inner, sqrtA)
}

// amount1Delta is ceil(L * (sqrtB - sqrtA) / 2^96).
func amount1Delta(sqrtA, sqrtB, liquidity *big.Int) *big.Int {
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	return mulDivRoundingUp(liquidity, diff, Q96)
}

func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return divRoundingUp(product, denominator)
}

func divRoundingUp(x, y *big.Int) *big.Int {
	quotient, remainder := new(big.Int).DivMod(x, y, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient
}

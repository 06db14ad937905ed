package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Zero-argument getters are called with raw 4-byte selectors; only the
// quoter and the state-changing entry points need full ABI handling.
var (
	feeSelector       = crypto.Keccak256([]byte("fee()"))[:4]
	token0Selector    = crypto.Keccak256([]byte("token0()"))[:4]
	token1Selector    = crypto.Keccak256([]byte("token1()"))[:4]
	callAssetSelector = crypto.Keccak256([]byte("callAsset()"))[:4]
	putAssetSelector  = crypto.Keccak256([]byte("putAsset()"))[:4]
	primePoolSelector = crypto.Keccak256([]byte("primePool()"))[:4]
)

const quoterABIJSON = `[{"inputs":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`

const autoExerciseABIJSON = `[{"inputs":[{"internalType":"uint256","name":"optionId","type":"uint256"},{"internalType":"uint256","name":"executorFee","type":"uint256"},{"internalType":"address[]","name":"swappers","type":"address[]"},{"internalType":"bytes[]","name":"swapDatas","type":"bytes[]"},{"internalType":"uint256[]","name":"liquidityToExercise","type":"uint256[]"}],"name":"autoExercise","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const optionMarketABIJSON = `[{"inputs":[{"internalType":"uint256","name":"optionId","type":"uint256"},{"internalType":"address[]","name":"swappers","type":"address[]"},{"internalType":"bytes[]","name":"swapDatas","type":"bytes[]"},{"internalType":"uint256[]","name":"liquidityToSettle","type":"uint256[]"}],"name":"settleOption","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

var (
	quoterABI       = mustABI(quoterABIJSON)
	autoExerciseABI = mustABI(autoExerciseABIJSON)
	optionMarketABI = mustABI(optionMarketABIJSON)

	swapDataArgs = abi.Arguments{
		{Type: mustType("uint24")},
		{Type: mustType("uint256")},
	}
)

var (
	ErrABIEncoding  = errors.New("ABI encoding failed")
	ErrShortReturn  = errors.New("contract returned short data")
	ErrInvalidValue = errors.New("contract returned invalid value")
)

// FeeCall builds the pool fee() sub-call.
func FeeCall(pool common.Address) Call {
	return Call{Target: pool, CallData: feeSelector}
}

// Token0Call builds the pool token0() sub-call.
func Token0Call(pool common.Address) Call {
	return Call{Target: pool, CallData: token0Selector}
}

// Token1Call builds the pool token1() sub-call.
func Token1Call(pool common.Address) Call {
	return Call{Target: pool, CallData: token1Selector}
}

// CallAssetCall builds the market callAsset() sub-call.
func CallAssetCall(market common.Address) Call {
	return Call{Target: market, CallData: callAssetSelector}
}

// PutAssetCall builds the market putAsset() sub-call.
func PutAssetCall(market common.Address) Call {
	return Call{Target: market, CallData: putAssetSelector}
}

// PrimePoolCall builds the market primePool() sub-call.
func PrimePoolCall(market common.Address) Call {
	return Call{Target: market, CallData: primePoolSelector}
}

// QuoteCall builds a quoteExactInputSingle sub-call against the quoter.
func QuoteCall(quoter, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (Call, error) {
	data, err := quoterABI.Pack("quoteExactInputSingle",
		tokenIn, tokenOut, big.NewInt(int64(fee)), amountIn, big.NewInt(0))
	if err != nil {
		return Call{}, fmt.Errorf("%w: quoteExactInputSingle: %w", ErrABIEncoding, err)
	}
	return Call{Target: quoter, CallData: data}, nil
}

// DecodeUint256 reads a single uint256 return value.
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("%w: want 32 bytes, got %d", ErrShortReturn, len(data))
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// DecodeAddress reads a single address return value.
func DecodeAddress(data []byte) (common.Address, error) {
	if len(data) < 32 {
		return common.Address{}, fmt.Errorf("%w: want 32 bytes, got %d", ErrShortReturn, len(data))
	}
	return common.BytesToAddress(data[12:32]), nil
}

// DecodeUint24 reads a uint24 return value (the pool fee tier).
func DecodeUint24(data []byte) (uint32, error) {
	value, err := DecodeUint256(data)
	if err != nil {
		return 0, err
	}
	if !value.IsUint64() || value.Uint64() > 1<<24-1 {
		return 0, fmt.Errorf("%w: uint24 out of range: %s", ErrInvalidValue, value)
	}
	return uint32(value.Uint64()), nil
}

// EncodeSwapData ABI-encodes the opaque swap instruction blob the swapper
// expects: the pool fee tier and the minimum acceptable output amount.
func EncodeSwapData(fee uint32, minAmountOut *big.Int) ([]byte, error) {
	if minAmountOut == nil {
		minAmountOut = big.NewInt(0)
	}
	data, err := swapDataArgs.Pack(big.NewInt(int64(fee)), minAmountOut)
	if err != nil {
		return nil, fmt.Errorf("%w: swap data: %w", ErrABIEncoding, err)
	}
	return data, nil
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

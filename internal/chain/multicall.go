package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3 tryAggregate, the same interface on every supported chain.
const multicall3ABI = `[{"inputs":[{"internalType":"bool","name":"requireSuccess","type":"bool"},{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call[]","name":"calls","type":"tuple[]"}],"name":"tryAggregate","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

var (
	ErrMulticallFailed = errors.New("multicall execution failed")

	mcABI = mustABI(multicall3ABI)
)

// Call is one sub-call of a batched read.
type Call struct {
	Target   common.Address
	CallData []byte
}

// Result is one sub-call's outcome. ReturnData is only meaningful when
// Success is true.
type Result struct {
	Success    bool
	ReturnData []byte
}

// mcCall mirrors the Multicall3.Call tuple for ABI packing.
type mcCall struct {
	Target   common.Address
	CallData []byte
}

// mcResult mirrors the Multicall3.Result tuple for ABI unpacking.
type mcResult struct {
	Success    bool
	ReturnData []byte
}

// AggregateCalls executes all calls in a single eth_call round trip against
// the chain's Multicall3 contract. The returned slice has exactly one Result
// per input Call, in input order, so callers can zip results back onto their
// originating request by position.
func AggregateCalls(ctx context.Context, caller Caller, multicall common.Address, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	packed := make([]mcCall, len(calls))
	for i, call := range calls {
		packed[i] = mcCall{Target: call.Target, CallData: call.CallData}
	}

	input, err := mcABI.Pack("tryAggregate", false, packed)
	if err != nil {
		return nil, fmt.Errorf("%w: pack: %w", ErrMulticallFailed, err)
	}

	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &multicall, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMulticallFailed, err)
	}

	unpacked, err := mcABI.Unpack("tryAggregate", output)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack: %w", ErrMulticallFailed, err)
	}
	raw := *abi.ConvertType(unpacked[0], new([]mcResult)).(*[]mcResult)
	if len(raw) != len(calls) {
		return nil, fmt.Errorf("%w: got %d results for %d calls", ErrMulticallFailed, len(raw), len(calls))
	}

	results := make([]Result, len(raw))
	for i, r := range raw {
		results[i] = Result{Success: r.Success, ReturnData: r.ReturnData}
	}
	return results, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

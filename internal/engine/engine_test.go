package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/clamm-labs/exerciser/internal/config"
	"github.com/clamm-labs/exerciser/internal/types"
)

var (
	engineMarket  = common.HexToAddress("0x1110000000000000000000000000000000000001")
	enginePool    = common.HexToAddress("0x2220000000000000000000000000000000000002")
	engineSwapper = common.HexToAddress("0x3330000000000000000000000000000000000003")
)

type fakeSource struct {
	expiring    []types.Position
	expired     []types.Position
	expiringErr error
	expiredErr  error
}

func (f *fakeSource) GetExpiringPositions(ctx context.Context) ([]types.Position, error) {
	return f.expiring, f.expiringErr
}

func (f *fakeSource) GetExpiredPositions(ctx context.Context) ([]types.Position, error) {
	return f.expired, f.expiredErr
}

type fakeCalc struct {
	results  map[string]types.ProfitabilityResult
	metadata types.MarketMetadata
	metaErr  error
	cleanups int
}

func (f *fakeCalc) Calculate(ctx context.Context, req types.ProfitabilityRequest) types.ProfitabilityResult {
	if result, ok := f.results[req.OptionID]; ok {
		return result
	}
	return types.ProfitabilityResult{
		Details:     []types.SubPositionProfit{},
		TotalProfit: big.NewInt(0),
		ExerciseParams: types.ExerciseParams{
			OptionID:            req.OptionID,
			LiquidityToExercise: []*big.Int{big.NewInt(0)},
		},
	}
}

func (f *fakeCalc) ResolveMetadata(ctx context.Context, chainID uint64, market, pool common.Address) (types.MarketMetadata, error) {
	return f.metadata, f.metaErr
}

func (f *fakeCalc) CleanupCache() { f.cleanups++ }

type submission struct {
	kind     string
	chainID  uint64
	optionID string
	fee      *big.Int
	settle   types.SettleParams
}

type fakeSubmitter struct {
	submissions []submission
	exerciseErr error
	settleErr   error
}

func (f *fakeSubmitter) SubmitAutoExercise(ctx context.Context, chainID uint64, params types.ExerciseParams, executorFee *big.Int) (common.Hash, error) {
	if f.exerciseErr != nil {
		return common.Hash{}, f.exerciseErr
	}
	f.submissions = append(f.submissions, submission{kind: "exercise", chainID: chainID, optionID: params.OptionID, fee: executorFee})
	return common.HexToHash("0x01"), nil
}

func (f *fakeSubmitter) SubmitSettle(ctx context.Context, chainID uint64, market common.Address, params types.SettleParams) (common.Hash, error) {
	if f.settleErr != nil {
		return common.Hash{}, f.settleErr
	}
	f.submissions = append(f.submissions, submission{kind: "settle", chainID: chainID, optionID: params.OptionID, settle: params})
	return common.HexToHash("0x02"), nil
}

func expiringPosition(id string) types.Position {
	return types.Position{
		ID:      id,
		Market:  engineMarket,
		Pool:    enginePool,
		ChainID: 42161,
		IsCall:  true,
		SubPositions: []types.SubPosition{
			{TickLower: -60, TickUpper: 60, LiquidityAtLive: big.NewInt(1000)},
		},
	}
}

func profitableResult(id string) types.ProfitabilityResult {
	return types.ProfitabilityResult{
		Details: []types.SubPositionProfit{
			{Index: 0, Liquidity: big.NewInt(1000), AmountLocked: big.NewInt(2_000_000), Profit: big.NewInt(50), IsProfitable: true},
		},
		TotalProfit:  big.NewInt(50),
		IsProfitable: true,
		ExerciseParams: types.ExerciseParams{
			OptionID:            id,
			Swapper:             []common.Address{engineSwapper},
			SwapData:            [][]byte{{0x01}},
			LiquidityToExercise: []*big.Int{big.NewInt(1000)},
		},
	}
}

func newTestEngine(t *testing.T, source *fakeSource, calc *fakeCalc, submitter *fakeSubmitter) *Engine {
	t.Helper()
	eng, err := New(Config{
		Source:          source,
		Calculator:      calc,
		Submitter:       submitter,
		PollInterval:    time.Hour,
		CleanupInterval: time.Hour,
	})
	require.NoError(t, err)
	return eng
}

func TestNewValidation(t *testing.T) {
	source := &fakeSource{}
	calc := &fakeCalc{}
	submitter := &fakeSubmitter{}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"nil source", Config{Calculator: calc, Submitter: submitter, PollInterval: time.Second, CleanupInterval: time.Second}},
		{"nil calculator", Config{Source: source, Submitter: submitter, PollInterval: time.Second, CleanupInterval: time.Second}},
		{"nil submitter", Config{Source: source, Calculator: calc, PollInterval: time.Second, CleanupInterval: time.Second}},
		{"zero poll interval", Config{Source: source, Calculator: calc, Submitter: submitter, CleanupInterval: time.Second}},
		{"zero cleanup interval", Config{Source: source, Calculator: calc, Submitter: submitter, PollInterval: time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			require.Error(t, err)
		})
	}
}

func TestRunCycleSubmitsProfitableExercise(t *testing.T) {
	config.ExecutorFeePips = 10000

	source := &fakeSource{expiring: []types.Position{expiringPosition("1")}}
	calc := &fakeCalc{results: map[string]types.ProfitabilityResult{"1": profitableResult("1")}}
	submitter := &fakeSubmitter{}
	eng := newTestEngine(t, source, calc, submitter)

	eng.RunCycle(context.Background())

	require.Len(t, submitter.submissions, 1)
	sub := submitter.submissions[0]
	require.Equal(t, "exercise", sub.kind)
	require.Equal(t, uint64(42161), sub.chainID)
	require.Equal(t, "1", sub.optionID)
	// 1% of the 2,000,000 locked notional.
	require.Equal(t, big.NewInt(20_000), sub.fee)

	stats := eng.LastCycle()
	require.Equal(t, 1, stats.Expiring)
	require.Equal(t, 1, stats.Submitted)
	require.Zero(t, stats.Failures)
}

func TestRunCycleSkipsUnprofitable(t *testing.T) {
	source := &fakeSource{expiring: []types.Position{expiringPosition("1")}}
	calc := &fakeCalc{} // default result has zero liquidity to exercise
	submitter := &fakeSubmitter{}
	eng := newTestEngine(t, source, calc, submitter)

	eng.RunCycle(context.Background())

	require.Empty(t, submitter.submissions)
	require.Zero(t, eng.LastCycle().Submitted)
	require.Zero(t, eng.LastCycle().Failures)
}

func TestRunCycleFailureIsolation(t *testing.T) {
	config.SetChains(map[uint64]config.ChainEntry{
		42161: {Name: "arbitrum", Swapper: engineSwapper.Hex()},
	})

	// The first expiring position's submission fails; the expired position
	// must still be settled.
	expired := expiringPosition("2")
	expired.SubPositions = []types.SubPosition{
		{TickLower: -60, TickUpper: 60, LiquidityAtOpen: big.NewInt(500)},
	}

	source := &fakeSource{
		expiring: []types.Position{expiringPosition("1")},
		expired:  []types.Position{expired},
	}
	calc := &fakeCalc{
		results:  map[string]types.ProfitabilityResult{"1": profitableResult("1")},
		metadata: types.MarketMetadata{Fee: 500},
	}
	submitter := &fakeSubmitter{exerciseErr: errors.New("nonce too low")}
	eng := newTestEngine(t, source, calc, submitter)

	eng.RunCycle(context.Background())

	require.Len(t, submitter.submissions, 1)
	require.Equal(t, "settle", submitter.submissions[0].kind)

	stats := eng.LastCycle()
	require.Equal(t, 1, stats.Failures)
	require.Equal(t, 1, stats.Submitted)
}

func TestRunCyclePollFailureSkipsList(t *testing.T) {
	source := &fakeSource{expiringErr: errors.New("indexer down")}
	submitter := &fakeSubmitter{}
	eng := newTestEngine(t, source, &fakeCalc{}, submitter)

	eng.RunCycle(context.Background())

	require.Empty(t, submitter.submissions)
	require.Zero(t, eng.LastCycle().Expiring)
}

func TestProcessExpiredClampsNegativeLiquidity(t *testing.T) {
	config.SetChains(map[uint64]config.ChainEntry{
		42161: {Name: "arbitrum", Swapper: engineSwapper.Hex()},
	})

	position := expiringPosition("7")
	position.SubPositions = []types.SubPosition{
		// 100 opened, 300 already exercised: corrupted, clamps to zero.
		{TickLower: -60, TickUpper: 60, LiquidityAtOpen: big.NewInt(100), LiquidityExercised: big.NewInt(300)},
		{TickLower: -120, TickUpper: 120, LiquidityAtOpen: big.NewInt(800), LiquiditySettled: big.NewInt(300)},
	}

	calc := &fakeCalc{metadata: types.MarketMetadata{Fee: 500}}
	submitter := &fakeSubmitter{}
	eng := newTestEngine(t, &fakeSource{}, calc, submitter)

	submitted, err := eng.processExpired(context.Background(), zerolog.Nop(), position)
	require.NoError(t, err)
	require.True(t, submitted)

	params := submitter.submissions[0].settle
	require.Equal(t, []*big.Int{big.NewInt(0), big.NewInt(500)}, params.LiquidityToSettle)
	require.Len(t, params.SwapData, 2)
	require.Len(t, params.Swapper, 2)
}

func TestProcessExpiredAllZeroSkipsSubmission(t *testing.T) {
	config.SetChains(map[uint64]config.ChainEntry{
		42161: {Name: "arbitrum", Swapper: engineSwapper.Hex()},
	})

	position := expiringPosition("8")
	position.SubPositions = []types.SubPosition{
		{TickLower: -60, TickUpper: 60, LiquidityAtOpen: big.NewInt(100), LiquiditySettled: big.NewInt(100)},
	}

	calc := &fakeCalc{metadata: types.MarketMetadata{Fee: 500}}
	submitter := &fakeSubmitter{}
	eng := newTestEngine(t, &fakeSource{}, calc, submitter)

	submitted, err := eng.processExpired(context.Background(), zerolog.Nop(), position)
	require.NoError(t, err)
	require.False(t, submitted)
	require.Empty(t, submitter.submissions)
}

func TestStartStopLifecycle(t *testing.T) {
	eng := newTestEngine(t, &fakeSource{}, &fakeCalc{}, &fakeSubmitter{})

	require.False(t, eng.Running())

	eng.Start()
	require.True(t, eng.Running())

	// Second Start is a no-op, Stop must still terminate cleanly.
	eng.Start()
	require.True(t, eng.Running())

	eng.Stop()
	require.False(t, eng.Running())

	// Stop again is a no-op.
	eng.Stop()
	require.False(t, eng.Running())
}

func TestExecutorFeeCountsOnlyProfitableRanges(t *testing.T) {
	config.ExecutorFeePips = 10000

	fee := executorFee([]types.SubPositionProfit{
		{AmountLocked: big.NewInt(1_000_000), IsProfitable: true},
		{AmountLocked: big.NewInt(9_000_000), IsProfitable: false},
	})
	require.Equal(t, big.NewInt(10_000), fee)
}

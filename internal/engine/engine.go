package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clamm-labs/exerciser/internal/chain"
	"github.com/clamm-labs/exerciser/internal/config"
	"github.com/clamm-labs/exerciser/internal/logger"
	"github.com/clamm-labs/exerciser/internal/metrics"
	"github.com/clamm-labs/exerciser/internal/types"
)

// pipsDenominator is the fee basis the pool fee tier and the executor fee
// share: parts per million.
var pipsDenominator = big.NewInt(1_000_000)

// CandidateSource supplies the positions each cycle works through.
type CandidateSource interface {
	GetExpiringPositions(ctx context.Context) ([]types.Position, error)
	GetExpiredPositions(ctx context.Context) ([]types.Position, error)
}

// ProfitabilityCalculator is the evaluator surface the engine drives.
type ProfitabilityCalculator interface {
	Calculate(ctx context.Context, req types.ProfitabilityRequest) types.ProfitabilityResult
	ResolveMetadata(ctx context.Context, chainID uint64, market, pool common.Address) (types.MarketMetadata, error)
	CleanupCache()
}

// TxSubmitter broadcasts the constructed calls.
type TxSubmitter interface {
	SubmitAutoExercise(ctx context.Context, chainID uint64, params types.ExerciseParams, executorFee *big.Int) (common.Hash, error)
	SubmitSettle(ctx context.Context, chainID uint64, market common.Address, params types.SettleParams) (common.Hash, error)
}

// CycleStats summarizes the engine's most recent cycle for the health
// endpoint.
type CycleStats struct {
	CompletedAt time.Time `json:"completed_at"`
	Expiring    int       `json:"expiring_positions"`
	Expired     int       `json:"expired_positions"`
	Submitted   int       `json:"submitted_transactions"`
	Failures    int       `json:"failures"`
}

// Engine is the settlement orchestrator: a single control loop that discovers
// expiring and expired positions and drives them through exercise or
// settlement, isolating each position's failure from the rest.
type Engine struct {
	logger    zerolog.Logger
	source    CandidateSource
	calc      ProfitabilityCalculator
	submitter TxSubmitter

	pollInterval    time.Duration
	cleanupInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	last    CycleStats
}

// Config holds the dependencies for creating an Engine.
type Config struct {
	Source          CandidateSource
	Calculator      ProfitabilityCalculator
	Submitter       TxSubmitter
	PollInterval    time.Duration
	CleanupInterval time.Duration
}

// New creates an engine with dependency injection, validating every
// collaborator up front.
func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("candidate source cannot be nil")
	}
	if cfg.Calculator == nil {
		return nil, fmt.Errorf("profitability calculator cannot be nil")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("transaction submitter cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("cleanup interval must be positive")
	}

	return &Engine{
		logger:          logger.GetForComponent("settlement_engine"),
		source:          cfg.Source,
		calc:            cfg.Calculator,
		submitter:       cfg.Submitter,
		pollInterval:    cfg.PollInterval,
		cleanupInterval: cfg.CleanupInterval,
	}, nil
}

// Start launches the control loop. Calling Start on a running engine is a
// warned no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Warn().Msg("Start called on a running engine, ignoring")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info().
		Dur("pollInterval", e.pollInterval).
		Dur("cleanupInterval", e.cleanupInterval).
		Msg("Starting settlement engine loop")

	go e.run(ctx)
}

// Stop ends the loop and waits for the in-flight cycle to finish. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done
	e.logger.Info().Msg("Settlement engine stopped")
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// LastCycle returns the stats of the most recently completed cycle.
func (e *Engine) LastCycle() CycleStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// run owns the delay and the stop signal; cycles themselves are in RunCycle
// so they stay unit-testable without real timers.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	cleanup := time.NewTicker(e.cleanupInterval)
	defer cleanup.Stop()
	poll := time.NewTicker(e.pollInterval)
	defer poll.Stop()

	// First cycle immediately.
	e.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopped")
			return
		case <-cleanup.C:
			e.calc.CleanupCache()
		case <-poll.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle executes one discovery-and-dispatch pass: expiring positions
// first, then expired ones. No error escapes: a failed poll skips that list
// for this cycle, and a failed position is logged and does not abort the
// batch.
func (e *Engine) RunCycle(ctx context.Context) {
	cycleStart := time.Now()
	cycleLogger := e.logger.With().Str("cycle_id", uuid.New().String()).Logger()
	stats := CycleStats{}

	expiring, err := e.source.GetExpiringPositions(ctx)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to fetch expiring positions, skipping this poll")
	} else {
		stats.Expiring = len(expiring)
		for _, position := range expiring {
			if ctx.Err() != nil {
				return
			}
			submitted, err := e.processExpiring(ctx, cycleLogger, position)
			if err != nil {
				stats.Failures++
				metrics.PositionsProcessed.WithLabelValues("expiring", "error").Inc()
				cycleLogger.Error().Err(err).
					Str("positionID", position.ID).
					Uint64("chainID", position.ChainID).
					Str("market", position.Market.Hex()).
					Msg("Expiring position failed, continuing with next")
				continue
			}
			if submitted {
				stats.Submitted++
			}
			metrics.PositionsProcessed.WithLabelValues("expiring", "ok").Inc()
		}
	}

	expired, err := e.source.GetExpiredPositions(ctx)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to fetch expired positions, skipping this poll")
	} else {
		stats.Expired = len(expired)
		for _, position := range expired {
			if ctx.Err() != nil {
				return
			}
			submitted, err := e.processExpired(ctx, cycleLogger, position)
			if err != nil {
				stats.Failures++
				metrics.PositionsProcessed.WithLabelValues("expired", "error").Inc()
				cycleLogger.Error().Err(err).
					Str("positionID", position.ID).
					Uint64("chainID", position.ChainID).
					Str("market", position.Market.Hex()).
					Msg("Expired position failed, continuing with next")
				continue
			}
			if submitted {
				stats.Submitted++
			}
			metrics.PositionsProcessed.WithLabelValues("expired", "ok").Inc()
		}
	}

	stats.CompletedAt = time.Now()
	e.mu.Lock()
	e.last = stats
	e.mu.Unlock()

	metrics.CyclesTotal.Inc()
	cycleLogger.Info().
		Int("expiring", stats.Expiring).
		Int("expired", stats.Expired).
		Int("failures", stats.Failures).
		Str("duration", time.Since(cycleStart).String()).
		Msg("Cycle completed")
}

// processExpiring evaluates an expiring position and submits an auto-exercise
// call when any of its ranges is worth exercising.
func (e *Engine) processExpiring(ctx context.Context, log zerolog.Logger, position types.Position) (bool, error) {
	request := buildRequest(position)
	result := e.calc.Calculate(ctx, request)

	totalLiquidity := big.NewInt(0)
	for _, liq := range result.ExerciseParams.LiquidityToExercise {
		if liq != nil {
			totalLiquidity.Add(totalLiquidity, liq)
		}
	}
	if totalLiquidity.Sign() == 0 {
		log.Debug().Str("positionID", position.ID).Msg("Nothing to exercise")
		return false, nil
	}

	executorFee := executorFee(result.Details)

	hash, err := e.submitter.SubmitAutoExercise(ctx, position.ChainID, result.ExerciseParams, executorFee)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("auto_exercise", "error").Inc()
		return false, fmt.Errorf("auto-exercise submission: %w", err)
	}
	metrics.SubmissionsTotal.WithLabelValues("auto_exercise", "ok").Inc()

	log.Info().
		Str("positionID", position.ID).
		Str("totalProfit", result.TotalProfit.String()).
		Str("executorFee", executorFee.String()).
		Str("txHash", hash.Hex()).
		Msg("Auto-exercise submitted")
	return true, nil
}

// processExpired builds settlement parameters for an expired position and
// submits the settle call. Settlement does not re-check profitability: it is
// obligatory cleanup, so every swap blob carries a zero minimum output.
func (e *Engine) processExpired(ctx context.Context, log zerolog.Logger, position types.Position) (bool, error) {
	md, err := e.calc.ResolveMetadata(ctx, position.ChainID, position.Market, position.Pool)
	if err != nil {
		return false, fmt.Errorf("metadata: %w", err)
	}
	swapper, err := config.SwapperAddress(position.ChainID)
	if err != nil {
		return false, err
	}

	params := types.SettleParams{
		OptionID:          position.ID,
		Swapper:           make([]common.Address, 0, len(position.SubPositions)),
		SwapData:          make([][]byte, 0, len(position.SubPositions)),
		LiquidityToSettle: make([]*big.Int, 0, len(position.SubPositions)),
	}
	totalLiquidity := big.NewInt(0)

	for i, sub := range position.SubPositions {
		liquidity, anomalous := sub.SettleableLiquidity()
		if anomalous {
			log.Warn().
				Str("positionID", position.ID).
				Int("subPosition", i).
				Msg("Negative settlement liquidity clamped to zero, upstream data looks corrupted")
		}
		swapData, err := chain.EncodeSwapData(md.Fee, big.NewInt(0))
		if err != nil {
			return false, err
		}
		params.Swapper = append(params.Swapper, swapper)
		params.SwapData = append(params.SwapData, swapData)
		params.LiquidityToSettle = append(params.LiquidityToSettle, liquidity)
		totalLiquidity.Add(totalLiquidity, liquidity)
	}

	if totalLiquidity.Sign() == 0 {
		log.Debug().Str("positionID", position.ID).Msg("Nothing to settle")
		return false, nil
	}

	hash, err := e.submitter.SubmitSettle(ctx, position.ChainID, position.Market, params)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("settle", "error").Inc()
		return false, fmt.Errorf("settle submission: %w", err)
	}
	metrics.SubmissionsTotal.WithLabelValues("settle", "ok").Inc()

	log.Info().
		Str("positionID", position.ID).
		Str("liquidityToSettle", totalLiquidity.String()).
		Str("txHash", hash.Hex()).
		Msg("Settlement submitted")
	return true, nil
}

// buildRequest derives the profitability request from a position's live
// liquidity figures.
func buildRequest(position types.Position) types.ProfitabilityRequest {
	ranges := make([]types.TickRange, len(position.SubPositions))
	for i, sub := range position.SubPositions {
		liquidity := big.NewInt(0)
		if sub.LiquidityAtLive != nil {
			liquidity = sub.LiquidityAtLive
		}
		ranges[i] = types.TickRange{
			TickLower: sub.TickLower,
			TickUpper: sub.TickUpper,
			Liquidity: liquidity,
		}
	}
	return types.ProfitabilityRequest{
		ChainID:  position.ChainID,
		Market:   position.Market,
		Pool:     position.Pool,
		OptionID: position.ID,
		IsCall:   position.IsCall,
		Ranges:   ranges,
	}
}

// executorFee is a fixed fraction of the exercised notional, in the same
// parts-per-million basis as the pool fee tier.
func executorFee(details []types.SubPositionProfit) *big.Int {
	notional := big.NewInt(0)
	for _, detail := range details {
		if detail.IsProfitable && detail.AmountLocked != nil {
			notional.Add(notional, detail.AmountLocked)
		}
	}
	fee := new(big.Int).Mul(notional, new(big.Int).SetUint64(config.ExecutorFeePips))
	return fee.Div(fee, pipsDenominator)
}

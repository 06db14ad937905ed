package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/clamm-labs/exerciser/internal/config"
	"github.com/clamm-labs/exerciser/internal/logger"
	"github.com/clamm-labs/exerciser/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidKey        = errors.New("invalid keeper private key")
	ErrInvalidOptionID   = errors.New("invalid option id")
	ErrTxBuildFailed     = errors.New("transaction build failed")
	ErrTxSignFailed      = errors.New("transaction signing failed")
	ErrTxBroadcastFailed = errors.New("transaction broadcast failed")
)

// txBackend is the slice of the RPC client the submitter needs. Satisfied by
// *ethclient.Client.
type txBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// Submitter signs and broadcasts auto-exercise and settle transactions.
// Submission is fire-once: the transaction hash is returned without waiting
// for confirmation, and failures are reported to the caller for logging, not
// retried.
type Submitter struct {
	logger  zerolog.Logger
	key     *ecdsa.PrivateKey
	from    common.Address
	backend func(chainID uint64) (txBackend, error)
}

// NewSubmitter creates a submitter signing with the configured keeper key and
// sending through the registry's per-chain clients.
func NewSubmitter(registry *Registry) (*Submitter, error) {
	key, err := crypto.HexToECDSA(config.KeeperPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	return &Submitter{
		logger: logger.GetForComponent("tx_submitter"),
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		backend: func(chainID uint64) (txBackend, error) {
			return registry.Client(chainID)
		},
	}, nil
}

// From returns the keeper's signing address.
func (s *Submitter) From() common.Address {
	return s.from
}

// SubmitAutoExercise broadcasts an autoExercise call carrying the exercise
// parameters and the executor fee.
func (s *Submitter) SubmitAutoExercise(ctx context.Context, chainID uint64, params types.ExerciseParams, executorFee *big.Int) (common.Hash, error) {
	target, err := config.AutoExerciseAddress(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	optionID, err := parseOptionID(params.OptionID)
	if err != nil {
		return common.Hash{}, err
	}
	if executorFee == nil {
		executorFee = big.NewInt(0)
	}

	data, err := autoExerciseABI.Pack("autoExercise",
		optionID, executorFee, params.Swapper, params.SwapData, params.LiquidityToExercise)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: autoExercise: %w", ErrTxBuildFailed, err)
	}

	return s.submit(ctx, chainID, target, data)
}

// SubmitSettle broadcasts a settleOption call against the option market.
func (s *Submitter) SubmitSettle(ctx context.Context, chainID uint64, market common.Address, params types.SettleParams) (common.Hash, error) {
	optionID, err := parseOptionID(params.OptionID)
	if err != nil {
		return common.Hash{}, err
	}

	data, err := optionMarketABI.Pack("settleOption",
		optionID, params.Swapper, params.SwapData, params.LiquidityToSettle)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: settleOption: %w", ErrTxBuildFailed, err)
	}

	return s.submit(ctx, chainID, market, data)
}

// submit signs and broadcasts a call to target, returning the tx hash.
func (s *Submitter) submit(ctx context.Context, chainID uint64, target common.Address, data []byte) (common.Hash, error) {
	backend, err := s.backend(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: nonce: %w", ErrTxBuildFailed, err)
	}

	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: gas price: %w", ErrTxBuildFailed, err)
	}

	gasLimit, err := backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &target, Data: data})
	if err != nil {
		s.logger.Warn().Err(err).Uint64("chainID", chainID).Str("target", target.Hex()).
			Uint64("fallbackGasLimit", config.DefaultGasLimit).
			Msg("Gas estimation failed, using default gas limit")
		gasLimit = config.DefaultGasLimit
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &target,
		Data:     data,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrTxSignFailed, err)
	}

	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", ErrTxBroadcastFailed, err)
	}

	s.logger.Info().
		Uint64("chainID", chainID).
		Str("target", target.Hex()).
		Str("txHash", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Msg("Transaction broadcast")

	return signed.Hash(), nil
}

func parseOptionID(id string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(id, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOptionID, id)
	}
	return value, nil
}

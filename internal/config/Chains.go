package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrMissingChainConfig indicates a lookup for a chain with no configured
// entry; operations against that chain must be aborted.
var ErrMissingChainConfig = errors.New("missing chain configuration")

// Canonical Multicall3 deployment, the same address on every supported chain.
const defaultMulticallAddress = "0xcA11bde05977b3631167028862bE2a173976CA11"

// ChainEntry is one chain's contract addresses and RPC endpoint, loaded from
// the chains YAML file.
type ChainEntry struct {
	Name         string `yaml:"name"`
	RPCURL       string `yaml:"rpc_url"`
	Swapper      string `yaml:"swapper"`
	Quoter       string `yaml:"quoter"`
	AutoExercise string `yaml:"auto_exercise"`
	Multicall    string `yaml:"multicall"`
}

type chainsFile struct {
	Chains map[uint64]ChainEntry `yaml:"chains"`
}

var chains map[uint64]ChainEntry

// loadChainConfig reads the chains YAML file pointed at by ChainsConfigPath.
// This function is called by LoadConfig() in General.go.
func loadChainConfig() error {
	log.Info().Str("path", ChainsConfigPath).Msg("Loading chain configuration...")

	raw, err := os.ReadFile(ChainsConfigPath)
	if err != nil {
		return fmt.Errorf("failed to read chains config: %w", err)
	}

	var parsed chainsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to parse chains config: %w", err)
	}
	if len(parsed.Chains) == 0 {
		return errors.New("chains config contains no chains")
	}

	chains = parsed.Chains

	log.Debug().Int("chains", len(chains)).Msg("Chain configuration loaded successfully.")
	return nil
}

// SetChains replaces the chain table. Intended for tests.
func SetChains(entries map[uint64]ChainEntry) {
	chains = entries
}

// RPCURL returns the RPC endpoint for a chain, falling back to DefaultRPCURL
// when the chain entry has none.
func RPCURL(chainID uint64) (string, error) {
	if entry, ok := chains[chainID]; ok && entry.RPCURL != "" {
		return entry.RPCURL, nil
	}
	if DefaultRPCURL != "" {
		return DefaultRPCURL, nil
	}
	return "", fmt.Errorf("%w: no rpc_url for chain %d", ErrMissingChainConfig, chainID)
}

// SwapperAddress returns the swapper contract for a chain.
func SwapperAddress(chainID uint64) (common.Address, error) {
	return chainAddress(chainID, "swapper", func(e ChainEntry) string { return e.Swapper })
}

// QuoterAddress returns the quoter contract for a chain.
func QuoterAddress(chainID uint64) (common.Address, error) {
	return chainAddress(chainID, "quoter", func(e ChainEntry) string { return e.Quoter })
}

// AutoExerciseAddress returns the auto-exercise contract for a chain.
func AutoExerciseAddress(chainID uint64) (common.Address, error) {
	return chainAddress(chainID, "auto_exercise", func(e ChainEntry) string { return e.AutoExercise })
}

// MulticallAddress returns the Multicall3 contract for a chain, defaulting to
// the canonical deployment when not overridden.
func MulticallAddress(chainID uint64) (common.Address, error) {
	if entry, ok := chains[chainID]; ok && entry.Multicall != "" {
		if !common.IsHexAddress(entry.Multicall) {
			return common.Address{}, fmt.Errorf("%w: invalid multicall address for chain %d", ErrMissingChainConfig, chainID)
		}
		return common.HexToAddress(entry.Multicall), nil
	}
	return common.HexToAddress(defaultMulticallAddress), nil
}

func chainAddress(chainID uint64, field string, get func(ChainEntry) string) (common.Address, error) {
	entry, ok := chains[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: chain %d not configured", ErrMissingChainConfig, chainID)
	}
	value := get(entry)
	if value == "" {
		return common.Address{}, fmt.Errorf("%w: no %s for chain %d", ErrMissingChainConfig, field, chainID)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: invalid %s for chain %d: %s", ErrMissingChainConfig, field, chainID, value)
	}
	return common.HexToAddress(value), nil
}

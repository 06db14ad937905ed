package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/clamm-labs/exerciser/internal/config"
	"github.com/clamm-labs/exerciser/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrRPCConnectionFailed = errors.New("RPC connection failed")
)

var clientLogger = logger.GetForComponent("chain_registry")

// Caller is the read-only contract call capability the batched readers need.
// *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// CallerSource hands out per-chain callers. Implemented by Registry; tests
// substitute fakes.
type CallerSource interface {
	Caller(chainID uint64) (Caller, error)
}

// Registry owns the per-chain RPC clients. Clients are dialed lazily on first
// use and cached by chain id; they are read-only after construction and safe
// to share across concurrent callers.
type Registry struct {
	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
	dial    func(url string) (*ethclient.Client, error)
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uint64]*ethclient.Client),
		dial:    ethclient.Dial,
	}
}

// Client returns the RPC client for a chain, dialing it on first use. The RPC
// endpoint comes from the chain configuration, with the default URL fallback.
func (r *Registry) Client(chainID uint64) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[chainID]; ok {
		return client, nil
	}

	url, err := config.RPCURL(chainID)
	if err != nil {
		return nil, err
	}

	client, err := r.dial(url)
	if err != nil {
		return nil, fmt.Errorf("%w: chain %d: %w", ErrRPCConnectionFailed, chainID, err)
	}

	clientLogger.Info().Uint64("chainID", chainID).Msg("Dialed RPC client")
	r.clients[chainID] = client
	return client, nil
}

// Caller implements CallerSource.
func (r *Registry) Caller(chainID uint64) (Caller, error) {
	return r.Client(chainID)
}

// Close closes every dialed client. The registry must not be used afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for chainID, client := range r.clients {
		client.Close()
		delete(r.clients, chainID)
	}
}

/*

This file fetches candidate option positions from the indexer API. The
indexer is the source of truth for which positions are approaching expiry and
which are past it; a failed poll is logged by the caller and that cycle is
skipped.

*/

package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clamm-labs/exerciser/internal/logger"
	"github.com/clamm-labs/exerciser/internal/types"
)

var positionLogger = logger.GetForComponent("position_retriever")

var (
	ErrIndexerRequest  = errors.New("indexer request failed")
	ErrInvalidPosition = errors.New("invalid position data received")
)

const (
	expiringPath    = "/clamm/positions/expiring"
	expiredPath     = "/clamm/positions/expired"
	requestTimeout  = 30 * time.Second
	maxResponseSize = 16 << 20
)

// Client retrieves candidate positions from the indexer API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an indexer client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// apiSubPosition mirrors the indexer's internal option representation.
// Liquidity figures arrive as decimal strings.
type apiSubPosition struct {
	TickLower          int    `json:"tickLower"`
	TickUpper          int    `json:"tickUpper"`
	LiquidityAtOpen    string `json:"liquidityAtOpen"`
	LiquidityExercised string `json:"liquidityExercised"`
	LiquiditySettled   string `json:"liquiditySettled"`
	LiquidityAtLive    string `json:"liquidityAtLive"`
}

type apiPosition struct {
	ID        string           `json:"id"`
	Market    string           `json:"market"`
	Pool      string           `json:"pool"`
	ChainID   uint64           `json:"chainId"`
	IsCall    bool             `json:"isCall"`
	CreatedAt int64            `json:"createdAt"`
	ExpiresAt int64            `json:"expiry"`
	Options   []apiSubPosition `json:"internalOptions"`
}

type positionsResponse struct {
	Positions []apiPosition `json:"positions"`
}

// GetExpiringPositions returns positions approaching expiry that may be worth
// exercising.
func (c *Client) GetExpiringPositions(ctx context.Context) ([]types.Position, error) {
	return c.fetch(ctx, expiringPath)
}

// GetExpiredPositions returns positions past expiry awaiting settlement.
func (c *Client) GetExpiredPositions(ctx context.Context) ([]types.Position, error) {
	return c.fetch(ctx, expiredPath)
}

func (c *Client) fetch(ctx context.Context, path string) ([]types.Position, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexerRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexerRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrIndexerRequest, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexerRequest, err)
	}

	var parsed positionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexerRequest, err)
	}

	positions := make([]types.Position, 0, len(parsed.Positions))
	for _, raw := range parsed.Positions {
		position, err := convertPosition(raw)
		if err != nil {
			// One malformed position must not hide the rest of the batch.
			positionLogger.Warn().Err(err).Str("positionID", raw.ID).Msg("Skipping malformed position")
			continue
		}
		positions = append(positions, position)
	}

	positionLogger.Debug().Str("path", path).Int("positions", len(positions)).Msg("Fetched candidate positions")
	return positions, nil
}

func convertPosition(raw apiPosition) (types.Position, error) {
	if raw.ID == "" {
		return types.Position{}, fmt.Errorf("%w: missing id", ErrInvalidPosition)
	}
	if !common.IsHexAddress(raw.Market) || !common.IsHexAddress(raw.Pool) {
		return types.Position{}, fmt.Errorf("%w: bad market/pool address for %s", ErrInvalidPosition, raw.ID)
	}
	if raw.ChainID == 0 {
		return types.Position{}, fmt.Errorf("%w: missing chain id for %s", ErrInvalidPosition, raw.ID)
	}
	if len(raw.Options) == 0 {
		return types.Position{}, fmt.Errorf("%w: no internal options for %s", ErrInvalidPosition, raw.ID)
	}

	subs := make([]types.SubPosition, len(raw.Options))
	for i, opt := range raw.Options {
		if opt.TickLower >= opt.TickUpper {
			return types.Position{}, fmt.Errorf("%w: bad tick range [%d, %d) for %s", ErrInvalidPosition, opt.TickLower, opt.TickUpper, raw.ID)
		}
		atOpen, err := parseLiquidity(opt.LiquidityAtOpen)
		if err != nil {
			return types.Position{}, fmt.Errorf("%w: liquidityAtOpen for %s: %w", ErrInvalidPosition, raw.ID, err)
		}
		exercised, err := parseLiquidity(opt.LiquidityExercised)
		if err != nil {
			return types.Position{}, fmt.Errorf("%w: liquidityExercised for %s: %w", ErrInvalidPosition, raw.ID, err)
		}
		settled, err := parseLiquidity(opt.LiquiditySettled)
		if err != nil {
			return types.Position{}, fmt.Errorf("%w: liquiditySettled for %s: %w", ErrInvalidPosition, raw.ID, err)
		}
		atLive, err := parseLiquidity(opt.LiquidityAtLive)
		if err != nil {
			return types.Position{}, fmt.Errorf("%w: liquidityAtLive for %s: %w", ErrInvalidPosition, raw.ID, err)
		}
		subs[i] = types.SubPosition{
			TickLower:          opt.TickLower,
			TickUpper:          opt.TickUpper,
			LiquidityAtOpen:    atOpen,
			LiquidityExercised: exercised,
			LiquiditySettled:   settled,
			LiquidityAtLive:    atLive,
		}
	}

	return types.Position{
		ID:           raw.ID,
		Market:       common.HexToAddress(raw.Market),
		Pool:         common.HexToAddress(raw.Pool),
		ChainID:      raw.ChainID,
		IsCall:       raw.IsCall,
		CreatedAt:    time.Unix(raw.CreatedAt, 0).UTC(),
		ExpiresAt:    time.Unix(raw.ExpiresAt, 0).UTC(),
		SubPositions: subs,
	}, nil
}

func parseLiquidity(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", value)
	}
	return parsed, nil
}

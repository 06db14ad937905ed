package datafetcher

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const positionsJSON = `{
  "positions": [
    {
      "id": "42",
      "market": "0x1110000000000000000000000000000000000001",
      "pool": "0x2220000000000000000000000000000000000002",
      "chainId": 42161,
      "isCall": true,
      "createdAt": 1756000000,
      "expiry": 1756600000,
      "internalOptions": [
        {
          "tickLower": -60,
          "tickUpper": 60,
          "liquidityAtOpen": "1000000000000000000",
          "liquidityExercised": "0",
          "liquiditySettled": "0",
          "liquidityAtLive": "1000000000000000000"
        }
      ]
    }
  ]
}`

func TestGetExpiringPositions(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(positionsJSON))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	positions, err := client.GetExpiringPositions(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/clamm/positions/expiring", gotPath)
	require.Len(t, positions, 1)

	position := positions[0]
	require.Equal(t, "42", position.ID)
	require.Equal(t, uint64(42161), position.ChainID)
	require.True(t, position.IsCall)
	require.Len(t, position.SubPositions, 1)

	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	require.Equal(t, want, position.SubPositions[0].LiquidityAtLive)
	require.Equal(t, -60, position.SubPositions[0].TickLower)
}

func TestGetExpiredPositionsPath(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"positions":[]}`))
	}))
	defer server.Close()

	positions, err := NewClient(server.URL).GetExpiredPositions(context.Background())
	require.NoError(t, err)
	require.Empty(t, positions)
	require.Equal(t, "/clamm/positions/expired", gotPath)
}

func TestFetchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).GetExpiringPositions(context.Background())
	require.ErrorIs(t, err, ErrIndexerRequest)
}

func TestFetchMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"positions": [`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).GetExpiringPositions(context.Background())
	require.ErrorIs(t, err, ErrIndexerRequest)
}

// One malformed position must be skipped without hiding the rest of the batch.
func TestFetchSkipsMalformedPosition(t *testing.T) {
	payload := `{
      "positions": [
        {"id": "", "market": "x", "pool": "y", "chainId": 0},
        {
          "id": "ok",
          "market": "0x1110000000000000000000000000000000000001",
          "pool": "0x2220000000000000000000000000000000000002",
          "chainId": 1,
          "internalOptions": [
            {"tickLower": -10, "tickUpper": 10, "liquidityAtLive": "5"}
          ]
        },
        {
          "id": "bad-ticks",
          "market": "0x1110000000000000000000000000000000000001",
          "pool": "0x2220000000000000000000000000000000000002",
          "chainId": 1,
          "internalOptions": [
            {"tickLower": 10, "tickUpper": -10}
          ]
        }
      ]
    }`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	positions, err := NewClient(server.URL).GetExpiringPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "ok", positions[0].ID)
	require.Equal(t, big.NewInt(5), positions[0].SubPositions[0].LiquidityAtLive)
	// Missing liquidity strings default to zero.
	require.Zero(t, positions[0].SubPositions[0].LiquidityAtOpen.Sign())
}

func TestParseLiquidity(t *testing.T) {
	t.Run("empty string is zero", func(t *testing.T) {
		v, err := parseLiquidity("")
		require.NoError(t, err)
		require.Zero(t, v.Sign())
	})

	t.Run("rejects non-decimal", func(t *testing.T) {
		_, err := parseLiquidity("0xff")
		require.Error(t, err)
	})
}

package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettleableLiquidity(t *testing.T) {
	t.Run("open minus exercised minus settled", func(t *testing.T) {
		sub := SubPosition{
			LiquidityAtOpen:    big.NewInt(1000),
			LiquidityExercised: big.NewInt(300),
			LiquiditySettled:   big.NewInt(200),
		}
		remaining, anomalous := sub.SettleableLiquidity()
		require.False(t, anomalous)
		require.Equal(t, big.NewInt(500), remaining)
	})

	t.Run("negative result clamps to zero and reports anomaly", func(t *testing.T) {
		sub := SubPosition{
			LiquidityAtOpen:    big.NewInt(100),
			LiquidityExercised: big.NewInt(300),
		}
		remaining, anomalous := sub.SettleableLiquidity()
		require.True(t, anomalous)
		require.Zero(t, remaining.Sign())
	})

	t.Run("nil figures treated as zero", func(t *testing.T) {
		remaining, anomalous := SubPosition{}.SettleableLiquidity()
		require.False(t, anomalous)
		require.Zero(t, remaining.Sign())
	})
}

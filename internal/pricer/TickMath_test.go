package pricer

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad test constant %s", s)
	return v
}

func TestSqrtRatioAtTickKnownValues(t *testing.T) {
	cases := []struct {
		name string
		tick int
		want string
	}{
		{"zero tick is 2^96", 0, "79228162514264337593543950336"},
		{"minimum tick", MinTick, "4295128739"},
		{"maximum tick", MaxTick, "1461446703485210103287273052203988822378723970342"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SqrtRatioAtTick(tc.tick)
			require.NoError(t, err)
			require.Equal(t, mustBig(t, tc.want), got)
		})
	}
}

func TestSqrtRatioAtTickMonotonic(t *testing.T) {
	ticks := []int{MinTick, -500000, -100000, -60, -1, 0, 1, 60, 100000, 500000, MaxTick}

	prev, err := SqrtRatioAtTick(ticks[0])
	require.NoError(t, err)
	for _, tick := range ticks[1:] {
		cur, err := SqrtRatioAtTick(tick)
		require.NoError(t, err)
		require.Equal(t, 1, cur.Cmp(prev), "sqrt ratio must strictly increase, tick %d", tick)
		prev = cur
	}
}

func TestSqrtRatioAtTickOutOfRange(t *testing.T) {
	for _, tick := range []int{MinTick - 1, MaxTick + 1} {
		_, err := SqrtRatioAtTick(tick)
		require.ErrorIs(t, err, ErrTickOutOfRange)
	}
}

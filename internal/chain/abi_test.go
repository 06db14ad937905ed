package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestSelectors(t *testing.T) {
	// First four bytes of keccak256 of the canonical signatures.
	cases := []struct {
		name string
		got  []byte
		want string
	}{
		{"fee()", feeSelector, "ddca3f43"},
		{"token0()", token0Selector, "0dfe1681"},
		{"token1()", token1Selector, "d21220a7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, common.Bytes2Hex(tc.got))
		})
	}
}

func TestQuoteCallEncoding(t *testing.T) {
	quoter := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenIn := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenOut := common.HexToAddress("0x3333333333333333333333333333333333333333")

	call, err := QuoteCall(quoter, tokenIn, tokenOut, 500, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, quoter, call.Target)
	// selector + 5 static words
	require.Len(t, call.CallData, 4+5*32)
}

func TestEncodeSwapData(t *testing.T) {
	t.Run("fee and min amount packed as two words", func(t *testing.T) {
		data, err := EncodeSwapData(3000, big.NewInt(42))
		require.NoError(t, err)
		require.Len(t, data, 64)
		require.Equal(t, big.NewInt(3000), new(big.Int).SetBytes(data[:32]))
		require.Equal(t, big.NewInt(42), new(big.Int).SetBytes(data[32:]))
	})

	t.Run("nil min amount encodes as zero", func(t *testing.T) {
		data, err := EncodeSwapData(500, nil)
		require.NoError(t, err)
		require.Len(t, data, 64)
		require.Zero(t, new(big.Int).SetBytes(data[32:]).Sign())
	})
}

func TestDecodeUint256(t *testing.T) {
	t.Run("short data rejected", func(t *testing.T) {
		_, err := DecodeUint256([]byte{0x01})
		require.ErrorIs(t, err, ErrShortReturn)
	})

	t.Run("full word decoded", func(t *testing.T) {
		word := make([]byte, 32)
		word[31] = 0x2a
		value, err := DecodeUint256(word)
		require.NoError(t, err)
		require.Equal(t, big.NewInt(42), value)
	})
}

func TestDecodeAddress(t *testing.T) {
	addr := common.HexToAddress("0x4444444444444444444444444444444444444444")
	word := make([]byte, 32)
	copy(word[12:], addr.Bytes())

	got, err := DecodeAddress(word)
	require.NoError(t, err)
	require.Equal(t, addr, got)
}

func TestDecodeUint24(t *testing.T) {
	t.Run("fee tier decoded", func(t *testing.T) {
		word := make([]byte, 32)
		word[30], word[31] = 0x0b, 0xb8 // 3000
		fee, err := DecodeUint24(word)
		require.NoError(t, err)
		require.Equal(t, uint32(3000), fee)
	})

	t.Run("overflow rejected", func(t *testing.T) {
		word := make([]byte, 32)
		word[28] = 0x01 // 2^24
		_, err := DecodeUint24(word)
		require.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestParseOptionID(t *testing.T) {
	t.Run("decimal id", func(t *testing.T) {
		value, err := parseOptionID("123456789")
		require.NoError(t, err)
		require.Equal(t, big.NewInt(123456789), value)
	})

	for _, bad := range []string{"", "abc", "-5", "1.5"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := parseOptionID(bad)
			require.ErrorIs(t, err, ErrInvalidOptionID)
		})
	}
}

package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToMinorTwoDecimals(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"12.34", 1234},
		{"12.345", 1235}, // half-up on the first dropped digit
		{"12.344", 1234},
		{"12.3", 1230},
		{"12", 1200},
		{"0.01", 1},
		{"-4.50", -450},
		{"1,234.56", 123456},
		{"1 234.56", 123456},
		{"", 0},
		{"   ", 0},
		{".5", 50},
		{"0.005", 1},
		{"abc", 0},
		{"12.3x", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ToMinor(tc.in, 2), "input %q", tc.in)
	}
}

func TestToMinorZeroDecimals(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1500", 1500},
		{"1500.4", 1500},
		{"1500.5", 1501},
		{"1,500", 1500},
		{"-200", -200},
		{"", 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ToMinor(tc.in, 0), "input %q", tc.in)
	}
}

func TestRoundTripThroughMinor(t *testing.T) {
	require.Equal(t, "12.35", MinorToDecimal(ToMinor("12.345", 2), 2))
	require.Equal(t, "0.00", MinorToDecimal(0, 2))
	require.Equal(t, "-4.05", MinorToDecimal(-405, 2))
	require.Equal(t, "1500", MinorToDecimal(1500, 0))
	require.Equal(t, "-7", MinorToDecimal(-7, 0))
}

func TestFloatToMinor(t *testing.T) {
	require.Equal(t, int64(1234), FloatToMinor(12.34, 2))
	require.Equal(t, int64(13), FloatToMinor(12.5, 0))
	require.Equal(t, int64(-13), FloatToMinor(-12.5, 0))
	require.Equal(t, int64(0), FloatToMinor(nan(), 2))
}

func nan() float64 {
	f := 0.0
	return f / f
}

func TestClampNonNegative(t *testing.T) {
	require.Equal(t, int64(0), ClampNonNegative(-100))
	require.Equal(t, int64(42), ClampNonNegative(42))
}

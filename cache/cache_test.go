package cache

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want *big.Int
		ok   bool
	}{
		{in: "0", want: big.NewInt(0), ok: true},
		{in: "2000000000000000000", want: big.NewInt(2e18), ok: true},
		{in: "0x10", want: big.NewInt(16), ok: true},
		{in: "", ok: false},
		{in: "-1", ok: false},
		{in: "abc", ok: false},
		{in: UnlimitedApproval, ok: false},
	}
	for _, tc := range tests {
		got, ok := ParseAmount(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			require.Zero(t, tc.want.Cmp(got), tc.in)
		}
	}
}

func TestParseApproval(t *testing.T) {
	t.Parallel()

	got, ok := ParseApproval(UnlimitedApproval)
	require.True(t, ok)
	require.Zero(t, MaxAmount.Cmp(got))

	// Callers can't alter MaxAmount through the returned value.
	got.SetInt64(0)
	require.Equal(t, 256, MaxAmount.BitLen())

	got, ok = ParseApproval("42")
	require.True(t, ok)
	require.Zero(t, big.NewInt(42).Cmp(got))

	_, ok = ParseApproval("gte_u32")
	require.False(t, ok)
}

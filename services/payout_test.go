package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePayout(t *testing.T) {
	tests := []struct {
		stake, fee, payout int64
	}{
		{stake: 100_000_000, fee: 20_000_000, payout: 180_000_000},
		{stake: 50_000_000, fee: 10_000_000, payout: 90_000_000},
		{stake: 1, fee: 0, payout: 2},
		{stake: 4, fee: 0, payout: 8},
		{stake: 5, fee: 1, payout: 9},
		{stake: 7, fee: 1, payout: 13},
		{stake: 99, fee: 19, payout: 179},
	}
	for _, tt := range tests {
		got, err := ComputePayout(tt.stake, 10)
		require.NoError(t, err)
		assert.Equal(t, Payout{WinnerPayout: tt.payout, PlatformFee: tt.fee}, got, "stake %d", tt.stake)
	}
}

func TestComputePayoutConservesPot(t *testing.T) {
	for s := int64(1); s <= 5000; s++ {
		p, err := ComputePayout(s, 10)
		require.NoError(t, err)
		assert.Equal(t, 2*s, p.WinnerPayout+p.PlatformFee)
		assert.Equal(t, (2*s*10)/100, p.PlatformFee)
	}

	p, err := ComputePayout(MaxStakeLamports, 100)
	require.NoError(t, err)
	assert.Equal(t, 2*MaxStakeLamports, p.PlatformFee)
	assert.Zero(t, p.WinnerPayout)
}

func TestComputePayoutRejectsBadInput(t *testing.T) {
	for _, tt := range []struct{ stake, pct int64 }{
		{0, 10}, {-5, 10}, {MaxStakeLamports + 1, 10}, {100, -1}, {100, 101},
	} {
		_, err := ComputePayout(tt.stake, tt.pct)
		assert.Equal(t, KindInvalidInput, KindOf(err), "stake %d pct %d", tt.stake, tt.pct)
	}
}

func TestFormatSOL(t *testing.T) {
	assert.Equal(t, "0.1", FormatSOL(100_000_000))
	assert.Equal(t, "0.18", FormatSOL(180_000_000))
	assert.Equal(t, "0.000000001", FormatSOL(1))
	assert.Equal(t, "2", FormatSOL(2_000_000_000))
}

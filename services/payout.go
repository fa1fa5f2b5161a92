package services

import (
	"math"
)

// MaxStakeLamports keeps 2*stake*100 inside int64 so fee math cannot overflow.
const MaxStakeLamports int64 = math.MaxInt64 / 200

// Payout is the split of a two-sided pot.
type Payout struct {
	WinnerPayout int64 `json:"winnerPayout"`
	PlatformFee  int64 `json:"platformFee"`
}

// ComputePayout splits 2*stake between the winner and the platform. The fee is
// floored, so any remainder goes to the winner.
func ComputePayout(stake, feePercent int64) (Payout, error) {
	if stake <= 0 {
		return Payout{}, InvalidInput("stake must be positive")
	}
	if stake > MaxStakeLamports {
		return Payout{}, InvalidInput("stake exceeds %d lamports", MaxStakeLamports)
	}
	if feePercent < 0 || feePercent > 100 {
		return Payout{}, InvalidInput("fee percent must be between 0 and 100")
	}
	pot := 2 * stake
	fee := pot * feePercent / 100
	return Payout{WinnerPayout: pot - fee, PlatformFee: fee}, nil
}

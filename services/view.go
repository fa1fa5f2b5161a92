package services

import (
	"wager-settlement-system/models"

	"github.com/shopspring/decimal"
)

const lamportsExponent = -9

// FormatSOL renders lamports as a decimal SOL amount without float rounding.
func FormatSOL(lamports int64) string {
	return decimal.New(lamports, lamportsExponent).String()
}

// WagerView is the wire shape of a wager.
type WagerView struct {
	*models.WagerRecord
	StakeSOL string `json:"stake_sol"`
	PotSOL   string `json:"pot_sol"`
}

func NewWagerView(w *models.WagerRecord) WagerView {
	return WagerView{
		WagerRecord: w,
		StakeSOL:    FormatSOL(w.StakeLamports),
		PotSOL:      decimal.New(w.StakeLamports, lamportsExponent).Mul(decimal.NewFromInt(2)).String(),
	}
}

func NewWagerViews(ws []models.WagerRecord) []WagerView {
	out := make([]WagerView, 0, len(ws))
	for i := range ws {
		out = append(out, NewWagerView(&ws[i]))
	}
	return out
}

// LedgerView is the wire shape of a ledger row.
type LedgerView struct {
	*models.LedgerEntry
	AmountSOL string `json:"amount_sol"`
}

func NewLedgerViews(entries []models.LedgerEntry) []LedgerView {
	out := make([]LedgerView, 0, len(entries))
	for i := range entries {
		out = append(out, LedgerView{LedgerEntry: &entries[i], AmountSOL: FormatSOL(entries[i].AmountLamports)})
	}
	return out
}

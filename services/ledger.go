// services/ledger.go
package services

import (
	"context"
	"fmt"
	"time"

	"wager-settlement-system/models"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

const reconcileLookback = 24 * time.Hour

func settlementKey(wagerID string, kind models.LedgerKind, identity string) string {
	return fmt.Sprintf("%s:%s:%s", wagerID, kind, identity)
}

func depositKey(externalTxRef string) string {
	return "deposit:" + externalTxRef
}

// expectedLedger lists the confirmed rows a terminal wager must own.
func (s *SettlementService) expectedLedger(w *models.WagerRecord) ([]models.LedgerEntry, error) {
	row := func(kind models.LedgerKind, identity string, amount int64) models.LedgerEntry {
		key := settlementKey(w.ID, kind, identity)
		return models.LedgerEntry{
			WagerID:        w.ID,
			Kind:           kind,
			Identity:       identity,
			AmountLamports: amount,
			Status:         models.LedgerStatusConfirmed,
			SettlementKey:  &key,
		}
	}

	switch {
	case w.Status == models.WagerStatusCancelled:
		return []models.LedgerEntry{row(models.LedgerKindCancelRefund, w.PlayerA, w.StakeLamports)}, nil
	case w.Status != models.WagerStatusResolved:
		return nil, nil
	case w.Winner == nil:
		if w.PlayerB == nil {
			return nil, fmt.Errorf("draw on wager %s without a second player", w.ID)
		}
		return []models.LedgerEntry{
			row(models.LedgerKindDrawRefund, w.PlayerA, w.StakeLamports),
			row(models.LedgerKindDrawRefund, *w.PlayerB, w.StakeLamports),
		}, nil
	}

	payout, err := ComputePayout(w.StakeLamports, s.FeePercent)
	if err != nil {
		return nil, err
	}
	rows := []models.LedgerEntry{row(models.LedgerKindWinnerPayout, *w.Winner, payout.WinnerPayout)}
	if payout.PlatformFee > 0 {
		rows = append(rows, row(models.LedgerKindPlatformFee, s.PlatformIdentity, payout.PlatformFee))
	}
	return rows, nil
}

// writeSettlementLedger appends every expected row for a terminal wager. Rows
// already present are skipped by their settlement key. The first failure is
// returned after all rows have been attempted.
func (s *SettlementService) writeSettlementLedger(ctx context.Context, w *models.WagerRecord) error {
	rows, err := s.expectedLedger(w)
	if err != nil {
		return Internal("plan ledger", err)
	}
	var firstErr error
	for i := range rows {
		if _, err := s.appendLedger(ctx, &rows[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// appendLedger inserts a confirmed row, doing nothing if its key already exists.
// It reports whether a new row was written. On failure a failed row is left
// behind for reconciliation.
func (s *SettlementService) appendLedger(ctx context.Context, entry *models.LedgerEntry) (bool, error) {
	entry.ID = s.newLedgerID()
	entry.CreatedAt = s.Clock.Now().UTC()
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "settlement_key"}}, DoNothing: true}).
		Create(entry)
	if res.Error == nil {
		if res.RowsAffected > 0 {
			ledgerWrites.WithLabelValues(string(entry.Kind), string(models.LedgerStatusConfirmed)).Inc()
			settledLamports.WithLabelValues(string(entry.Kind)).Add(float64(entry.AmountLamports))
		}
		return res.RowsAffected > 0, nil
	}

	s.Log.Error("[LEDGER] append failed",
		zap.String("wager_id", entry.WagerID),
		zap.String("kind", string(entry.Kind)),
		zap.String("identity", entry.Identity),
		zap.Error(res.Error))
	ledgerWrites.WithLabelValues(string(entry.Kind), string(models.LedgerStatusFailed)).Inc()

	msg := res.Error.Error()
	failed := models.LedgerEntry{
		ID:             s.newLedgerID(),
		WagerID:        entry.WagerID,
		Kind:           entry.Kind,
		Identity:       entry.Identity,
		AmountLamports: entry.AmountLamports,
		ExternalTxRef:  entry.ExternalTxRef,
		Status:         models.LedgerStatusFailed,
		ErrorMessage:   &msg,
		CreatedAt:      s.Clock.Now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(&failed).Error; err != nil {
		s.Log.Error("[LEDGER] could not record failed attempt", zap.String("wager_id", entry.WagerID), zap.Error(err))
	}
	return false, Internal("append ledger", res.Error)
}

func (s *SettlementService) newLedgerID() string {
	return ulid.MustNew(ulid.Timestamp(s.Clock.Now()), ulid.DefaultEntropy()).String()
}

// ReconcileLedger rewrites missing confirmed rows for wagers that reached a
// terminal status within the lookback window. It returns how many rows it wrote.
func (s *SettlementService) ReconcileLedger(ctx context.Context) (int, error) {
	since := s.Clock.Now().UTC().Add(-reconcileLookback)

	var wagers []models.WagerRecord
	if err := s.DB.WithContext(ctx).
		Where("status IN ? AND resolved_at >= ?", []models.WagerStatus{models.WagerStatusResolved, models.WagerStatusCancelled}, since).
		Find(&wagers).Error; err != nil {
		return 0, Internal("load terminal wagers", err)
	}
	if len(wagers) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(wagers))
	for _, w := range wagers {
		ids = append(ids, w.ID)
	}
	type confirmedCount struct {
		WagerID string
		N       int
	}
	var counts []confirmedCount
	if err := s.DB.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select("wager_id, COUNT(*) AS n").
		Where("wager_id IN ? AND status = ? AND kind <> ?", ids, models.LedgerStatusConfirmed, models.LedgerKindDepositAck).
		Group("wager_id").
		Scan(&counts).Error; err != nil {
		return 0, Internal("count ledger rows", err)
	}
	have := make(map[string]int, len(counts))
	for _, c := range counts {
		have[c.WagerID] = c.N
	}

	written := 0
	for i := range wagers {
		w := &wagers[i]
		rows, err := s.expectedLedger(w)
		if err != nil {
			s.Log.Error("[LEDGER] cannot plan reconciliation", zap.String("wager_id", w.ID), zap.Error(err))
			continue
		}
		if have[w.ID] >= len(rows) {
			continue
		}
		for j := range rows {
			ok, err := s.appendLedger(ctx, &rows[j])
			if err != nil {
				continue
			}
			if ok {
				written++
			}
		}
	}
	if written > 0 {
		s.Log.Info("[LEDGER] reconciliation wrote missing rows", zap.Int("rows", written))
	}
	return written, nil
}

// LedgerForWager returns a wager's ledger rows in creation order.
func (s *SettlementService) LedgerForWager(ctx context.Context, wagerID string) ([]models.LedgerEntry, error) {
	if err := validateWagerID(wagerID); err != nil {
		return nil, err
	}
	var entries []models.LedgerEntry
	if err := s.DB.WithContext(ctx).Where("wager_id = ?", wagerID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, Internal("ledger for wager", err)
	}
	return entries, nil
}

// LedgerForIdentity returns the newest rows touching identity.
func (s *SettlementService) LedgerForIdentity(ctx context.Context, identity string, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := s.DB.WithContext(ctx).Where("identity = ?", identity).
		Order("id DESC").Limit(clampLimit(limit)).Find(&entries).Error; err != nil {
		return nil, Internal("ledger for identity", err)
	}
	return entries, nil
}

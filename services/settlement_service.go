// services/settlement_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"wager-settlement-system/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReceiptArchiver stores a settlement receipt outside the database.
// PutReceipt returns the address the receipt can be fetched from.
type ReceiptArchiver interface {
	PutReceipt(ctx context.Context, key string, body []byte) (string, error)
}

// SettlementService moves wagers into their terminal status and owns the ledger.
type SettlementService struct {
	DB               *gorm.DB
	Clock            clockwork.Clock
	Log              *zap.Logger
	PlatformIdentity string
	FeePercent       int64
	Archiver         ReceiptArchiver // optional
}

func NewSettlementService(db *gorm.DB, clock clockwork.Clock, log *zap.Logger, platformIdentity string, feePercent int64) *SettlementService {
	return &SettlementService{
		DB:               db,
		Clock:            clock,
		Log:              log,
		PlatformIdentity: platformIdentity,
		FeePercent:       feePercent,
	}
}

// settleableStatuses are the statuses a winner or draw settlement may leave.
var settleableStatuses = []models.WagerStatus{
	models.WagerStatusJoined,
	models.WagerStatusVoting,
	models.WagerStatusRetractable,
	models.WagerStatusDisputed,
}

func isSettleable(status models.WagerStatus) bool {
	return containsStatus(settleableStatuses, status)
}

// SettlementResult describes a settled wager. AlreadySettled is set when the
// call found the wager resolved with the same outcome and changed nothing.
type SettlementResult struct {
	Wager          *models.WagerRecord
	Payout         Payout
	RefundAmount   int64
	AlreadySettled bool
}

// ApplyWinnerSettlement resolves the wager for winner, updates both players'
// aggregates in the same transaction and then appends the ledger rows.
// Repeating the call for the same winner is a no-op.
func (s *SettlementService) ApplyWinnerSettlement(ctx context.Context, wagerID, winner string) (res *SettlementResult, err error) {
	defer func() { observe("settle_winner", err) }()

	w, err := loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	if w.PlayerB == nil {
		return nil, InvalidState("wager has no opponent yet")
	}
	if !w.IsParticipant(winner) {
		return nil, InvalidInput("winner must be one of the two players")
	}
	payout, err := ComputePayout(w.StakeLamports, s.FeePercent)
	if err != nil {
		return nil, err
	}
	if w.Status == models.WagerStatusResolved {
		return s.alreadyResolved(ctx, w, &winner, payout)
	}
	if !isSettleable(w.Status) {
		return nil, InvalidState("cannot settle a " + string(w.Status) + " wager")
	}

	loser := w.Opponent(winner)
	now := s.Clock.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.WagerRecord{}).
			Where("id = ? AND status IN ?", w.ID, settleableStatuses).
			Updates(map[string]interface{}{
				"status":      models.WagerStatusResolved,
				"winner":      winner,
				"resolved_at": now,
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return errLostRace
		}
		if err := recordWin(tx, winner, payout.WinnerPayout); err != nil {
			return err
		}
		return recordLoss(tx, loser)
	})
	if errors.Is(err, errLostRace) {
		current, lerr := loadWager(ctx, s.DB, wagerID)
		if lerr != nil {
			return nil, lerr
		}
		if current.Status == models.WagerStatusResolved {
			return s.alreadyResolved(ctx, current, &winner, payout)
		}
		return nil, InvalidState("wager changed while settling, status is now " + string(current.Status))
	}
	if err != nil {
		return nil, Internal("settle winner", err)
	}

	if w, err = loadWager(ctx, s.DB, wagerID); err != nil {
		return nil, err
	}
	s.Log.Info("[SETTLE] wager resolved",
		zap.String("wager_id", w.ID),
		zap.Int64("match_id", w.MatchID),
		zap.String("winner", winner),
		zap.Int64("payout", payout.WinnerPayout),
		zap.Int64("fee", payout.PlatformFee))
	s.finishSettlement(ctx, w)
	return &SettlementResult{Wager: w, Payout: payout}, nil
}

// ApplyDrawSettlement resolves the wager without a winner and refunds each
// player's stake. Streaks and win/loss counters are untouched.
func (s *SettlementService) ApplyDrawSettlement(ctx context.Context, wagerID string) (res *SettlementResult, err error) {
	defer func() { observe("settle_draw", err) }()

	w, err := loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	if w.Status == models.WagerStatusResolved {
		return s.alreadyResolved(ctx, w, nil, Payout{})
	}
	if w.PlayerB == nil || !isSettleable(w.Status) {
		return nil, InvalidState("cannot refund a " + string(w.Status) + " wager as a draw")
	}

	upd := s.DB.WithContext(ctx).Model(&models.WagerRecord{}).
		Where("id = ? AND status IN ?", w.ID, settleableStatuses).
		Updates(map[string]interface{}{
			"status":      models.WagerStatusResolved,
			"winner":      nil,
			"resolved_at": s.Clock.Now().UTC(),
		})
	if upd.Error != nil {
		return nil, Internal("settle draw", upd.Error)
	}
	if upd.RowsAffected == 0 {
		current, err := loadWager(ctx, s.DB, wagerID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.WagerStatusResolved {
			return s.alreadyResolved(ctx, current, nil, Payout{})
		}
		return nil, InvalidState("wager changed while settling, status is now " + string(current.Status))
	}

	if w, err = loadWager(ctx, s.DB, wagerID); err != nil {
		return nil, err
	}
	s.Log.Info("[SETTLE] wager refunded as draw", zap.String("wager_id", w.ID), zap.Int64("stake", w.StakeLamports))
	s.finishSettlement(ctx, w)
	return &SettlementResult{Wager: w, RefundAmount: w.StakeLamports}, nil
}

// alreadyResolved answers a repeated settlement. A matching outcome only
// backfills missing ledger rows; a different outcome is rejected.
func (s *SettlementService) alreadyResolved(ctx context.Context, w *models.WagerRecord, winner *string, payout Payout) (*SettlementResult, error) {
	if !sameWinner(w.Winner, winner) {
		return nil, InvalidState("wager is already resolved with a different outcome")
	}
	if err := s.writeSettlementLedger(ctx, w); err != nil {
		s.Log.Warn("[SETTLE] ledger backfill incomplete", zap.String("wager_id", w.ID), zap.Error(err))
	}
	result := &SettlementResult{Wager: w, Payout: payout, AlreadySettled: true}
	if winner == nil {
		result.RefundAmount = w.StakeLamports
	}
	return result, nil
}

func sameWinner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// finishSettlement runs after the status commit. Nothing here can undo it.
func (s *SettlementService) finishSettlement(ctx context.Context, w *models.WagerRecord) {
	if err := s.writeSettlementLedger(ctx, w); err != nil {
		s.Log.Warn("[SETTLE] status committed but ledger incomplete, reconciliation will retry",
			zap.String("wager_id", w.ID), zap.Error(err))
	}
	s.archiveReceipt(ctx, w)
}

// RecordEscrowAcknowledgement logs an observed deposit. It never changes the
// wager's status and does not require the depositor to hold a seat yet.
// Repeating a known externalTxRef returns the original row.
func (s *SettlementService) RecordEscrowAcknowledgement(ctx context.Context, wagerID, identity string, amount int64, externalTxRef string) (entry *models.LedgerEntry, err error) {
	defer func() { observe("escrow_ack", err) }()

	externalTxRef = strings.TrimSpace(externalTxRef)
	if externalTxRef == "" || len(externalTxRef) > 128 {
		return nil, InvalidInput("externalTxRef is required and must be at most 128 characters")
	}
	if amount <= 0 {
		return nil, InvalidInput("amountLamports must be positive")
	}
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	w, err := loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	// Deposits routinely land on-chain before the depositor's join commits.
	if !w.IsParticipant(identity) {
		s.Log.Info("[ESCROW] deposit from identity not seated on wager",
			zap.String("wager_id", w.ID), zap.String("identity", identity), zap.String("status", string(w.Status)))
	}

	key := depositKey(externalTxRef)
	ack := models.LedgerEntry{
		WagerID:        w.ID,
		Kind:           models.LedgerKindDepositAck,
		Identity:       identity,
		AmountLamports: amount,
		ExternalTxRef:  &externalTxRef,
		Status:         models.LedgerStatusConfirmed,
		SettlementKey:  &key,
	}
	created, err := s.appendLedger(ctx, &ack)
	if err != nil {
		return nil, err
	}
	if created {
		s.Log.Info("[ESCROW] deposit acknowledged",
			zap.String("wager_id", w.ID), zap.String("identity", identity),
			zap.Int64("amount", amount), zap.String("tx", externalTxRef))
		return &ack, nil
	}

	var existing models.LedgerEntry
	if err := s.DB.WithContext(ctx).Where("settlement_key = ?", key).First(&existing).Error; err != nil {
		return nil, Internal("load deposit ack", err)
	}
	if existing.WagerID != w.ID || existing.Identity != identity || existing.AmountLamports != amount {
		return nil, InvalidInput("externalTxRef %s is already recorded for a different deposit", externalTxRef)
	}
	return &existing, nil
}

// SettlementReceipt is the archived summary of a terminal wager.
type SettlementReceipt struct {
	WagerID       string               `json:"wagerId"`
	MatchID       int64                `json:"matchId"`
	Game          string               `json:"game"`
	Status        models.WagerStatus   `json:"status"`
	Winner        *string              `json:"winner"`
	StakeLamports int64                `json:"stakeLamports"`
	SettledAt     time.Time            `json:"settledAt"`
	Entries       []models.LedgerEntry `json:"entries"`
}

func receiptKey(wagerID string) string {
	return "receipts/" + wagerID + ".json"
}

func (s *SettlementService) archiveReceipt(ctx context.Context, w *models.WagerRecord) {
	if s.Archiver == nil {
		return
	}
	entries, err := s.LedgerForWager(ctx, w.ID)
	if err != nil {
		s.Log.Warn("[SETTLE] receipt skipped", zap.String("wager_id", w.ID), zap.Error(err))
		return
	}
	receipt := SettlementReceipt{
		WagerID:       w.ID,
		MatchID:       w.MatchID,
		Game:          w.Game,
		Status:        w.Status,
		Winner:        w.Winner,
		StakeLamports: w.StakeLamports,
		SettledAt:     s.Clock.Now().UTC(),
		Entries:       entries,
	}
	body, err := json.Marshal(receipt)
	if err != nil {
		s.Log.Warn("[SETTLE] receipt encode failed", zap.String("wager_id", w.ID), zap.Error(err))
		return
	}
	location, err := s.Archiver.PutReceipt(ctx, receiptKey(w.ID), body)
	if err != nil {
		s.Log.Warn("[SETTLE] receipt upload failed", zap.String("wager_id", w.ID), zap.Error(err))
		return
	}
	s.Log.Info("[SETTLE] receipt archived", zap.String("wager_id", w.ID), zap.String("url", location))
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"wager-settlement-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type recordingArchiver struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (a *recordingArchiver) PutReceipt(_ context.Context, key string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.puts[key] = body
	return "https://cdn.test/" + key, nil
}

func TestRefundDrawRefundsBothStakes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 50_000_000)

	_, err := env.Wagers.SubmitVote(ctx, alice.Identity, w.ID, alice.Identity)
	require.NoError(t, err)

	res, err := env.Settlement.ApplyDrawSettlement(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000_000), res.RefundAmount)
	assert.False(t, res.AlreadySettled)
	assert.Equal(t, models.WagerStatusResolved, res.Wager.Status)
	assert.Nil(t, res.Wager.Winner)

	entries := env.ledger(t, w.ID)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, models.LedgerKindDrawRefund, e.Kind)
		assert.Equal(t, int64(50_000_000), e.AmountLamports)
	}
	amounts := ledgerAmounts(entries)[models.LedgerKindDrawRefund]
	assert.Contains(t, amounts, alice.Identity)
	assert.Contains(t, amounts, bob.Identity)

	for _, id := range []string{alice.Identity, bob.Identity} {
		p := env.player(t, id)
		assert.Zero(t, p.TotalWins)
		assert.Zero(t, p.TotalLosses)
		assert.Equal(t, int64(50_000_000), p.TotalWagered)
	}

	again, err := env.Settlement.ApplyDrawSettlement(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
	assert.Len(t, env.ledger(t, w.ID), 2)

	_, err = env.Settlement.ApplyWinnerSettlement(ctx, w.ID, alice.Identity)
	assert.Equal(t, KindInvalidState, KindOf(err), "draw cannot become a win")
}

func TestRefundDrawRequiresJoinedWager(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := newWallet(t)

	w, err := env.Wagers.Create(ctx, alice.Identity, CreateWagerInput{Game: "chess", StakeLamports: 10})
	require.NoError(t, err)
	_, err = env.Settlement.ApplyDrawSettlement(ctx, w.ID)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestWinnerSettlementIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 100_000_000)

	first, err := env.Settlement.ApplyWinnerSettlement(ctx, w.ID, bob.Identity)
	require.NoError(t, err)
	assert.Equal(t, Payout{WinnerPayout: 180_000_000, PlatformFee: 20_000_000}, first.Payout)
	resolvedAt := *first.Wager.ResolvedAt
	winnerBefore := env.player(t, bob.Identity)
	loserBefore := env.player(t, alice.Identity)

	env.Clock.Advance(time.Minute)
	second, err := env.Settlement.ApplyWinnerSettlement(ctx, w.ID, bob.Identity)
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.True(t, second.Wager.ResolvedAt.Equal(resolvedAt))

	assert.Equal(t, winnerBefore, env.player(t, bob.Identity))
	assert.Equal(t, loserBefore, env.player(t, alice.Identity))
	assert.Len(t, env.ledger(t, w.ID), 2)

	_, err = env.Settlement.ApplyWinnerSettlement(ctx, w.ID, alice.Identity)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestConcurrentSettlementCountsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Settlement.ApplyWinnerSettlement(ctx, w.ID, alice.Identity)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), env.player(t, alice.Identity).TotalWins)
	assert.Equal(t, int64(1), env.player(t, bob.Identity).TotalLosses)
	assert.Len(t, env.ledger(t, w.ID), 2)
}

func TestPrivilegedResolveAdjudicatesDispute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := newWallet(t), newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 1000)

	_, err := env.Wagers.SubmitVote(ctx, alice.Identity, w.ID, alice.Identity)
	require.NoError(t, err)
	w, err = env.Wagers.SubmitVote(ctx, bob.Identity, w.ID, bob.Identity)
	require.NoError(t, err)
	require.Equal(t, models.WagerStatusDisputed, w.Status)

	_, err = env.Settlement.ApplyWinnerSettlement(ctx, w.ID, carol.Identity)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	res, err := env.Settlement.ApplyWinnerSettlement(ctx, w.ID, bob.Identity)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusResolved, res.Wager.Status)
	assert.Equal(t, bob.Identity, *res.Wager.Winner)
	assert.Equal(t, int64(1800), ledgerAmounts(env.ledger(t, w.ID))[models.LedgerKindWinnerPayout][bob.Identity])
}

func TestWinStreaks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)

	for i := 0; i < 3; i++ {
		w := env.joinedWager(t, alice, bob, 100)
		_, err := env.Settlement.ApplyWinnerSettlement(ctx, w.ID, alice.Identity)
		require.NoError(t, err)
		env.Clock.Advance(time.Second)
	}
	w := env.joinedWager(t, alice, bob, 100)
	_, err := env.Settlement.ApplyWinnerSettlement(ctx, w.ID, bob.Identity)
	require.NoError(t, err)

	p := env.player(t, alice.Identity)
	assert.Equal(t, int64(3), p.TotalWins)
	assert.Equal(t, int64(1), p.TotalLosses)
	assert.Equal(t, int64(0), p.CurrentStreak)
	assert.Equal(t, int64(3), p.BestStreak)
	assert.Equal(t, int64(3*180), p.TotalEarnings)

	b := env.player(t, bob.Identity)
	assert.Equal(t, int64(1), b.CurrentStreak)
	assert.Equal(t, int64(1), b.BestStreak)
}

func TestZeroFeeWritesNoFeeRow(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 4)

	res, err := env.Settlement.ApplyWinnerSettlement(context.Background(), w.ID, alice.Identity)
	require.NoError(t, err)
	assert.Equal(t, Payout{WinnerPayout: 8, PlatformFee: 0}, res.Payout)

	entries := env.ledger(t, w.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerKindWinnerPayout, entries[0].Kind)
}

func TestRecordEscrowAcknowledgement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := newWallet(t), newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 1000)

	entry, err := env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, bob.Identity, 1000, "5xSig")
	require.NoError(t, err)
	assert.Equal(t, models.LedgerKindDepositAck, entry.Kind)
	require.NotNil(t, entry.ExternalTxRef)
	assert.Equal(t, "5xSig", *entry.ExternalTxRef)

	dup, err := env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, bob.Identity, 1000, "5xSig")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, dup.ID)

	_, err = env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, bob.Identity, 999, "5xSig")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, "not-a-wallet", 1000, "other")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, " "+carol.Identity, 1000, "other")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, bob.Identity, 0, "zero")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, bob.Identity, 10, " ")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = env.Settlement.RecordEscrowAcknowledgement(ctx, "3f1c8f1e-0000-4000-8000-000000000000", bob.Identity, 10, "nowhere")
	assert.Equal(t, KindNotFound, KindOf(err))

	// an unseated depositor is still an observed deposit
	stray, err := env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, carol.Identity, 1000, "other")
	require.NoError(t, err)
	assert.Equal(t, carol.Identity, stray.Identity)

	assert.Len(t, env.ledger(t, w.ID), 2)
	current, err := env.Wagers.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusJoined, current.Status, "deposits never move the state machine")
}

func TestEscrowAcknowledgementBeforeJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)
	w, err := env.Wagers.Create(ctx, alice.Identity, CreateWagerInput{Game: "chess", StakeLamports: 10})
	require.NoError(t, err)

	entry, err := env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, bob.Identity, 10, "sigB")
	require.NoError(t, err)
	assert.Equal(t, bob.Identity, entry.Identity)

	joined, err := env.Wagers.Join(ctx, bob.Identity, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusJoined, joined.Status)

	again, err := env.Settlement.RecordEscrowAcknowledgement(ctx, w.ID, bob.Identity, 10, "sigB")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)
	assert.Len(t, env.ledger(t, w.ID), 1)
}

func TestLedgerFailureKeepsResolutionAndRecordsFailedRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 100_000_000)

	outage := errors.New("ledger outage")
	failed := false
	require.NoError(t, env.DB.Callback().Create().Before("gorm:create").Register("test:fail_winner_payout", func(tx *gorm.DB) {
		entry, ok := tx.Statement.Dest.(*models.LedgerEntry)
		if !ok || failed || entry.Kind != models.LedgerKindWinnerPayout || entry.Status != models.LedgerStatusConfirmed {
			return
		}
		failed = true
		_ = tx.AddError(outage)
	}))

	res, err := env.Settlement.ApplyWinnerSettlement(ctx, w.ID, alice.Identity)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusResolved, res.Wager.Status)
	require.True(t, failed)

	current, err := env.Wagers.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WagerStatusResolved, current.Status)
	assert.Equal(t, int64(1), env.player(t, alice.Identity).TotalWins)

	var failedRows []models.LedgerEntry
	require.NoError(t, env.DB.Where("wager_id = ? AND status = ?", w.ID, models.LedgerStatusFailed).Find(&failedRows).Error)
	require.Len(t, failedRows, 1)
	assert.Equal(t, models.LedgerKindWinnerPayout, failedRows[0].Kind)
	assert.Nil(t, failedRows[0].SettlementKey)
	require.NotNil(t, failedRows[0].ErrorMessage)
	assert.Contains(t, *failedRows[0].ErrorMessage, "ledger outage")

	confirmed := 0
	for _, e := range env.ledger(t, w.ID) {
		if e.Status == models.LedgerStatusConfirmed {
			confirmed++
			assert.Equal(t, models.LedgerKindPlatformFee, e.Kind)
		}
	}
	assert.Equal(t, 1, confirmed)

	env.Clock.Advance(time.Minute)
	written, err := env.Settlement.ReconcileLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	var payout models.LedgerEntry
	require.NoError(t, env.DB.Where("wager_id = ? AND kind = ? AND status = ?", w.ID, models.LedgerKindWinnerPayout, models.LedgerStatusConfirmed).First(&payout).Error)
	assert.Equal(t, int64(180_000_000), payout.AmountLamports)
	assert.Equal(t, alice.Identity, payout.Identity)
}

func TestReconcileLedgerRestoresMissingRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 100_000_000)

	_, err := env.Settlement.ApplyWinnerSettlement(ctx, w.ID, alice.Identity)
	require.NoError(t, err)
	require.NoError(t, env.DB.Where("wager_id = ? AND kind = ?", w.ID, models.LedgerKindPlatformFee).
		Delete(&models.LedgerEntry{}).Error)
	require.Len(t, env.ledger(t, w.ID), 1)

	env.Clock.Advance(time.Minute)
	written, err := env.Settlement.ReconcileLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	amounts := ledgerAmounts(env.ledger(t, w.ID))
	assert.Equal(t, int64(20_000_000), amounts[models.LedgerKindPlatformFee][testPlatform])
	assert.Equal(t, int64(180_000_000), amounts[models.LedgerKindWinnerPayout][alice.Identity])

	written, err = env.Settlement.ReconcileLedger(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)

	// outside the lookback window nothing is rewritten
	require.NoError(t, env.DB.Where("wager_id = ?", w.ID).Delete(&models.LedgerEntry{}).Error)
	env.Clock.Advance(25 * time.Hour)
	written, err = env.Settlement.ReconcileLedger(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestSettlementArchivesReceipt(t *testing.T) {
	env := newTestEnv(t)
	archiver := &recordingArchiver{puts: map[string][]byte{}}
	env.Settlement.Archiver = archiver
	core, logs := observer.New(zap.InfoLevel)
	env.Settlement.Log = zap.New(core)
	alice, bob := newWallet(t), newWallet(t)
	w := env.joinedWager(t, alice, bob, 1000)

	_, err := env.Settlement.ApplyWinnerSettlement(context.Background(), w.ID, alice.Identity)
	require.NoError(t, err)

	archived := logs.FilterMessage("[SETTLE] receipt archived").All()
	require.Len(t, archived, 1)
	assert.Equal(t, "https://cdn.test/receipts/"+w.ID+".json", archived[0].ContextMap()["url"])

	body, ok := archiver.puts["receipts/"+w.ID+".json"]
	require.True(t, ok)
	var receipt SettlementReceipt
	require.NoError(t, json.Unmarshal(body, &receipt))
	assert.Equal(t, w.ID, receipt.WagerID)
	assert.Equal(t, models.WagerStatusResolved, receipt.Status)
	require.NotNil(t, receipt.Winner)
	assert.Equal(t, alice.Identity, *receipt.Winner)
	assert.Len(t, receipt.Entries, 2)
}

package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wager-settlement-system/models"
	"wager-settlement-system/utils"

	"github.com/jonboulle/clockwork"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef-test"
	testPlatform = "platform-treasury"
)

var testEpoch = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	DB         *gorm.DB
	Clock      *clockwork.FakeClock
	Players    *PlayerService
	Settlement *SettlementService
	Wagers     *WagerService
	Auth       *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	db, err := utils.OpenDatabase("sqlite://"+filepath.Join(t.TempDir(), "wagers.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := zaptest.NewLogger(t)
	keys, err := DeriveAuthKeys(testSecret)
	require.NoError(t, err)

	players := NewPlayerService(db, clock, log)
	settlement := NewSettlementService(db, clock, log, testPlatform, 10)
	return &testEnv{
		DB:         db,
		Clock:      clock,
		Players:    players,
		Settlement: settlement,
		Wagers:     NewWagerService(db, clock, log, players, settlement),
		Auth:       NewAuthService(keys, clock, players, nil, log),
	}
}

type testWallet struct {
	Identity string
	Key      ed25519.PrivateKey
}

func newWallet(t *testing.T) testWallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return testWallet{Identity: base58.Encode(pub), Key: priv}
}

func (w testWallet) sign(msg string) []byte {
	return ed25519.Sign(w.Key, []byte(msg))
}

// joinedWager creates a wager for a and seats b.
func (e *testEnv) joinedWager(t *testing.T, a, b testWallet, stake int64) *models.WagerRecord {
	t.Helper()
	ctx := context.Background()
	w, err := e.Wagers.Create(ctx, a.Identity, CreateWagerInput{Game: "chess", StakeLamports: stake})
	require.NoError(t, err)
	w, err = e.Wagers.Join(ctx, b.Identity, w.ID)
	require.NoError(t, err)
	return w
}

func (e *testEnv) player(t *testing.T, identity string) *models.Player {
	t.Helper()
	p, err := e.Players.GetPlayer(context.Background(), identity)
	require.NoError(t, err)
	return p
}

func (e *testEnv) ledger(t *testing.T, wagerID string) []models.LedgerEntry {
	t.Helper()
	entries, err := e.Settlement.LedgerForWager(context.Background(), wagerID)
	require.NoError(t, err)
	return entries
}

func ledgerAmounts(entries []models.LedgerEntry) map[models.LedgerKind]map[string]int64 {
	out := map[models.LedgerKind]map[string]int64{}
	for _, e := range entries {
		if out[e.Kind] == nil {
			out[e.Kind] = map[string]int64{}
		}
		out[e.Kind][e.Identity] += e.AmountLamports
	}
	return out
}

func reasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func ptr[T any](v T) *T { return &v }

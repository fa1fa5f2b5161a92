package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wager-settlement-system/models"
	"wager-settlement-system/services"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// EscrowDeposit is one deposit observed by the escrow indexer.
type EscrowDeposit struct {
	WagerID        string    `json:"wagerId"`
	Identity       string    `json:"identity"`
	AmountLamports int64     `json:"amountLamports"`
	TxSignature    string    `json:"txSignature"`
	ObservedAt     time.Time `json:"observedAt"`
}

// EscrowRecorder is the settlement side the worker writes into.
type EscrowRecorder interface {
	RecordEscrowAcknowledgement(ctx context.Context, wagerID, identity string, amount int64, externalTxRef string) (*models.LedgerEntry, error)
}

// EscrowSyncClient reads deposits from the escrow indexer.
type EscrowSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewEscrowSyncClient(baseURL, token string) *EscrowSyncClient {
	return &EscrowSyncClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *EscrowSyncClient) GetDeposits(ctx context.Context, since time.Time) ([]EscrowDeposit, error) {
	u, err := url.Parse(c.BaseURL + "/api/v1/deposits")
	if err != nil {
		return nil, fmt.Errorf("failed to parse indexer URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call escrow indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("escrow indexer returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Deposits []EscrowDeposit `json:"deposits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode escrow indexer response: %w", err)
	}
	return response.Deposits, nil
}

// EscrowSyncWorker turns indexer deposits into deposit_ack ledger rows.
type EscrowSyncWorker struct {
	Client   *EscrowSyncClient
	Recorder EscrowRecorder
	Clock    clockwork.Clock
	Log      *zap.Logger

	since time.Time
}

func NewEscrowSyncWorker(client *EscrowSyncClient, recorder EscrowRecorder, clock clockwork.Clock, log *zap.Logger) *EscrowSyncWorker {
	return &EscrowSyncWorker{
		Client:   client,
		Recorder: recorder,
		Clock:    clock,
		Log:      log,
		since:    clock.Now().UTC().Add(-24 * time.Hour),
	}
}

// SyncOnce fetches and records one batch. The cursor only advances when every
// deposit was either recorded or rejected as invalid; an internal failure
// leaves it in place so the same window is retried next tick.
func (w *EscrowSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	pollStart := w.Clock.Now().UTC()
	deposits, err := w.Client.GetDeposits(ctx, w.since)
	if err != nil {
		return 0, err
	}

	recorded := 0
	for _, d := range deposits {
		_, err := w.Recorder.RecordEscrowAcknowledgement(ctx, d.WagerID, d.Identity, d.AmountLamports, d.TxSignature)
		switch {
		case err == nil:
			recorded++
		case services.KindOf(err) == services.KindInternal:
			return recorded, fmt.Errorf("record deposit %s: %w", d.TxSignature, err)
		default:
			w.Log.Warn("[ESCROW_SYNC] skipping deposit",
				zap.String("tx", d.TxSignature),
				zap.String("wager_id", d.WagerID),
				zap.Error(err))
		}
	}

	w.since = pollStart
	return recorded, nil
}

// Run polls until ctx is cancelled.
func (w *EscrowSyncWorker) Run(ctx context.Context, pollInterval time.Duration) {
	w.Log.Info("[ESCROW_SYNC] starting deposit polling", zap.Duration("interval", pollInterval))
	ticker := w.Clock.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Log.Info("[ESCROW_SYNC] deposit polling stopped")
			return
		case <-ticker.Chan():
			n, err := w.SyncOnce(ctx)
			if err != nil {
				w.Log.Error("[ESCROW_SYNC] poll failed", zap.Error(err))
				continue
			}
			if n > 0 {
				w.Log.Info("[ESCROW_SYNC] recorded deposits", zap.Int("count", n))
			}
		}
	}
}

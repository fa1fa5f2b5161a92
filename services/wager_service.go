// services/wager_service.go
package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"wager-settlement-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	CountdownDuration = 10 * time.Second
	RetractWindow     = 60 * time.Second

	maxGameLen       = 64
	maxGameRefLen    = 128
	maxStreamURLLen  = 512
	matchIDAttempts  = 5
	defaultListLimit = 50
	maxListLimit     = 200
)

// errLostRace marks a conditioned write that matched no row.
var errLostRace = errors.New("conditioned write affected no rows")

// WagerService enforces the wager state machine. Every transition is a single
// update conditioned on the expected prior state.
type WagerService struct {
	DB         *gorm.DB
	Clock      clockwork.Clock
	Log        *zap.Logger
	Players    *PlayerService
	Settlement *SettlementService
}

func NewWagerService(db *gorm.DB, clock clockwork.Clock, log *zap.Logger, players *PlayerService, settlement *SettlementService) *WagerService {
	return &WagerService{DB: db, Clock: clock, Log: log, Players: players, Settlement: settlement}
}

// CreateWagerInput is the caller-supplied part of a new wager.
type CreateWagerInput struct {
	Game          string  `json:"game"`
	StakeLamports int64   `json:"stakeLamports"`
	GameRef       *string `json:"gameRef"`
	IsPublic      *bool   `json:"isPublic"`
	StreamURL     *string `json:"streamUrl"`
}

func (in *CreateWagerInput) normalize() error {
	in.Game = slug.Make(in.Game)
	if in.Game == "" || len(in.Game) > maxGameLen {
		return InvalidInput("game is required and must be at most %d characters", maxGameLen)
	}
	if in.StakeLamports <= 0 {
		return InvalidInput("stakeLamports must be positive")
	}
	if in.StakeLamports > MaxStakeLamports {
		return InvalidInput("stakeLamports exceeds %d", MaxStakeLamports)
	}
	if in.GameRef != nil {
		ref := strings.TrimSpace(*in.GameRef)
		if len(ref) > maxGameRefLen {
			return InvalidInput("gameRef must be at most %d characters", maxGameRefLen)
		}
		in.GameRef = nilIfEmpty(ref)
	}
	if in.StreamURL != nil {
		raw := strings.TrimSpace(*in.StreamURL)
		if raw != "" {
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || len(raw) > maxStreamURLLen {
				return InvalidInput("streamUrl must be an http(s) URL")
			}
		}
		in.StreamURL = nilIfEmpty(raw)
	}
	return nil
}

// Create opens a wager with identity as playerA.
func (s *WagerService) Create(ctx context.Context, identity string, in CreateWagerInput) (w *models.WagerRecord, err error) {
	defer func() { observe("create", err) }()

	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.Players.RequireActive(ctx, identity); err != nil {
		return nil, err
	}

	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}
	now := s.Clock.Now().UTC()
	record := models.WagerRecord{
		ID:            uuid.NewString(),
		MatchID:       now.UnixMilli(),
		StakeLamports: in.StakeLamports,
		Game:          in.Game,
		GameRef:       in.GameRef,
		PlayerA:       identity,
		Status:        models.WagerStatusCreated,
		IsPublic:      isPublic,
		StreamURL:     in.StreamURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// matchId is time based; a collision moves to the next free value.
	for attempt := 0; ; attempt++ {
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
			return addWagered(tx, identity, record.StakeLamports)
		})
		if err == nil {
			break
		}
		if !isUniqueViolation(err) || attempt+1 >= matchIDAttempts {
			return nil, Internal("create wager", err)
		}
		record.MatchID++
	}

	s.Log.Info("[WAGER] created",
		zap.String("wager_id", record.ID),
		zap.Int64("match_id", record.MatchID),
		zap.String("player_a", identity),
		zap.String("game", record.Game),
		zap.Int64("stake", record.StakeLamports))
	return loadWager(ctx, s.DB, record.ID)
}

// Join seats identity as playerB. Of two concurrent joiners exactly one wins.
func (s *WagerService) Join(ctx context.Context, identity, wagerID string) (w *models.WagerRecord, err error) {
	defer func() { observe("join", err) }()

	if err := s.Players.RequireActive(ctx, identity); err != nil {
		return nil, err
	}
	w, err = loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	if w.PlayerA == identity {
		return nil, InvalidInput("cannot join your own wager")
	}
	if w.Status != models.WagerStatusCreated || w.PlayerB != nil {
		return nil, InvalidState("wager is no longer available")
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.WagerRecord{}).
			Where("id = ? AND status = ? AND player_b IS NULL", w.ID, models.WagerStatusCreated).
			Updates(map[string]interface{}{
				"status":   models.WagerStatusJoined,
				"player_b": identity,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errLostRace
		}
		return addWagered(tx, identity, w.StakeLamports)
	})
	if errors.Is(err, errLostRace) {
		return nil, InvalidState("wager is no longer available")
	}
	if err != nil {
		return nil, Internal("join wager", err)
	}

	s.Log.Info("[WAGER] joined", zap.String("wager_id", w.ID), zap.String("player_b", identity))
	return loadWager(ctx, s.DB, w.ID)
}

// SetReady flips the caller's ready flag. The countdown starts when both flags
// are set and is cleared as soon as either is unset.
func (s *WagerService) SetReady(ctx context.Context, identity, wagerID string, ready bool) (w *models.WagerRecord, err error) {
	defer func() { observe("ready", err) }()

	w, err = loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	if !w.IsParticipant(identity) {
		return nil, Forbidden("only players in this wager can change ready state")
	}
	if w.Status != models.WagerStatusJoined {
		return nil, InvalidState("ready state can only change while the wager is joined")
	}

	own, other := "ready_a", "ready_b"
	if identity != w.PlayerA {
		own, other = "ready_b", "ready_a"
	}
	var countdown interface{}
	if ready {
		countdown = gorm.Expr("CASE WHEN "+other+" = ? THEN COALESCE(countdown_started_at, ?) ELSE NULL END", true, s.Clock.Now().UTC())
	}

	res := s.DB.WithContext(ctx).Model(&models.WagerRecord{}).
		Where("id = ? AND status = ? AND started_at IS NULL", w.ID, models.WagerStatusJoined).
		Updates(map[string]interface{}{
			own:                    ready,
			"countdown_started_at": countdown,
		})
	if res.Error != nil {
		return nil, Internal("set ready", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, InvalidState("ready state can no longer change")
	}
	return loadWager(ctx, s.DB, w.ID)
}

// Start marks the match as started once the countdown has fully elapsed with
// both players still ready. Elapsed time is checked here, not by the client.
func (s *WagerService) Start(ctx context.Context, identity, wagerID string) (w *models.WagerRecord, err error) {
	defer func() { observe("start", err) }()

	w, err = loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	if !w.IsParticipant(identity) {
		return nil, Forbidden("only players in this wager can start it")
	}
	if w.StartedAt != nil {
		return w, nil
	}
	if w.Status != models.WagerStatusJoined {
		return nil, InvalidState("only a joined wager can start")
	}
	if !w.ReadyA || !w.ReadyB || w.CountdownStartedAt == nil {
		return nil, InvalidState("both players must be ready")
	}
	now := s.Clock.Now().UTC()
	deadline := now.Add(-CountdownDuration)
	if w.CountdownStartedAt.After(deadline) {
		return nil, InvalidState("countdown has not finished")
	}

	res := s.DB.WithContext(ctx).Model(&models.WagerRecord{}).
		Where("id = ? AND status = ? AND ready_a = ? AND ready_b = ? AND started_at IS NULL AND countdown_started_at IS NOT NULL AND countdown_started_at <= ?",
			w.ID, models.WagerStatusJoined, true, true, deadline).
		Update("started_at", now)
	if res.Error != nil {
		return nil, Internal("start wager", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := loadWager(ctx, s.DB, w.ID)
		if err != nil {
			return nil, err
		}
		if current.StartedAt != nil {
			return current, nil
		}
		return nil, InvalidState("ready state changed before start")
	}
	s.Log.Info("[WAGER] match started", zap.String("wager_id", w.ID))
	return loadWager(ctx, s.DB, w.ID)
}

// SubmitVote records the caller's claimed winner. Once both votes are in, an
// agreement settles the wager and a disagreement disputes it.
func (s *WagerService) SubmitVote(ctx context.Context, identity, wagerID, votedWinner string) (w *models.WagerRecord, err error) {
	defer func() { observe("vote", err) }()

	if err := s.Players.RequireActive(ctx, identity); err != nil {
		return nil, err
	}
	w, err = loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	if !w.IsParticipant(identity) {
		return nil, Forbidden("only players in this wager can vote")
	}
	if w.PlayerB == nil {
		return nil, InvalidState("wager has no opponent yet")
	}
	if !w.IsParticipant(votedWinner) {
		return nil, InvalidInput("votedWinner must be one of the two players")
	}

	slot, own := "vote_a", w.VoteA
	if identity != w.PlayerA {
		slot, own = "vote_b", w.VoteB
	}
	if own != nil {
		return nil, AlreadyVoted()
	}
	votable := []models.WagerStatus{models.WagerStatusJoined, models.WagerStatusVoting, models.WagerStatusRetractable}
	if !containsStatus(votable, w.Status) {
		return nil, InvalidState("votes are closed for a " + string(w.Status) + " wager")
	}

	res := s.DB.WithContext(ctx).Model(&models.WagerRecord{}).
		Where("id = ? AND status IN ? AND "+slot+" IS NULL", w.ID, votable).
		Updates(map[string]interface{}{
			slot:             votedWinner,
			"vote_timestamp": s.Clock.Now().UTC(),
			"status":         models.WagerStatusVoting,
		})
	if res.Error != nil {
		return nil, Internal("submit vote", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := loadWager(ctx, s.DB, w.ID)
		if err != nil {
			return nil, err
		}
		if (slot == "vote_a" && current.VoteA != nil) || (slot == "vote_b" && current.VoteB != nil) {
			return nil, AlreadyVoted()
		}
		return nil, InvalidState("votes are closed for a " + string(current.Status) + " wager")
	}

	s.Log.Info("[WAGER] vote recorded", zap.String("wager_id", w.ID), zap.String("voter", identity), zap.String("voted", votedWinner))
	if w, err = loadWager(ctx, s.DB, w.ID); err != nil {
		return nil, err
	}
	if w.VoteA == nil || w.VoteB == nil {
		return w, nil
	}
	return s.resolveVotes(ctx, w)
}

// resolveVotes acts on a wager holding both votes.
func (s *WagerService) resolveVotes(ctx context.Context, w *models.WagerRecord) (*models.WagerRecord, error) {
	if *w.VoteA == *w.VoteB {
		if _, err := s.Settlement.ApplyWinnerSettlement(ctx, w.ID, *w.VoteA); err != nil && KindOf(err) != KindInvalidState {
			return nil, err
		}
		return loadWager(ctx, s.DB, w.ID)
	}

	res := s.DB.WithContext(ctx).Model(&models.WagerRecord{}).
		Where("id = ? AND status = ? AND vote_a IS NOT NULL AND vote_b IS NOT NULL", w.ID, models.WagerStatusVoting).
		Update("status", models.WagerStatusDisputed)
	if res.Error != nil {
		return nil, Internal("dispute wager", res.Error)
	}
	if res.RowsAffected > 0 {
		s.Log.Warn("[WAGER] votes disagree, wager disputed", zap.String("wager_id", w.ID))
		observe("dispute", nil)
	}
	return loadWager(ctx, s.DB, w.ID)
}

// RetractVote withdraws the caller's vote within RetractWindow of casting it,
// provided the opponent has not voted yet.
func (s *WagerService) RetractVote(ctx context.Context, identity, wagerID string) (w *models.WagerRecord, err error) {
	defer func() { observe("retract", err) }()

	w, err = loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	if !w.IsParticipant(identity) {
		return nil, Forbidden("only players in this wager can retract a vote")
	}
	slot, other := "vote_a", "vote_b"
	own, theirs := w.VoteA, w.VoteB
	if identity != w.PlayerA {
		slot, other = "vote_b", "vote_a"
		own, theirs = w.VoteB, w.VoteA
	}
	if w.Status != models.WagerStatusVoting || own == nil {
		return nil, InvalidState("there is no vote to retract")
	}
	if theirs != nil {
		return nil, InvalidState("opponent has already voted")
	}
	if w.VoteTimestamp == nil || s.Clock.Now().Sub(*w.VoteTimestamp) > RetractWindow {
		return nil, InvalidState("retraction window has closed")
	}

	res := s.DB.WithContext(ctx).Model(&models.WagerRecord{}).
		Where("id = ? AND status = ? AND "+slot+" IS NOT NULL AND "+other+" IS NULL", w.ID, models.WagerStatusVoting).
		Updates(map[string]interface{}{
			slot:             nil,
			"vote_timestamp": nil,
			"status":         models.WagerStatusRetractable,
		})
	if res.Error != nil {
		return nil, Internal("retract vote", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, InvalidState("vote can no longer be retracted")
	}
	s.Log.Info("[WAGER] vote retracted", zap.String("wager_id", w.ID), zap.String("voter", identity))
	return loadWager(ctx, s.DB, w.ID)
}

// Cancel closes an unjoined wager and refunds playerA's stake.
func (s *WagerService) Cancel(ctx context.Context, identity, wagerID string) (w *models.WagerRecord, err error) {
	defer func() { observe("cancel", err) }()

	w, err = loadWager(ctx, s.DB, wagerID)
	if err != nil {
		return nil, err
	}
	if w.PlayerA != identity {
		return nil, Forbidden("only the creator can cancel a wager")
	}
	if w.Status != models.WagerStatusCreated {
		return nil, InvalidState("only an unjoined wager can be cancelled")
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.WagerRecord{}).
			Where("id = ? AND status = ? AND player_b IS NULL", w.ID, models.WagerStatusCreated).
			Updates(map[string]interface{}{
				"status":      models.WagerStatusCancelled,
				"resolved_at": s.Clock.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errLostRace
		}
		return addWagered(tx, identity, -w.StakeLamports)
	})
	if errors.Is(err, errLostRace) {
		return nil, InvalidState("wager was joined or closed before it could be cancelled")
	}
	if err != nil {
		return nil, Internal("cancel wager", err)
	}

	if w, err = loadWager(ctx, s.DB, w.ID); err != nil {
		return nil, err
	}
	s.Log.Info("[WAGER] cancelled", zap.String("wager_id", w.ID))
	s.Settlement.finishSettlement(ctx, w)
	return w, nil
}

func (s *WagerService) Get(ctx context.Context, wagerID string) (*models.WagerRecord, error) {
	return loadWager(ctx, s.DB, wagerID)
}

// ListOpen returns joinable public wagers, newest first.
func (s *WagerService) ListOpen(ctx context.Context, game string, limit int) ([]models.WagerRecord, error) {
	q := s.DB.WithContext(ctx).
		Where("status = ? AND is_public = ? AND player_b IS NULL", models.WagerStatusCreated, true)
	if game = slug.Make(game); game != "" {
		q = q.Where("game = ?", game)
	}
	var wagers []models.WagerRecord
	if err := q.Order("created_at DESC").Order("match_id DESC").Limit(clampLimit(limit)).Find(&wagers).Error; err != nil {
		return nil, Internal("list open wagers", err)
	}
	return wagers, nil
}

// ListForIdentity returns wagers where identity holds either seat.
func (s *WagerService) ListForIdentity(ctx context.Context, identity string, limit int) ([]models.WagerRecord, error) {
	var wagers []models.WagerRecord
	if err := s.DB.WithContext(ctx).
		Where("player_a = ? OR player_b = ?", identity, identity).
		Order("created_at DESC").Order("match_id DESC").
		Limit(clampLimit(limit)).
		Find(&wagers).Error; err != nil {
		return nil, Internal("list wagers", err)
	}
	return wagers, nil
}

func loadWager(ctx context.Context, db *gorm.DB, wagerID string) (*models.WagerRecord, error) {
	if err := validateWagerID(wagerID); err != nil {
		return nil, err
	}
	var w models.WagerRecord
	if err := db.WithContext(ctx).Where("id = ?", wagerID).First(&w).Error; err != nil {
		if isNotFound(err) {
			return nil, NotFound("wager not found")
		}
		return nil, Internal("load wager", err)
	}
	return &w, nil
}

func validateWagerID(wagerID string) error {
	if _, err := uuid.Parse(wagerID); err != nil {
		return InvalidInput("wagerId is not a valid id")
	}
	return nil
}

func containsStatus(list []models.WagerStatus, s models.WagerStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

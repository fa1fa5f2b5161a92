// services/player_service.go
package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"wager-settlement-system/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxLinkedHandles  = 8
	minDisplayNameLen = 3
	maxDisplayNameLen = 32
	maxHandleLen      = 64
)

var handleKeyPattern = regexp.MustCompile(`^[a-z0-9_]{2,24}$`)

type PlayerService struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	Log   *zap.Logger
}

func NewPlayerService(db *gorm.DB, clock clockwork.Clock, log *zap.Logger) *PlayerService {
	return &PlayerService{DB: db, Clock: clock, Log: log}
}

// EnsurePlayer returns the player row for identity, creating it on first contact.
func (s *PlayerService) EnsurePlayer(ctx context.Context, identity string) (*models.Player, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	now := s.Clock.Now().UTC()
	fresh := models.Player{
		ID:                uuid.NewString(),
		Identity:          identity,
		LinkedGameHandles: map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "identity"}}, DoNothing: true}).
		Create(&fresh).Error; err != nil {
		return nil, Internal("ensure player", err)
	}
	return s.GetPlayer(ctx, identity)
}

func (s *PlayerService) GetPlayer(ctx context.Context, identity string) (*models.Player, error) {
	var p models.Player
	if err := s.DB.WithContext(ctx).Where("identity = ?", identity).First(&p).Error; err != nil {
		if isNotFound(err) {
			return nil, NotFound("player not found")
		}
		return nil, Internal("get player", err)
	}
	return &p, nil
}

// RequireActive ensures the player exists and is not under an active ban.
// Bans are an authorization check: a valid session does not bypass them.
func (s *PlayerService) RequireActive(ctx context.Context, identity string) error {
	p, err := s.EnsurePlayer(ctx, identity)
	if err != nil {
		return err
	}
	if p.BannedAt(s.Clock.Now()) {
		return Forbidden("account is banned until " + p.BanExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// Ban suspends identity for durationSeconds and returns the expiry.
func (s *PlayerService) Ban(ctx context.Context, identity string, durationSeconds int64) (time.Time, error) {
	if durationSeconds <= 0 {
		return time.Time{}, InvalidInput("durationSeconds must be positive")
	}
	if durationSeconds > int64((100*365*24*time.Hour)/time.Second) {
		return time.Time{}, InvalidInput("durationSeconds is too large")
	}
	if _, err := s.EnsurePlayer(ctx, identity); err != nil {
		return time.Time{}, err
	}
	expires := s.Clock.Now().UTC().Add(time.Duration(durationSeconds) * time.Second)
	if err := s.DB.WithContext(ctx).Model(&models.Player{}).
		Where("identity = ?", identity).
		Updates(map[string]interface{}{"is_banned": true, "ban_expires_at": expires}).Error; err != nil {
		return time.Time{}, Internal("ban player", err)
	}
	s.Log.Warn("[BAN] player banned", zap.String("identity", identity), zap.Time("expires_at", expires))
	return expires, nil
}

// SweepExpiredBans clears the flag on bans whose expiry has passed.
func (s *PlayerService) SweepExpiredBans(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Player{}).
		Where("is_banned = ? AND ban_expires_at IS NOT NULL AND ban_expires_at <= ?", true, s.Clock.Now().UTC()).
		Updates(map[string]interface{}{"is_banned": false, "ban_expires_at": nil})
	if res.Error != nil {
		return 0, Internal("sweep bans", res.Error)
	}
	return res.RowsAffected, nil
}

// ProfileUpdate lists the only fields a player may change about themselves.
type ProfileUpdate struct {
	DisplayName       *string           `json:"displayName"`
	LinkedGameHandles map[string]string `json:"linkedGameHandles"`
}

func (s *PlayerService) UpdateProfile(ctx context.Context, identity string, upd ProfileUpdate) (*models.Player, error) {
	if upd.DisplayName == nil && upd.LinkedGameHandles == nil {
		return nil, InvalidInput("nothing to update")
	}
	current, err := s.EnsurePlayer(ctx, identity)
	if err != nil {
		return nil, err
	}

	if upd.DisplayName != nil {
		name := norm.NFC.String(strings.TrimSpace(*upd.DisplayName))
		if n := utf8.RuneCountInString(name); n < minDisplayNameLen || n > maxDisplayNameLen {
			return nil, InvalidInput("displayName must be %d-%d characters", minDisplayNameLen, maxDisplayNameLen)
		}
		res := s.DB.WithContext(ctx).Model(&models.Player{}).
			Where("identity = ? AND display_name IS NULL", identity).
			Update("display_name", name)
		if res.Error != nil {
			return nil, Internal("set display name", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, InvalidState("display name is already set")
		}
	}

	if upd.LinkedGameHandles != nil {
		handles, err := mergeHandles(current.LinkedGameHandles, upd.LinkedGameHandles)
		if err != nil {
			return nil, err
		}
		if err := s.DB.WithContext(ctx).Model(current).
			Select("LinkedGameHandles").
			Updates(models.Player{LinkedGameHandles: handles}).Error; err != nil {
			return nil, Internal("set game handles", err)
		}
	}
	return s.GetPlayer(ctx, identity)
}

// mergeHandles applies updates to existing handles; an empty value unlinks.
func mergeHandles(existing, updates map[string]string) (map[string]string, error) {
	merged := map[string]string{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		if !handleKeyPattern.MatchString(k) {
			return nil, InvalidInput("unsupported game handle key %q", k)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			delete(merged, k)
			continue
		}
		if utf8.RuneCountInString(v) > maxHandleLen {
			return nil, InvalidInput("game handle for %q is too long", k)
		}
		merged[k] = v
	}
	if len(merged) > maxLinkedHandles {
		return nil, InvalidInput("at most %d game handles can be linked", maxLinkedHandles)
	}
	return merged, nil
}

// addWagered moves the committed-stake counter by delta inside tx.
func addWagered(tx *gorm.DB, identity string, delta int64) error {
	return tx.Model(&models.Player{}).Where("identity = ?", identity).
		Update("total_wagered", gorm.Expr("total_wagered + ?", delta)).Error
}

func recordWin(tx *gorm.DB, identity string, payout int64) error {
	return tx.Model(&models.Player{}).Where("identity = ?", identity).
		Updates(map[string]interface{}{
			"total_wins":     gorm.Expr("total_wins + 1"),
			"total_earnings": gorm.Expr("total_earnings + ?", payout),
			"current_streak": gorm.Expr("current_streak + 1"),
			"best_streak":    gorm.Expr("CASE WHEN current_streak + 1 > best_streak THEN current_streak + 1 ELSE best_streak END"),
		}).Error
}

func recordLoss(tx *gorm.DB, identity string) error {
	return tx.Model(&models.Player{}).Where("identity = ?", identity).
		Updates(map[string]interface{}{
			"total_losses":   gorm.Expr("total_losses + 1"),
			"current_streak": 0,
		}).Error
}

package models

import (
	"time"
)

// Player holds per-wallet profile data and settlement aggregates.
// Rows are created lazily on first authenticated contact and never deleted.
type Player struct {
	ID                string            `gorm:"primaryKey;type:uuid" json:"id"`
	Identity          string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"identity"`
	DisplayName       *string           `gorm:"type:varchar(64)" json:"display_name,omitempty"`
	LinkedGameHandles map[string]string `gorm:"type:text;serializer:json" json:"linked_game_handles"`

	TotalWins     int64 `gorm:"not null;default:0" json:"total_wins"`
	TotalLosses   int64 `gorm:"not null;default:0" json:"total_losses"`
	TotalEarnings int64 `gorm:"not null;default:0" json:"total_earnings"` // lamports
	TotalWagered  int64 `gorm:"not null;default:0" json:"total_wagered"`  // lamports
	CurrentStreak int64 `gorm:"not null;default:0" json:"current_streak"`
	BestStreak    int64 `gorm:"not null;default:0" json:"best_streak"`

	IsBanned     bool       `gorm:"not null;default:false;index" json:"is_banned"`
	BanExpiresAt *time.Time `json:"ban_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BannedAt reports whether the ban is still in force at now.
func (p *Player) BannedAt(now time.Time) bool {
	if !p.IsBanned {
		return false
	}
	return p.BanExpiresAt == nil || p.BanExpiresAt.After(now)
}

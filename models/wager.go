// models/wager.go
package models

import (
	"time"
)

type WagerStatus string

const (
	WagerStatusCreated     WagerStatus = "created"
	WagerStatusJoined      WagerStatus = "joined"
	WagerStatusVoting      WagerStatus = "voting"
	WagerStatusRetractable WagerStatus = "retractable" // a vote was withdrawn inside the retraction window
	WagerStatusDisputed    WagerStatus = "disputed"
	WagerStatusResolved    WagerStatus = "resolved"
	WagerStatusCancelled   WagerStatus = "cancelled"
)

// IsTerminal reports whether no further transition can leave the status.
func (s WagerStatus) IsTerminal() bool {
	return s == WagerStatusResolved || s == WagerStatusCancelled
}

// WagerRecord is one match-stake agreement between two identities.
// MatchID is the caller-visible sequence; ID is the storage key.
type WagerRecord struct {
	ID            string      `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID       int64       `gorm:"uniqueIndex;not null" json:"match_id"`
	StakeLamports int64       `gorm:"not null;check:stake_lamports > 0" json:"stake_lamports"`
	Game          string      `gorm:"type:varchar(64);not null;index" json:"game"`
	GameRef       *string     `gorm:"type:varchar(128)" json:"game_ref,omitempty"`
	PlayerA       string      `gorm:"type:varchar(64);not null;index" json:"player_a"`
	PlayerB       *string     `gorm:"type:varchar(64);index" json:"player_b,omitempty"`
	Status        WagerStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	VoteA         *string    `gorm:"type:varchar(64)" json:"vote_a,omitempty"`
	VoteB         *string    `gorm:"type:varchar(64)" json:"vote_b,omitempty"`
	VoteTimestamp *time.Time `json:"vote_timestamp,omitempty"`
	Winner        *string    `gorm:"type:varchar(64)" json:"winner,omitempty"`

	IsPublic  bool    `gorm:"not null;index" json:"is_public"`
	StreamURL *string `gorm:"type:text" json:"stream_url,omitempty"`

	ReadyA             bool       `gorm:"not null;default:false" json:"ready_a"`
	ReadyB             bool       `gorm:"not null;default:false" json:"ready_b"`
	CountdownStartedAt *time.Time `json:"countdown_started_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`

	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `gorm:"index" json:"resolved_at,omitempty"`
}

// IsParticipant reports whether identity is one of the two seats.
func (w *WagerRecord) IsParticipant(identity string) bool {
	if identity == "" {
		return false
	}
	return w.PlayerA == identity || (w.PlayerB != nil && *w.PlayerB == identity)
}

// Opponent returns the other seat for identity, or "" if there is none.
func (w *WagerRecord) Opponent(identity string) string {
	switch {
	case w.PlayerA == identity && w.PlayerB != nil:
		return *w.PlayerB
	case w.PlayerB != nil && *w.PlayerB == identity:
		return w.PlayerA
	}
	return ""
}

package models

import (
	"database/sql"
	"time"
)

type MatchRecord struct {
	ID            int64         `json:"id"`       // Primary key
	MatchID       string        `json:"match_id"` // Engine match id (uuid)
	Seats         int           `json:"seats"`    // 2 or 4
	EntryFee      int64         `json:"entry_fee"`
	CommissionPct int64         `json:"commission_pct"`
	Distribution  string        `json:"distribution"`
	WinnerUserID  sql.NullInt64 `json:"winner_user_id"`
	Status        string        `json:"status"` // 'waiting', 'active', 'completed', 'aborted'
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

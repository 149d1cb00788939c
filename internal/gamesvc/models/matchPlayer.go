package models

import "time"

type MatchPlayer struct {
	ID        int64     `json:"id"`       // Primary key
	MatchID   string    `json:"match_id"` // FK to matches(match_id)
	UserID    int64     `json:"user_id"`  // FK to users(user_id)
	Color     string    `json:"color"`    // 'red', 'green', 'yellow', 'blue'
	Rank      int       `json:"rank"`     // 0 until the match completes
	Status    string    `json:"status"`   // 'seated', 'forfeited', 'finished', 'refunded'
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

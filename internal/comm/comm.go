package comm

import (
	"encoding/json"
	"time"

	"github.com/ludopro/ludo-services/internal/ludo"
)

type WSMessage struct {
	Type     string          `json:"type"` // e.g. "roll-dice", "apply-move"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

type PlayerData struct {
	Name    string `json:"name"`
	UserId  int64  `json:"user_id"`
	Balance string `json:"balance"`
}

// CreateMatchRequest opens a new waiting match.
type CreateMatchRequest struct {
	UserId        int64  `json:"user_id"`
	Seats         int    `json:"seats"`
	EntryFee      int64  `json:"entry_fee"`
	CommissionPct int64  `json:"commission_pct"`
	Distribution  string `json:"distribution,omitempty"`
}

type CreateMatchRes struct {
	Status  string `json:"status"`
	MatchId string `json:"match_id,omitempty"`
}

// SeatRequest claims a color in a waiting match.
type SeatRequest struct {
	UserId  int64  `json:"user_id"`
	Name    string `json:"name"`
	MatchId string `json:"match_id"`
	Color   string `json:"color"`
}

type SeatRes struct {
	Status  string `json:"status"` // ok | seat-taken | match-full | insufficient-balance | ...
	MatchId string `json:"match_id"`
	Color   string `json:"color,omitempty"`
	Seated  int    `json:"seated,omitempty"`
}

// RollRequest asks for a dice roll in an active match.
type RollRequest struct {
	UserId  int64  `json:"user_id"`
	MatchId string `json:"match_id"`
}

type RollRes struct {
	Status  string          `json:"status"`
	MatchId string          `json:"match_id"`
	UserId  int64           `json:"user_id"`
	Roll    ludo.RollResult `json:"roll"`
}

// MoveRequest selects a token for the pending roll.
type MoveRequest struct {
	UserId  int64  `json:"user_id"`
	MatchId string `json:"match_id"`
	TokenId int    `json:"token_id"`
}

type MoveRes struct {
	Status  string          `json:"status"`
	MatchId string          `json:"match_id"`
	UserId  int64           `json:"user_id"`
	Move    ludo.MoveResult `json:"move"`
}

// LegalMovesRequest is the pure query for the current movable tokens.
type LegalMovesRequest struct {
	UserId  int64  `json:"user_id"`
	MatchId string `json:"match_id"`
}

type LegalMovesRes struct {
	Status  string `json:"status"`
	MatchId string `json:"match_id"`
	Tokens  []int  `json:"tokens"`
}

// StateRequest fetches a read-only snapshot.
type StateRequest struct {
	UserId  int64  `json:"user_id"`
	MatchId string `json:"match_id"`
}

type StateRes struct {
	Status   string        `json:"status"`
	Snapshot ludo.Snapshot `json:"snapshot"`
}

// MatchStarted is broadcast when a waiting match activates.
type MatchStarted struct {
	MatchId  string        `json:"match_id"`
	Snapshot ludo.Snapshot `json:"snapshot"`
}

// TurnChanged is broadcast whenever the turn passes, including timeout skips.
type TurnChanged struct {
	MatchId  string `json:"match_id"`
	UserId   int64  `json:"user_id"`
	Reason   string `json:"reason,omitempty"` // move | no-move | third-six | turn-timeout | forfeit
	Deadline int64  `json:"deadline_unix_ms"`
}

// PlayerForfeited is broadcast when a disconnect grace lapses.
type PlayerForfeited struct {
	MatchId string `json:"match_id"`
	UserId  int64  `json:"user_id"`
}

// SettlementEvent carries the payout or refund instruction to the ledger.
// MatchId is the idempotency key for at-least-once delivery.
type SettlementEvent struct {
	MatchId    string        `json:"match_id"`
	Aborted    bool          `json:"aborted"`
	GrossPool  int64         `json:"gross_pool"`
	Commission int64         `json:"commission"`
	Ranking    []int64       `json:"ranking,omitempty"`
	Payouts    []ludo.Payout `json:"payouts"`
	EmittedAt  time.Time     `json:"emitted_at"`
}

type BalanceStatus struct {
	Status    bool  `json:"status"`
	Timestamp int64 `json:"timestamp"`
}

type Res struct {
	Status bool `json:"status"`
}

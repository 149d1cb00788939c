package ludo

import "time"

// TokenSnapshot is a value copy of one token.
type TokenSnapshot struct {
	ID       int         `json:"id"`
	Status   TokenStatus `json:"status"`
	Position int         `json:"position"`
}

type PlayerSnapshot struct {
	UserID    int64           `json:"user_id"`
	Name      string          `json:"name"`
	Color     PlayerColor     `json:"color"`
	Tokens    []TokenSnapshot `json:"tokens"`
	IsTurn    bool            `json:"is_turn"`
	SixStreak int             `json:"six_streak"`
	Forfeited bool            `json:"forfeited"`
	Rank      int             `json:"rank,omitempty"`
}

// Snapshot is a read-only, side-effect-free view of a match. Repeated
// snapshots without intervening commands are identical.
type Snapshot struct {
	MatchID      string           `json:"match_id"`
	Status       MatchStatus      `json:"status"`
	Phase        TurnPhase        `json:"phase"`
	Roll         int              `json:"roll"` // 0 between rolls
	RollSeq      uint64           `json:"roll_seq"`
	TurnUserID   int64            `json:"turn_user_id,omitempty"`
	TurnDeadline time.Time        `json:"turn_deadline"`
	Config       GameConfig       `json:"config"`
	Players      []PlayerSnapshot `json:"players"`
}

// Snapshot deep-copies the match state.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		MatchID:      m.ID,
		Status:       m.status,
		Phase:        m.phase,
		Roll:         m.roll,
		RollSeq:      m.rollSeq,
		TurnDeadline: m.turnDeadline,
		Config:       m.Config,
	}
	if m.status == MatchActive {
		s.TurnUserID = m.players[m.turnIdx].UserID
	}
	for _, p := range m.players {
		ps := PlayerSnapshot{
			UserID:    p.UserID,
			Name:      p.Name,
			Color:     p.Color,
			IsTurn:    p.IsTurn,
			SixStreak: p.SixStreak,
			Forfeited: p.Forfeited,
			Rank:      p.Rank,
		}
		for _, t := range p.Tokens {
			ps.Tokens = append(ps.Tokens, TokenSnapshot{ID: t.ID, Status: t.Status, Position: t.Position})
		}
		s.Players = append(s.Players, ps)
	}
	return s
}

package ludo

// TokenStatus tells how a token's Position is to be read.
type TokenStatus string

const (
	StatusBase    TokenStatus = "BASE"     // Position unused
	StatusPath    TokenStatus = "PATH"     // Position is an absolute ring index (0-51)
	StatusHomeRun TokenStatus = "HOME_RUN" // Position is a home-column index (0-5)
	StatusWin     TokenStatus = "WIN"      // Position unused, immutable from here on
)

type Token struct {
	ID       int         `json:"id"` // 0-3 within its player
	Color    PlayerColor `json:"color"`
	Status   TokenStatus `json:"status"`
	Position int         `json:"position"`
}

// progress returns the token's total steps traveled from the start cell,
// or -1 when the token is not on the track.
func (t *Token) progress() int {
	switch t.Status {
	case StatusPath:
		return (t.Position - startCell[t.Color] + RingSize) % RingSize
	case StatusHomeRun:
		return ringTrack + t.Position
	default:
		return -1
	}
}

// RingCell returns the absolute ring index of a PATH token, or -1 otherwise.
func (t *Token) RingCell() int {
	if t.Status != StatusPath {
		return -1
	}
	return t.Position
}

// sendToBase resets a captured token.
func (t *Token) sendToBase() {
	t.Status = StatusBase
	t.Position = 0
}

// placeAt moves the token to an absolute progress offset from its start cell.
func (t *Token) placeAt(progress int) {
	switch {
	case progress < 0 || progress > WinDistance:
		// callers validate with LegalMoves first; keep the token untouched
	case progress == WinDistance:
		t.Status = StatusWin
		t.Position = 0
	case progress >= ringTrack:
		t.Status = StatusHomeRun
		t.Position = progress - ringTrack
	default:
		t.Status = StatusPath
		t.Position = ringCellAt(t.Color, progress)
	}
}

type GamePlayer struct {
	UserID    int64                   `json:"user_id"`
	Name      string                  `json:"name"`
	Color     PlayerColor             `json:"color"`
	Tokens    [TokensPerPlayer]*Token `json:"tokens"`
	IsTurn    bool                    `json:"is_turn"`
	SixStreak int                     `json:"six_streak"`
	Forfeited bool                    `json:"forfeited"`
	Rank      int                     `json:"rank"` // 0 while unfinished
}

func newGamePlayer(userID int64, name string, color PlayerColor) *GamePlayer {
	p := &GamePlayer{UserID: userID, Name: name, Color: color}
	for i := range p.Tokens {
		p.Tokens[i] = &Token{ID: i, Color: color, Status: StatusBase}
	}
	return p
}

// Finished reports whether all four tokens have reached the win slot.
func (p *GamePlayer) Finished() bool {
	for _, t := range p.Tokens {
		if t.Status != StatusWin {
			return false
		}
	}
	return true
}

// active players still take turns: neither forfeited nor finished.
func (p *GamePlayer) active() bool {
	return !p.Forfeited && p.Rank == 0
}

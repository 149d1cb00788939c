package ludo

import (
	"fmt"
	"sync"
	"time"
)

type MatchStatus string

const (
	MatchWaiting   MatchStatus = "WAITING"
	MatchActive    MatchStatus = "ACTIVE"
	MatchCompleted MatchStatus = "COMPLETED"
	MatchAborted   MatchStatus = "ABORTED"
)

type TurnPhase string

const (
	PhaseAwaitRoll TurnPhase = "AWAITING_ROLL"
	PhaseAwaitMove TurnPhase = "AWAITING_MOVE_SELECTION"
)

// Dice produces a dice outcome for a match roll. Implementations must be
// deterministic for a given (matchID, turnSeq) under the active seed.
type Dice interface {
	Roll(matchID string, turnSeq uint64) (int, error)
}

type DistributionPolicy string

const (
	WinnerTakeAll DistributionPolicy = "winner-take-all"
	RankSplit     DistributionPolicy = "rank-split"
)

// GameConfig is copied into the match at creation and immutable after.
// EntryFee is in minor currency units.
type GameConfig struct {
	Seats         int                `json:"seats"` // 2 or 4, never 3
	EntryFee      int64              `json:"entry_fee"`
	CommissionPct int64              `json:"commission_pct"`
	Distribution  DistributionPolicy `json:"distribution"`
	SplitBps      []int64            `json:"split_bps,omitempty"` // per rank, rank-split only
}

func (c GameConfig) validate() error {
	if c.Seats != 2 && c.Seats != 4 {
		return fmt.Errorf("seats must be 2 or 4, got %d", c.Seats)
	}
	if c.EntryFee < 0 {
		return fmt.Errorf("entry fee must not be negative")
	}
	if c.CommissionPct < 0 || c.CommissionPct > 100 {
		return fmt.Errorf("commission percent out of range: %d", c.CommissionPct)
	}
	if c.Distribution == RankSplit && len(c.SplitBps) == 0 {
		return fmt.Errorf("rank-split distribution needs split_bps")
	}
	return nil
}

// Match is the authoritative state of one Ludo game. All commands are
// serialized on the match mutex; rejected commands never mutate state.
type Match struct {
	mu sync.Mutex

	ID     string
	Config GameConfig

	players []*GamePlayer // seating order
	turnIdx int
	phase   TurnPhase
	roll    int // 0 between rolls
	rollSeq uint64
	status  MatchStatus

	nextRank int
	dice     Dice

	turnBudget   time.Duration
	turnDeadline time.Time

	// disconnect grace deadlines by user id
	graceUntil map[int64]time.Time

	CreatedAt time.Time
}

func NewMatch(id string, cfg GameConfig, dice Dice, turnBudget time.Duration) (*Match, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid game config: %w", err)
	}
	return &Match{
		ID:         id,
		Config:     cfg,
		phase:      PhaseAwaitRoll,
		status:     MatchWaiting,
		nextRank:   1,
		dice:       dice,
		turnBudget: turnBudget,
		graceUntil: make(map[int64]time.Time),
		CreatedAt:  time.Now(),
	}, nil
}

// SeatPlayer adds a player to a waiting match. Colors are unique per match.
func (m *Match) SeatPlayer(userID int64, name string, color PlayerColor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != MatchWaiting {
		return ErrMatchNotActive
	}
	if !ValidColor(color) {
		return fmt.Errorf("unknown color %q: %w", color, ErrSeatTaken)
	}
	if len(m.players) >= m.Config.Seats {
		return ErrMatchFull
	}
	for _, p := range m.players {
		if p.Color == color || p.UserID == userID {
			return ErrSeatTaken
		}
	}
	m.players = append(m.players, newGamePlayer(userID, name, color))
	return nil
}

// SeatedCount returns the number of filled seats.
func (m *Match) SeatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.players)
}

// Status returns the current match status.
func (m *Match) Status() MatchStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start activates a fully seated match. The first seated player rolls first.
func (m *Match) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != MatchWaiting {
		return ErrMatchNotActive
	}
	if len(m.players) != m.Config.Seats {
		return fmt.Errorf("%d of %d seats filled: %w", len(m.players), m.Config.Seats, ErrMatchFull)
	}
	m.status = MatchActive
	m.turnIdx = 0
	m.players[0].IsTurn = true
	m.phase = PhaseAwaitRoll
	m.turnDeadline = time.Now().Add(m.turnBudget)
	return nil
}

// Abort cancels a match before a ranking exists. Seated players are refunded.
func (m *Match) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == MatchCompleted || m.status == MatchAborted {
		return ErrMatchNotActive
	}
	m.abortLocked()
	return nil
}

func (m *Match) abortLocked() {
	m.status = MatchAborted
	for _, p := range m.players {
		p.IsTurn = false
	}
	m.roll = 0
}

// RollResult reports the outcome of a dice roll command.
type RollResult struct {
	Value      int    `json:"value"`
	TurnSeq    uint64 `json:"turn_seq"`
	Movers     []int  `json:"movers"` // token ids that may move, empty when the turn auto-ended
	ThirdSix   bool   `json:"third_six"`
	TurnEnded  bool   `json:"turn_ended"`
	NextUserID int64  `json:"next_user_id,omitempty"`
}

// RollDice rolls for the player whose turn it is. A third consecutive six
// forfeits the move; a roll with zero legal moves ends the turn with no
// board mutation.
func (m *Match) RollDice(userID int64) (RollResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.commandPlayerLocked(userID, PhaseAwaitRoll)
	if err != nil {
		return RollResult{}, err
	}

	seq := m.rollSeq + 1
	value, err := m.dice.Roll(m.ID, seq)
	if err != nil {
		return RollResult{}, fmt.Errorf("roll %s seq %d: %w", m.ID, seq, ErrRngUnavailable)
	}
	m.rollSeq = seq

	if value == 6 {
		p.SixStreak++
	} else {
		p.SixStreak = 0
	}

	res := RollResult{Value: value, TurnSeq: seq}

	// anti-stalling: the third six in a row forfeits the move outright
	if p.SixStreak >= 3 {
		res.ThirdSix = true
		res.TurnEnded = true
		m.advanceTurnLocked()
		res.NextUserID = m.currentUserLocked()
		return res, nil
	}

	movers := m.legalMovesLocked(p, value)
	if len(movers) == 0 {
		res.TurnEnded = true
		m.advanceTurnLocked()
		res.NextUserID = m.currentUserLocked()
		return res, nil
	}

	m.roll = value
	m.phase = PhaseAwaitMove
	res.Movers = movers
	return res, nil
}

// LegalMoves is a pure query: the token ids the player may move with the
// current roll. Valid only while a move selection is pending.
func (m *Match) LegalMoves(userID int64) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.commandPlayerLocked(userID, PhaseAwaitMove)
	if err != nil {
		return nil, err
	}
	return m.legalMovesLocked(p, m.roll), nil
}

// CapturedToken identifies an opposing token sent back to base.
type CapturedToken struct {
	UserID  int64       `json:"user_id"`
	Color   PlayerColor `json:"color"`
	TokenID int         `json:"token_id"`
}

// MoveResult reports the outcome of an applied move.
type MoveResult struct {
	TokenID    int             `json:"token_id"`
	Status     TokenStatus     `json:"status"`
	Position   int             `json:"position"`
	Captured   []CapturedToken `json:"captured,omitempty"`
	Won        bool            `json:"won"`            // this token reached the win slot
	Rank       int             `json:"rank,omitempty"` // set when the player finished
	ExtraRoll  bool            `json:"extra_roll"`
	TurnEnded  bool            `json:"turn_ended"`
	NextUserID int64           `json:"next_user_id,omitempty"`
	Terminal   bool            `json:"terminal"` // match reached COMPLETED
}

// ApplyMove advances the named token by the current roll. The advance and
// any capture commit as one unit under the match lock.
func (m *Match) ApplyMove(userID int64, tokenID int) (MoveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.commandPlayerLocked(userID, PhaseAwaitMove)
	if err != nil {
		return MoveResult{}, err
	}

	legal := false
	for _, id := range m.legalMovesLocked(p, m.roll) {
		if id == tokenID {
			legal = true
			break
		}
	}
	if !legal {
		return MoveResult{}, ErrIllegalMove
	}

	tok := p.Tokens[tokenID]
	dest := 0 // base exit lands on the start cell
	if tok.Status != StatusBase {
		dest = tok.progress() + m.roll
	}

	res := MoveResult{TokenID: tokenID}

	// capture resolves together with the advance
	if dest < ringTrack {
		ring := ringCellAt(p.Color, dest)
		if !IsSafeCell(ring) {
			for _, cap := range m.opponentTokensAtLocked(ring, p.Color) {
				cap.sendToBase()
				res.Captured = append(res.Captured, CapturedToken{
					UserID:  m.ownerOfLocked(cap),
					Color:   cap.Color,
					TokenID: cap.ID,
				})
			}
		}
	}
	tok.placeAt(dest)
	res.Status = tok.Status
	res.Position = tok.Position

	if tok.Status == StatusWin {
		res.Won = true
		if p.Finished() {
			p.Rank = m.nextRank
			m.nextRank++
			res.Rank = p.Rank
		}
	}

	rolled := m.roll
	m.roll = 0

	if m.checkTerminalLocked() {
		res.Terminal = true
		res.TurnEnded = true
		return res, nil
	}

	if rolled == 6 && p.active() {
		// a six earns another roll unless the streak rule already ended the turn
		m.phase = PhaseAwaitRoll
		m.turnDeadline = time.Now().Add(m.turnBudget)
		res.ExtraRoll = true
		return res, nil
	}

	res.TurnEnded = true
	m.advanceTurnLocked()
	res.NextUserID = m.currentUserLocked()
	return res, nil
}

// SkipTurn forfeits the remainder of the current turn; used by the
// coordinator on turn timeout. The board is left untouched.
func (m *Match) SkipTurn() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != MatchActive {
		return 0, ErrMatchNotActive
	}
	m.roll = 0
	m.advanceTurnLocked()
	return m.currentUserLocked(), nil
}

// TurnDeadline returns the wall-clock deadline of the current turn.
func (m *Match) TurnDeadline() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnDeadline
}

// MarkDisconnected records a disconnect grace deadline for a seated player.
func (m *Match) MarkDisconnected(userID int64, graceUntil time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playerLocked(userID) != nil {
		m.graceUntil[userID] = graceUntil
	}
}

// MarkReconnected clears a pending disconnect grace deadline.
func (m *Match) MarkReconnected(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.graceUntil, userID)
}

// Forfeit marks a player forfeited. Their tokens stay on the board as
// capturable obstacles but they take no further turns.
func (m *Match) Forfeit(userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.playerLocked(userID)
	if p == nil {
		return ErrMatchNotFound
	}
	if m.status != MatchActive || p.Forfeited || p.Rank > 0 {
		return ErrMatchNotActive
	}
	p.Forfeited = true
	delete(m.graceUntil, userID)

	if m.checkTerminalLocked() {
		return nil
	}
	if p.IsTurn {
		m.roll = 0
		m.advanceTurnLocked()
	}
	return nil
}

// expiredGrace returns users whose disconnect grace has lapsed.
func (m *Match) expiredGrace(now time.Time) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []int64
	for uid, until := range m.graceUntil {
		if now.After(until) {
			out = append(out, uid)
		}
	}
	return out
}

// FinalRanking returns userIDs ordered by final rank. Only meaningful
// once the match is COMPLETED.
func (m *Match) FinalRanking() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ranked := make([]int64, 0, len(m.players))
	for rank := 1; rank <= len(m.players); rank++ {
		for _, p := range m.players {
			if p.Rank == rank {
				ranked = append(ranked, p.UserID)
			}
		}
	}
	return ranked
}

// SeatedUserIDs returns userIDs in seating order.
func (m *Match) SeatedUserIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, len(m.players))
	for i, p := range m.players {
		ids[i] = p.UserID
	}
	return ids
}

// ---- internals, callers hold m.mu ----

// commandPlayerLocked validates seat, turn ownership and phase for a command.
func (m *Match) commandPlayerLocked(userID int64, want TurnPhase) (*GamePlayer, error) {
	if m.status != MatchActive {
		return nil, ErrMatchNotActive
	}
	p := m.playerLocked(userID)
	if p == nil || !p.IsTurn {
		return nil, ErrNotYourTurn
	}
	if m.phase != want {
		return nil, ErrInvalidPhase
	}
	return p, nil
}

func (m *Match) playerLocked(userID int64) *GamePlayer {
	for _, p := range m.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (m *Match) currentUserLocked() int64 {
	if m.status != MatchActive {
		return 0
	}
	return m.players[m.turnIdx].UserID
}

func (m *Match) ownerOfLocked(t *Token) int64 {
	for _, p := range m.players {
		if p.Color == t.Color {
			return p.UserID
		}
	}
	return 0
}

// legalMovesLocked computes the movable token ids for a roll value.
func (m *Match) legalMovesLocked(p *GamePlayer, roll int) []int {
	var movers []int
	for _, t := range p.Tokens {
		switch t.Status {
		case StatusBase:
			// a six always allows base exit; the start cell is the
			// color's own protected entry
			if roll == 6 {
				movers = append(movers, t.ID)
			}
		case StatusPath, StatusHomeRun:
			if m.pathClearLocked(t, roll) {
				movers = append(movers, t.ID)
			}
		}
	}
	return movers
}

// pathClearLocked reports whether a token can advance by roll steps:
// no overshoot past the win slot, no opponent double block on any cell
// it crosses or lands on. Own stacks never block their owner.
func (m *Match) pathClearLocked(t *Token, roll int) bool {
	from := t.progress()
	dest := from + roll
	if dest > WinDistance {
		return false
	}
	for step := from + 1; step <= dest; step++ {
		if step >= ringTrack {
			// home run and win slot are private to the color
			continue
		}
		if m.opponentBlockAtLocked(ringCellAt(t.Color, step), t.Color) {
			return false
		}
	}
	return true
}

// opponentBlockAtLocked reports whether a ring cell holds a double block
// (two or more same-color tokens) of a color other than mover.
func (m *Match) opponentBlockAtLocked(ring int, mover PlayerColor) bool {
	for _, p := range m.players {
		if p.Color == mover {
			continue
		}
		n := 0
		for _, t := range p.Tokens {
			if t.RingCell() == ring {
				n++
			}
		}
		if n >= 2 {
			return true
		}
	}
	return false
}

// opponentTokensAtLocked returns opposing tokens on a ring cell. Blocked
// cells are unreachable, so these are single capturable tokens.
func (m *Match) opponentTokensAtLocked(ring int, mover PlayerColor) []*Token {
	var out []*Token
	for _, p := range m.players {
		if p.Color == mover {
			continue
		}
		for _, t := range p.Tokens {
			if t.RingCell() == ring {
				out = append(out, t)
			}
		}
	}
	return out
}

// advanceTurnLocked hands the turn to the next active seated player.
func (m *Match) advanceTurnLocked() {
	cur := m.players[m.turnIdx]
	cur.IsTurn = false
	cur.SixStreak = 0

	for i := 1; i <= len(m.players); i++ {
		idx := (m.turnIdx + i) % len(m.players)
		if m.players[idx].active() {
			m.turnIdx = idx
			m.players[idx].IsTurn = true
			m.phase = PhaseAwaitRoll
			m.turnDeadline = time.Now().Add(m.turnBudget)
			return
		}
	}
	// no active player left; terminal handling owns this state
}

// checkTerminalLocked resolves COMPLETED / ABORTED transitions. Returns
// true when the match left ACTIVE.
func (m *Match) checkTerminalLocked() bool {
	if m.status != MatchActive {
		return true
	}

	finished, actives := 0, 0
	for _, p := range m.players {
		if p.Rank > 0 {
			finished++
		}
		if p.active() {
			actives++
		}
	}

	// a lone survivor with no finish yet means the match never produced
	// a ranking: refund instead of paying out
	if finished == 0 {
		if actives < 2 {
			m.abortLocked()
			return true
		}
		return false
	}

	done := false
	switch {
	case len(m.players) == 2:
		done = true // first finish decides a 2-player match
	case finished >= len(m.players)-1:
		done = true
	case actives <= 1:
		done = true
	}
	if !done {
		return false
	}

	m.completeLocked()
	return true
}

// completeLocked assigns the remaining ranks (actives in seating order,
// then forfeited players) and closes the match.
func (m *Match) completeLocked() {
	for _, p := range m.players {
		if p.Rank == 0 && p.active() {
			p.Rank = m.nextRank
			m.nextRank++
		}
	}
	for _, p := range m.players {
		if p.Rank == 0 {
			p.Rank = m.nextRank
			m.nextRank++
		}
	}
	for _, p := range m.players {
		p.IsTurn = false
	}
	m.roll = 0
	m.status = MatchCompleted
}

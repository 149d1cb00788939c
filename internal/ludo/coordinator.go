package ludo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventSink receives the engine events that do not flow back through a
// command response: timeout skips, forfeits and terminal settlements.
type EventSink interface {
	TurnSkipped(matchID string, skipped, next int64, reason string)
	PlayerForfeited(matchID string, userID int64)
	MatchSettled(s Settlement)
	MatchAborted(s Settlement)
}

// Coordinator owns the live matches of one engine instance. Commands on
// one match serialize on that match's lock; matches run in parallel.
type Coordinator struct {
	mu      sync.Mutex
	matches map[string]*Match

	dice       Dice
	sink       EventSink
	turnBudget time.Duration
	grace      time.Duration
}

func NewCoordinator(dice Dice, sink EventSink, turnBudget, disconnectGrace time.Duration) *Coordinator {
	return &Coordinator{
		matches:    make(map[string]*Match),
		dice:       dice,
		sink:       sink,
		turnBudget: turnBudget,
		grace:      disconnectGrace,
	}
}

// CreateMatch registers a new waiting match and returns its id.
func (c *Coordinator) CreateMatch(cfg GameConfig) (string, error) {
	id := uuid.New().String()
	m, err := NewMatch(id, cfg, c.dice, c.turnBudget)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.matches[id] = m
	c.mu.Unlock()
	return id, nil
}

func (c *Coordinator) match(matchID string) (*Match, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrMatchNotFound)
	}
	return m, nil
}

// SeatPlayer fills a seat. The match stays WAITING until StartMatch.
func (c *Coordinator) SeatPlayer(matchID string, userID int64, name string, color PlayerColor) error {
	m, err := c.match(matchID)
	if err != nil {
		return err
	}
	return m.SeatPlayer(userID, name, color)
}

// StartMatch activates a fully seated match.
func (c *Coordinator) StartMatch(matchID string) (Snapshot, error) {
	m, err := c.match(matchID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := m.Start(); err != nil {
		return Snapshot{}, err
	}
	return m.Snapshot(), nil
}

// AbortMatch cancels a match and emits the refund instruction.
func (c *Coordinator) AbortMatch(matchID string) error {
	m, err := c.match(matchID)
	if err != nil {
		return err
	}
	if err := m.Abort(); err != nil {
		return err
	}
	c.finalize(m)
	return nil
}

// RollDice rolls for a player. A seed-store failure is retried once, then
// surfaced; the coordinator sweep will time the turn out eventually.
func (c *Coordinator) RollDice(matchID string, userID int64) (RollResult, error) {
	m, err := c.match(matchID)
	if err != nil {
		return RollResult{}, err
	}
	res, err := m.RollDice(userID)
	if errors.Is(err, ErrRngUnavailable) {
		res, err = m.RollDice(userID)
	}
	return res, err
}

// LegalMoves is a pure query for the current roll.
func (c *Coordinator) LegalMoves(matchID string, userID int64) ([]int, error) {
	m, err := c.match(matchID)
	if err != nil {
		return nil, err
	}
	return m.LegalMoves(userID)
}

// ApplyMove applies a selected move and settles the match if it ended.
func (c *Coordinator) ApplyMove(matchID string, userID int64, tokenID int) (MoveResult, error) {
	m, err := c.match(matchID)
	if err != nil {
		return MoveResult{}, err
	}
	res, err := m.ApplyMove(userID, tokenID)
	if err != nil {
		return MoveResult{}, err
	}
	if res.Terminal {
		c.finalize(m)
	}
	return res, nil
}

// GetState returns a read-only snapshot.
func (c *Coordinator) GetState(matchID string) (Snapshot, error) {
	m, err := c.match(matchID)
	if err != nil {
		return Snapshot{}, err
	}
	return m.Snapshot(), nil
}

// PlayerDisconnected starts the disconnect grace clock for a player.
func (c *Coordinator) PlayerDisconnected(matchID string, userID int64) error {
	m, err := c.match(matchID)
	if err != nil {
		return err
	}
	m.MarkDisconnected(userID, time.Now().Add(c.grace))
	return nil
}

// PlayerReconnected clears a pending grace clock.
func (c *Coordinator) PlayerReconnected(matchID string, userID int64) error {
	m, err := c.match(matchID)
	if err != nil {
		return err
	}
	m.MarkReconnected(userID)
	return nil
}

// Sweep runs one scheduled check over all live matches: expired turn
// deadlines auto-skip, lapsed disconnect graces forfeit. Never blocks on
// a slow or absent client.
func (c *Coordinator) Sweep(now time.Time) {
	c.mu.Lock()
	live := make([]*Match, 0, len(c.matches))
	for _, m := range c.matches {
		live = append(live, m)
	}
	c.mu.Unlock()

	for _, m := range live {
		for _, uid := range m.expiredGrace(now) {
			if err := m.Forfeit(uid); err == nil && c.sink != nil {
				c.sink.PlayerForfeited(m.ID, uid)
			}
		}
		if m.Status() == MatchActive {
			if deadline := m.TurnDeadline(); !deadline.IsZero() && now.After(deadline) {
				skipped := m.Snapshot().TurnUserID
				next, err := m.SkipTurn()
				if err == nil && c.sink != nil {
					c.sink.TurnSkipped(m.ID, skipped, next, "turn-timeout")
				}
			}
		}
		switch m.Status() {
		case MatchCompleted, MatchAborted:
			c.finalize(m)
		}
	}
}

// RunSweeper drives Sweep on a fixed interval until stop is closed.
func (c *Coordinator) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep(time.Now())
		case <-stop:
			return
		}
	}
}

// finalize emits the settlement or refund exactly once and archives the
// match. The match id is the settlement idempotency key.
func (c *Coordinator) finalize(m *Match) {
	c.mu.Lock()
	if _, live := c.matches[m.ID]; !live {
		c.mu.Unlock()
		return
	}
	delete(c.matches, m.ID)
	c.mu.Unlock()

	switch m.Status() {
	case MatchCompleted:
		s, err := Settle(m.ID, m.Config, m.FinalRanking())
		if err == nil && c.sink != nil {
			c.sink.MatchSettled(s)
		}
	case MatchAborted:
		if c.sink != nil {
			c.sink.MatchAborted(Refund(m.ID, m.Config, m.SeatedUserIDs()))
		}
	}
}

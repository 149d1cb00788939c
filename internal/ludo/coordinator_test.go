package ludo

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type memSink struct {
	skipped   []string
	forfeited []int64
	settled   []Settlement
	aborted   []Settlement
}

func (s *memSink) TurnSkipped(matchID string, _, _ int64, reason string) {
	s.skipped = append(s.skipped, reason)
}
func (s *memSink) PlayerForfeited(_ string, userID int64) {
	s.forfeited = append(s.forfeited, userID)
}
func (s *memSink) MatchSettled(st Settlement) { s.settled = append(s.settled, st) }
func (s *memSink) MatchAborted(st Settlement) { s.aborted = append(s.aborted, st) }

func seatAndStart(t *testing.T, c *Coordinator, cfg GameConfig) string {
	t.Helper()
	id, err := c.CreateMatch(cfg)
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	colors := []PlayerColor{ColorRed, ColorGreen, ColorYellow, ColorBlue}
	for i := 0; i < cfg.Seats; i++ {
		if err := c.SeatPlayer(id, int64(i+1), "p", colors[i]); err != nil {
			t.Fatalf("SeatPlayer: %v", err)
		}
	}
	if _, err := c.StartMatch(id); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	return id
}

func TestCoordinatorLifecycle(t *testing.T) {
	sink := &memSink{}
	c := NewCoordinator(&scriptDice{rolls: []int{6}}, sink, time.Minute, time.Minute)

	id := seatAndStart(t, c, GameConfig{Seats: 2, EntryFee: 50, CommissionPct: 10})

	snap, err := c.GetState(id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if snap.Status != MatchActive || snap.TurnUserID != 1 {
		t.Fatalf("snapshot = %+v, want active with player 1 to roll", snap)
	}

	res, err := c.RollDice(id, 1)
	if err != nil {
		t.Fatalf("RollDice: %v", err)
	}
	moves, err := c.LegalMoves(id, 1)
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != len(res.Movers) {
		t.Fatalf("legal moves %v disagree with roll movers %v", moves, res.Movers)
	}
	if _, err := c.ApplyMove(id, 1, 0); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}

	if _, err := c.GetState("missing"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("missing match err = %v, want ErrMatchNotFound", err)
	}
}

func TestSweepSkipsExpiredTurn(t *testing.T) {
	sink := &memSink{}
	c := NewCoordinator(&scriptDice{}, sink, time.Millisecond, time.Minute)

	id := seatAndStart(t, c, GameConfig{Seats: 2, EntryFee: 50, CommissionPct: 10})

	c.Sweep(time.Now().Add(time.Second))
	if len(sink.skipped) != 1 || sink.skipped[0] != "turn-timeout" {
		t.Fatalf("skips = %v, want one turn-timeout", sink.skipped)
	}
	snap, err := c.GetState(id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if snap.TurnUserID != 2 {
		t.Fatalf("turn = %d after timeout, want 2", snap.TurnUserID)
	}
}

func TestSweepForfeitsLapsedDisconnect(t *testing.T) {
	sink := &memSink{}
	c := NewCoordinator(&scriptDice{}, sink, time.Hour, time.Millisecond)

	id := seatAndStart(t, c, GameConfig{Seats: 4, EntryFee: 50, CommissionPct: 10})
	if err := c.PlayerDisconnected(id, 3); err != nil {
		t.Fatalf("PlayerDisconnected: %v", err)
	}

	c.Sweep(time.Now().Add(time.Second))
	if len(sink.forfeited) != 1 || sink.forfeited[0] != 3 {
		t.Fatalf("forfeits = %v, want [3]", sink.forfeited)
	}

	snap, err := c.GetState(id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !snap.Players[2].Forfeited {
		t.Fatalf("player 3 not forfeited after grace lapse")
	}
}

func TestReconnectClearsGrace(t *testing.T) {
	sink := &memSink{}
	c := NewCoordinator(&scriptDice{}, sink, time.Hour, time.Millisecond)

	id := seatAndStart(t, c, GameConfig{Seats: 4, EntryFee: 50, CommissionPct: 10})
	if err := c.PlayerDisconnected(id, 3); err != nil {
		t.Fatalf("PlayerDisconnected: %v", err)
	}
	if err := c.PlayerReconnected(id, 3); err != nil {
		t.Fatalf("PlayerReconnected: %v", err)
	}

	c.Sweep(time.Now().Add(time.Second))
	if len(sink.forfeited) != 0 {
		t.Fatalf("forfeits = %v after reconnect, want none", sink.forfeited)
	}
}

func TestSettlementEmittedExactlyOnce(t *testing.T) {
	sink := &memSink{}
	c := NewCoordinator(&scriptDice{rolls: []int{1}}, sink, time.Minute, time.Minute)

	id := seatAndStart(t, c, GameConfig{Seats: 2, EntryFee: 50, CommissionPct: 10})

	// put player 1 one step from finishing
	m, err := c.match(id)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	for _, tok := range m.players[0].Tokens[:3] {
		tok.placeAt(WinDistance)
	}
	m.players[0].Tokens[3].placeAt(WinDistance - 1)

	if _, err := c.RollDice(id, 1); err != nil {
		t.Fatalf("RollDice: %v", err)
	}
	res, err := c.ApplyMove(id, 1, 3)
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if !res.Terminal {
		t.Fatalf("move = %+v, want terminal", res)
	}

	if len(sink.settled) != 1 {
		t.Fatalf("settlements = %d, want exactly 1", len(sink.settled))
	}
	st := sink.settled[0]
	if st.MatchID != id || st.Payouts[0].Amount != 90 {
		t.Fatalf("settlement = %+v, want winner payout 90 for %s", st, id)
	}
	if !reflect.DeepEqual(st.Ranking, []int64{1, 2}) {
		t.Fatalf("ranking = %v, want [1 2]", st.Ranking)
	}

	// archived after settlement; a second sweep must not re-emit
	c.Sweep(time.Now())
	if len(sink.settled) != 1 {
		t.Fatalf("settlement re-emitted")
	}
	if _, err := c.GetState(id); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("archived match err = %v, want ErrMatchNotFound", err)
	}
}

func TestAbortEmitsRefunds(t *testing.T) {
	sink := &memSink{}
	c := NewCoordinator(&scriptDice{}, sink, time.Minute, time.Minute)

	id, err := c.CreateMatch(GameConfig{Seats: 2, EntryFee: 50, CommissionPct: 10})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if err := c.SeatPlayer(id, 1, "amara", ColorRed); err != nil {
		t.Fatalf("SeatPlayer: %v", err)
	}

	if err := c.AbortMatch(id); err != nil {
		t.Fatalf("AbortMatch: %v", err)
	}
	if len(sink.aborted) != 1 {
		t.Fatalf("aborts = %d, want 1", len(sink.aborted))
	}
	st := sink.aborted[0]
	if !st.Aborted || len(st.Payouts) != 1 || st.Payouts[0].Amount != 50 {
		t.Fatalf("refund = %+v, want full 50 for the one seated player", st)
	}
}

func TestRngFailureRetriedOnceThenSurfaced(t *testing.T) {
	sink := &memSink{}
	// an empty script fails the first attempt and the retry
	c := NewCoordinator(&scriptDice{}, sink, time.Minute, time.Minute)

	id := seatAndStart(t, c, GameConfig{Seats: 2, EntryFee: 50, CommissionPct: 10})
	if _, err := c.RollDice(id, 1); !errors.Is(err, ErrRngUnavailable) {
		t.Fatalf("err = %v, want ErrRngUnavailable", err)
	}
}

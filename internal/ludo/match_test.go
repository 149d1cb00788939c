package ludo

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

// scriptDice plays back a fixed roll sequence; an exhausted script
// surfaces as a seed-store failure.
type scriptDice struct {
	rolls []int
}

func (d *scriptDice) Roll(string, uint64) (int, error) {
	if len(d.rolls) == 0 {
		return 0, ErrRngUnavailable
	}
	v := d.rolls[0]
	d.rolls = d.rolls[1:]
	return v, nil
}

func activeMatch(t *testing.T, seats int, dice Dice) *Match {
	t.Helper()
	m, err := NewMatch("m-test", GameConfig{Seats: seats, EntryFee: 50, CommissionPct: 10}, dice, time.Minute)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	colors := []PlayerColor{ColorRed, ColorGreen, ColorYellow, ColorBlue}
	names := []string{"amara", "bek", "chora", "dawa"}
	for i := 0; i < seats; i++ {
		if err := m.SeatPlayer(int64(i+1), names[i], colors[i]); err != nil {
			t.Fatalf("SeatPlayer %d: %v", i+1, err)
		}
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return m
}

// placeOnRing puts a token on an absolute ring cell, bypassing movement.
func placeOnRing(t *testing.T, m *Match, seat, tokenID, ring int) {
	t.Helper()
	p := m.players[seat]
	progress := (ring - startCell[p.Color] + RingSize) % RingSize
	p.Tokens[tokenID].placeAt(progress)
	if got := p.Tokens[tokenID].RingCell(); got != ring {
		t.Fatalf("placeOnRing: cell = %d, want %d", got, ring)
	}
}

func TestNewMatchRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  GameConfig
	}{
		{name: "three seats", cfg: GameConfig{Seats: 3, EntryFee: 50}},
		{name: "zero seats", cfg: GameConfig{Seats: 0}},
		{name: "negative fee", cfg: GameConfig{Seats: 2, EntryFee: -1}},
		{name: "commission over 100", cfg: GameConfig{Seats: 2, EntryFee: 50, CommissionPct: 101}},
		{name: "rank split without bps", cfg: GameConfig{Seats: 4, EntryFee: 50, Distribution: RankSplit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMatch("m", tt.cfg, &scriptDice{}, time.Minute); err == nil {
				t.Fatalf("NewMatch accepted %+v", tt.cfg)
			}
		})
	}
}

func TestSeatPlayer(t *testing.T) {
	m, err := NewMatch("m", GameConfig{Seats: 2, EntryFee: 50}, &scriptDice{}, time.Minute)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	if err := m.SeatPlayer(1, "amara", ColorRed); err != nil {
		t.Fatalf("first seat: %v", err)
	}
	if err := m.SeatPlayer(2, "bek", ColorRed); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("duplicate color: err = %v, want ErrSeatTaken", err)
	}
	if err := m.SeatPlayer(1, "amara", ColorGreen); !errors.Is(err, ErrSeatTaken) {
		t.Fatalf("duplicate user: err = %v, want ErrSeatTaken", err)
	}
	if err := m.SeatPlayer(2, "bek", ColorGreen); err != nil {
		t.Fatalf("second seat: %v", err)
	}
	if err := m.SeatPlayer(3, "chora", ColorYellow); !errors.Is(err, ErrMatchFull) {
		t.Fatalf("overfull: err = %v, want ErrMatchFull", err)
	}
}

func TestExactlyOneTurnFlagWhileActive(t *testing.T) {
	m := activeMatch(t, 4, &scriptDice{rolls: []int{6, 3, 2}})

	check := func(stage string) {
		snap := m.Snapshot()
		if snap.Status != MatchActive {
			return
		}
		n := 0
		for _, p := range snap.Players {
			if p.IsTurn {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("%s: %d players have the turn, want exactly 1", stage, n)
		}
	}

	check("after start")
	if _, err := m.RollDice(1); err != nil {
		t.Fatalf("roll: %v", err)
	}
	check("after roll")
	if _, err := m.ApplyMove(1, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	check("after move")
	if _, err := m.RollDice(1); err != nil { // extra roll after the six
		t.Fatalf("extra roll: %v", err)
	}
	check("after extra roll")
}

func TestSixWithAllTokensInBaseFreesAllFour(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{6}})

	res, err := m.RollDice(1)
	if err != nil {
		t.Fatalf("RollDice: %v", err)
	}
	if res.Value != 6 || res.TurnEnded {
		t.Fatalf("roll = %+v, want value 6 and an open move phase", res)
	}
	if want := []int{0, 1, 2, 3}; !reflect.DeepEqual(res.Movers, want) {
		t.Fatalf("movers = %v, want %v", res.Movers, want)
	}
}

func TestNonSixWithAllTokensInBaseEndsTurn(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{3}})

	before := m.Snapshot()
	res, err := m.RollDice(1)
	if err != nil {
		t.Fatalf("RollDice: %v", err)
	}
	if !res.TurnEnded || len(res.Movers) != 0 {
		t.Fatalf("roll = %+v, want auto-ended turn with no movers", res)
	}
	if res.NextUserID != 2 {
		t.Fatalf("next turn = %d, want 2", res.NextUserID)
	}

	after := m.Snapshot()
	for i := range after.Players {
		if !reflect.DeepEqual(before.Players[i].Tokens, after.Players[i].Tokens) {
			t.Fatalf("board mutated by a no-move roll: %+v", after.Players[i].Tokens)
		}
	}
}

func TestThirdConsecutiveSixForfeitsMove(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{6, 6, 6}})

	for i := 0; i < 2; i++ {
		if _, err := m.RollDice(1); err != nil {
			t.Fatalf("roll %d: %v", i+1, err)
		}
		if _, err := m.ApplyMove(1, i); err != nil {
			t.Fatalf("move %d: %v", i+1, err)
		}
	}

	before := m.Snapshot()
	res, err := m.RollDice(1)
	if err != nil {
		t.Fatalf("third roll: %v", err)
	}
	if !res.ThirdSix || !res.TurnEnded {
		t.Fatalf("third six = %+v, want immediate turn end", res)
	}
	if res.NextUserID != 2 {
		t.Fatalf("next turn = %d, want 2", res.NextUserID)
	}

	after := m.Snapshot()
	for i := range after.Players {
		if !reflect.DeepEqual(before.Players[i].Tokens, after.Players[i].Tokens) {
			t.Fatalf("board mutated by forfeited third-six turn")
		}
	}

	// no fourth roll for player 1
	if _, err := m.RollDice(1); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("fourth roll: err = %v, want ErrNotYourTurn", err)
	}
}

func TestCaptureIsAtomicWithAdvance(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{3}})

	placeOnRing(t, m, 0, 0, 1) // red token one step out
	placeOnRing(t, m, 1, 0, 4) // lone green token on red's destination, not safe

	res, err := m.RollDice(1)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if !reflect.DeepEqual(res.Movers, []int{0}) {
		t.Fatalf("movers = %v, want [0]", res.Movers)
	}

	mv, err := m.ApplyMove(1, 0)
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	want := []CapturedToken{{UserID: 2, Color: ColorGreen, TokenID: 0}}
	if !reflect.DeepEqual(mv.Captured, want) {
		t.Fatalf("captured = %v, want %v", mv.Captured, want)
	}

	snap := m.Snapshot()
	mover := snap.Players[0].Tokens[0]
	victim := snap.Players[1].Tokens[0]
	if mover.Status != StatusPath || mover.Position != 4 {
		t.Fatalf("mover = %+v, want PATH at ring 4", mover)
	}
	if victim.Status != StatusBase || victim.Position != 0 {
		t.Fatalf("victim = %+v, want BASE with cleared position", victim)
	}
}

func TestCaptureSweepsMixedColorSingles(t *testing.T) {
	m := activeMatch(t, 4, &scriptDice{rolls: []int{3}})

	placeOnRing(t, m, 0, 0, 1) // red token one step out
	placeOnRing(t, m, 1, 0, 4) // green and yellow singles share the
	placeOnRing(t, m, 2, 0, 4) // destination; mixed colors, so no block

	res, err := m.RollDice(1)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if !reflect.DeepEqual(res.Movers, []int{0}) {
		t.Fatalf("movers = %v, want [0]", res.Movers)
	}

	mv, err := m.ApplyMove(1, 0)
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	want := []CapturedToken{
		{UserID: 2, Color: ColorGreen, TokenID: 0},
		{UserID: 3, Color: ColorYellow, TokenID: 0},
	}
	if !reflect.DeepEqual(mv.Captured, want) {
		t.Fatalf("captured = %v, want both singles sent home", mv.Captured)
	}

	snap := m.Snapshot()
	for seat := 1; seat <= 2; seat++ {
		if got := snap.Players[seat].Tokens[0]; got.Status != StatusBase {
			t.Fatalf("seat %d token = %+v, want BASE", seat, got)
		}
	}
}

func TestNoCaptureOnSafeCell(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{3}})

	placeOnRing(t, m, 0, 0, 5)
	placeOnRing(t, m, 1, 0, 8) // star cell

	if _, err := m.RollDice(1); err != nil {
		t.Fatalf("roll: %v", err)
	}
	mv, err := m.ApplyMove(1, 0)
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if len(mv.Captured) != 0 {
		t.Fatalf("captured on safe cell: %v", mv.Captured)
	}
	if got := m.Snapshot().Players[1].Tokens[0]; got.Status != StatusPath || got.Position != 8 {
		t.Fatalf("defender moved: %+v", got)
	}
}

func TestDoubleBlockRejectsLanding(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{3}})

	placeOnRing(t, m, 0, 0, 1)
	placeOnRing(t, m, 0, 1, 20) // second red token keeps the move phase open
	placeOnRing(t, m, 1, 0, 4)
	placeOnRing(t, m, 1, 1, 4) // green double block on red's destination

	res, err := m.RollDice(1)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if !reflect.DeepEqual(res.Movers, []int{1}) {
		t.Fatalf("movers = %v, want only the unblocked token", res.Movers)
	}
	if _, err := m.ApplyMove(1, 0); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("ApplyMove into block: err = %v, want ErrIllegalMove", err)
	}
}

func TestDoubleBlockRejectsPassThrough(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{4}})

	placeOnRing(t, m, 0, 0, 1)
	placeOnRing(t, m, 1, 0, 3)
	placeOnRing(t, m, 1, 1, 3) // block between red and its destination

	res, err := m.RollDice(1)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if !res.TurnEnded || len(res.Movers) != 0 {
		t.Fatalf("roll = %+v, want auto-ended turn, blocked path", res)
	}
}

func TestOwnerExtendsOwnBlock(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{3}})

	placeOnRing(t, m, 0, 0, 1)
	placeOnRing(t, m, 0, 1, 4)
	placeOnRing(t, m, 0, 2, 4) // red's own pair on the destination

	if _, err := m.RollDice(1); err != nil {
		t.Fatalf("roll: %v", err)
	}
	if _, err := m.ApplyMove(1, 0); err != nil {
		t.Fatalf("extending own block: %v", err)
	}
	snap := m.Snapshot()
	n := 0
	for _, tok := range snap.Players[0].Tokens {
		if tok.Status == StatusPath && tok.Position == 4 {
			n++
		}
	}
	if n != 3 {
		t.Fatalf("tokens stacked on cell 4 = %d, want 3", n)
	}
}

func TestOvershootPastWinSlotIsImmovable(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{4}})

	p := m.players[0]
	p.Tokens[0].placeAt(WinDistance - 2) // home column, two steps short of the win slot

	res, err := m.RollDice(1)
	if err != nil {
		t.Fatalf("roll: %v", err)
	}
	if !res.TurnEnded || len(res.Movers) != 0 {
		t.Fatalf("roll = %+v, want auto-ended turn on overshoot", res)
	}
	if got := m.Snapshot().Players[0].Tokens[0]; got.Status != StatusHomeRun {
		t.Fatalf("token mutated: %+v", got)
	}
}

func TestExactWinAndTwoPlayerCompletion(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{2, 2, 2, 2}})

	p := m.players[0]
	for _, tok := range p.Tokens {
		tok.placeAt(WinDistance - 2)
	}

	var last MoveResult
	for i := 0; i < 4; i++ {
		if _, err := m.RollDice(1); err != nil {
			t.Fatalf("roll %d: %v", i, err)
		}
		mv, err := m.ApplyMove(1, i)
		if err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		if !mv.Won {
			t.Fatalf("move %d: expected a win landing, got %+v", i, mv)
		}
		last = mv
		if i < 3 {
			// player 2 has nothing to do; their turn auto-skips on a non-six
			m.dice.(*scriptDice).rolls = append([]int{3, 2}, m.dice.(*scriptDice).rolls...)
			if _, err := m.RollDice(2); err != nil {
				t.Fatalf("opponent roll %d: %v", i, err)
			}
		}
	}

	if last.Rank != 1 || !last.Terminal {
		t.Fatalf("final move = %+v, want rank 1 and terminal", last)
	}
	if got := m.Status(); got != MatchCompleted {
		t.Fatalf("status = %s, want COMPLETED", got)
	}
	if want := []int64{1, 2}; !reflect.DeepEqual(m.FinalRanking(), want) {
		t.Fatalf("ranking = %v, want %v", m.FinalRanking(), want)
	}
}

func TestRejectedCommandsLeaveStateUntouched(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{rolls: []int{6}})
	before := m.Snapshot()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{name: "out of turn roll", call: func() error { _, err := m.RollDice(2); return err }, want: ErrNotYourTurn},
		{name: "move before roll", call: func() error { _, err := m.ApplyMove(1, 0); return err }, want: ErrInvalidPhase},
		{name: "legal moves before roll", call: func() error { _, err := m.LegalMoves(1); return err }, want: ErrInvalidPhase},
		{name: "unseated player", call: func() error { _, err := m.RollDice(99); return err }, want: ErrNotYourTurn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if after := m.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Fatalf("rejected command mutated state:\nbefore %+v\nafter  %+v", before, after)
			}
		})
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	m := activeMatch(t, 4, &scriptDice{rolls: []int{6}})
	if _, err := m.RollDice(1); err != nil {
		t.Fatalf("roll: %v", err)
	}

	a := m.Snapshot()
	b := m.Snapshot()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("snapshots differ without commands:\n%+v\n%+v", a, b)
	}
}

func TestForfeitKeepsTokensAsObstacles(t *testing.T) {
	m := activeMatch(t, 4, &scriptDice{rolls: []int{3}})

	placeOnRing(t, m, 1, 0, 4) // green token out on the ring
	placeOnRing(t, m, 0, 0, 1)

	if err := m.Forfeit(2); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	snap := m.Snapshot()
	if !snap.Players[1].Forfeited {
		t.Fatalf("player 2 not marked forfeited")
	}
	if got := snap.Players[1].Tokens[0]; got.Status != StatusPath || got.Position != 4 {
		t.Fatalf("forfeited token moved: %+v", got)
	}

	// the abandoned token is still capturable
	if _, err := m.RollDice(1); err != nil {
		t.Fatalf("roll: %v", err)
	}
	mv, err := m.ApplyMove(1, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(mv.Captured) != 1 || mv.Captured[0].UserID != 2 {
		t.Fatalf("captured = %v, want the forfeited player's token", mv.Captured)
	}
}

func TestForfeitSkipsPlayerInRotation(t *testing.T) {
	m := activeMatch(t, 4, &scriptDice{rolls: []int{2, 2}})

	placeOnRing(t, m, 0, 0, 1) // give player 1 a movable token
	if err := m.Forfeit(2); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}

	if _, err := m.RollDice(1); err != nil {
		t.Fatalf("roll: %v", err)
	}
	mv, err := m.ApplyMove(1, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if mv.NextUserID != 3 {
		t.Fatalf("next turn = %d, want 3 (skipping forfeited 2)", mv.NextUserID)
	}
}

func TestAbortWhenFewerThanTwoRemainBeforeAnyFinish(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{})

	if err := m.Forfeit(2); err != nil {
		t.Fatalf("Forfeit: %v", err)
	}
	if got := m.Status(); got != MatchAborted {
		t.Fatalf("status = %s, want ABORTED", got)
	}
}

func TestFourPlayerEndsWhenOneActiveRemainsAfterAFinish(t *testing.T) {
	m := activeMatch(t, 4, &scriptDice{rolls: []int{1}})

	// player 1 finishes
	p := m.players[0]
	for _, tok := range p.Tokens[:3] {
		tok.placeAt(WinDistance)
	}
	p.Tokens[3].placeAt(WinDistance - 1)
	if _, err := m.RollDice(1); err != nil {
		t.Fatalf("roll: %v", err)
	}
	if _, err := m.ApplyMove(1, 3); err != nil {
		t.Fatalf("move: %v", err)
	}

	if err := m.Forfeit(2); err != nil {
		t.Fatalf("forfeit 2: %v", err)
	}
	if err := m.Forfeit(3); err != nil {
		t.Fatalf("forfeit 3: %v", err)
	}
	if got := m.Status(); got != MatchCompleted {
		t.Fatalf("status = %s, want COMPLETED with one active player left", got)
	}

	ranking := m.FinalRanking()
	if len(ranking) != 4 || ranking[0] != 1 || ranking[1] != 4 {
		t.Fatalf("ranking = %v, want player 1 first, lone active player 4 second", ranking)
	}
}

func TestTurnTimeoutSkip(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{})

	next, err := m.SkipTurn()
	if err != nil {
		t.Fatalf("SkipTurn: %v", err)
	}
	if next != 2 {
		t.Fatalf("next = %d, want 2", next)
	}
	snap := m.Snapshot()
	if snap.TurnUserID != 2 || snap.Phase != PhaseAwaitRoll {
		t.Fatalf("after skip: %+v", snap)
	}
}

func TestRngUnavailableLeavesTurnOpen(t *testing.T) {
	m := activeMatch(t, 2, &scriptDice{}) // empty script: every roll fails

	before := m.Snapshot()
	if _, err := m.RollDice(1); !errors.Is(err, ErrRngUnavailable) {
		t.Fatalf("err = %v, want ErrRngUnavailable", err)
	}
	if after := m.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed roll mutated state")
	}
}

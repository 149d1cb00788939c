package ludo

import "testing"

func TestBoardTopology(t *testing.T) {
	tests := []struct {
		color     PlayerColor
		start     int
		homeEntry int
	}{
		{ColorRed, 0, 50},
		{ColorGreen, 13, 11},
		{ColorYellow, 26, 24},
		{ColorBlue, 39, 37},
	}
	for _, tt := range tests {
		t.Run(string(tt.color), func(t *testing.T) {
			if got := StartCell(tt.color); got != tt.start {
				t.Fatalf("StartCell = %d, want %d", got, tt.start)
			}
			if got := HomeEntryCell(tt.color); got != tt.homeEntry {
				t.Fatalf("HomeEntryCell = %d, want %d", got, tt.homeEntry)
			}
			if !IsSafeCell(tt.start) {
				t.Fatalf("start cell %d not safe", tt.start)
			}
		})
	}
}

func TestEightSafeCells(t *testing.T) {
	want := []int{0, 8, 13, 21, 26, 34, 39, 47}
	n := 0
	for cell := 0; cell < RingSize; cell++ {
		if IsSafeCell(cell) {
			n++
		}
	}
	if n != len(want) {
		t.Fatalf("safe cell count = %d, want %d", n, len(want))
	}
	for _, cell := range want {
		if !IsSafeCell(cell) {
			t.Fatalf("cell %d should be safe", cell)
		}
	}
}

func TestTrackLength(t *testing.T) {
	// 51 ring cells plus a 6-cell home run, the 57th step wins
	if WinDistance != 57 {
		t.Fatalf("WinDistance = %d, want 57", WinDistance)
	}

	var tok Token
	tok.Color = ColorGreen
	tok.placeAt(0)
	if tok.Status != StatusPath || tok.Position != 13 {
		t.Fatalf("base exit = %+v, want PATH on green start 13", tok)
	}
	tok.placeAt(ringTrack - 1)
	if tok.Status != StatusPath || tok.Position != HomeEntryCell(ColorGreen) {
		t.Fatalf("last ring step = %+v, want home entry cell", tok)
	}
	tok.placeAt(ringTrack)
	if tok.Status != StatusHomeRun || tok.Position != 0 {
		t.Fatalf("first home step = %+v, want HOME_RUN 0", tok)
	}
	tok.placeAt(WinDistance - 1)
	if tok.Status != StatusHomeRun || tok.Position != 5 {
		t.Fatalf("last home step = %+v, want HOME_RUN 5", tok)
	}
	tok.placeAt(WinDistance)
	if tok.Status != StatusWin {
		t.Fatalf("win step = %+v, want WIN", tok)
	}
}

func TestRingWrapAcrossZero(t *testing.T) {
	var tok Token
	tok.Color = ColorBlue // start 39, wraps past cell 51
	tok.placeAt(20)
	if tok.Position != (39+20)%RingSize {
		t.Fatalf("blue at progress 20 = ring %d, want %d", tok.Position, (39+20)%RingSize)
	}
	if got := tok.progress(); got != 20 {
		t.Fatalf("progress round-trip = %d, want 20", got)
	}
}

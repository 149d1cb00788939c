package ludo

import (
	"reflect"
	"testing"
)

func TestSettleWinnerTakeAll(t *testing.T) {
	// 2 players, entry 50, commission 10% -> pool 100 - 10 = 90
	cfg := GameConfig{Seats: 2, EntryFee: 50, CommissionPct: 10, Distribution: WinnerTakeAll}
	s, err := Settle("m1", cfg, []int64{7, 8})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if s.GrossPool != 100 || s.Commission != 10 {
		t.Fatalf("pool = %d commission = %d, want 100 and 10", s.GrossPool, s.Commission)
	}
	want := []Payout{{UserID: 7, Amount: 90}}
	if !reflect.DeepEqual(s.Payouts, want) {
		t.Fatalf("payouts = %v, want %v", s.Payouts, want)
	}
	// the full standings ride along so the ledger side can persist ranks
	if !reflect.DeepEqual(s.Ranking, []int64{7, 8}) {
		t.Fatalf("ranking = %v, want [7 8]", s.Ranking)
	}
}

func TestSettleRankSplitSumsExactly(t *testing.T) {
	tests := []struct {
		name string
		cfg  GameConfig
	}{
		{
			name: "even split",
			cfg: GameConfig{Seats: 4, EntryFee: 100, CommissionPct: 10,
				Distribution: RankSplit, SplitBps: []int64{6000, 3000, 1000}},
		},
		{
			name: "awkward remainder",
			cfg: GameConfig{Seats: 4, EntryFee: 33, CommissionPct: 7,
				Distribution: RankSplit, SplitBps: []int64{5000, 3333, 1667}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Settle("m1", tt.cfg, []int64{1, 2, 3, 4})
			if err != nil {
				t.Fatalf("Settle: %v", err)
			}
			var sum int64
			for _, p := range s.Payouts {
				sum += p.Amount
			}
			net := s.GrossPool - s.Commission
			if sum != net {
				t.Fatalf("payout sum = %d, want net pool %d", sum, net)
			}
		})
	}
}

func TestSettleRejectsBadSplit(t *testing.T) {
	cfg := GameConfig{Seats: 4, EntryFee: 100, CommissionPct: 10,
		Distribution: RankSplit, SplitBps: []int64{5000, 4000}}
	if _, err := Settle("m1", cfg, []int64{1, 2, 3, 4}); err == nil {
		t.Fatalf("accepted split_bps summing to 9000")
	}
}

func TestRefundReturnsEveryEntryFee(t *testing.T) {
	cfg := GameConfig{Seats: 4, EntryFee: 25, CommissionPct: 10}
	s := Refund("m1", cfg, []int64{1, 2, 3})

	if !s.Aborted {
		t.Fatalf("refund not flagged aborted")
	}
	var sum int64
	for _, p := range s.Payouts {
		if p.Amount != 25 {
			t.Fatalf("refund %d = %d, want full entry fee 25", p.UserID, p.Amount)
		}
		sum += p.Amount
	}
	if sum != 75 || s.GrossPool != 75 {
		t.Fatalf("refund sum = %d pool = %d, want exactly the fees collected", sum, s.GrossPool)
	}
	if s.Commission != 0 {
		t.Fatalf("commission on abort = %d, want 0", s.Commission)
	}
}

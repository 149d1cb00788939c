package ludo

import "fmt"

// Payout is one settlement instruction line, in minor currency units.
type Payout struct {
	UserID int64 `json:"user_id"`
	Amount int64 `json:"amount"`
}

// Settlement is emitted exactly once per terminal transition. The engine
// computes amounts only; a separate ledger applies them. MatchID doubles
// as the idempotency key.
type Settlement struct {
	MatchID    string   `json:"match_id"`
	Aborted    bool     `json:"aborted"`
	GrossPool  int64    `json:"gross_pool"`
	Commission int64    `json:"commission"`
	Ranking    []int64  `json:"ranking,omitempty"` // userIDs in final rank order, empty on abort
	Payouts    []Payout `json:"payouts"`
}

// Settle computes the prize distribution for a completed match. All
// arithmetic is integer minor-currency units; the sum of payouts equals
// gross pool minus commission exactly.
func Settle(matchID string, cfg GameConfig, ranking []int64) (Settlement, error) {
	if len(ranking) == 0 {
		return Settlement{}, fmt.Errorf("settle %s: empty ranking", matchID)
	}

	gross := cfg.EntryFee * int64(cfg.Seats)
	commission := gross * cfg.CommissionPct / 100
	net := gross - commission

	s := Settlement{MatchID: matchID, GrossPool: gross, Commission: commission, Ranking: ranking}

	switch cfg.Distribution {
	case RankSplit:
		if len(cfg.SplitBps) == 0 {
			return Settlement{}, fmt.Errorf("settle %s: rank-split without split_bps", matchID)
		}
		var total int64
		for _, bps := range cfg.SplitBps {
			total += bps
		}
		if total != 10000 {
			return Settlement{}, fmt.Errorf("settle %s: split_bps sum %d, want 10000", matchID, total)
		}
		distributed := int64(0)
		for i, uid := range ranking {
			if i >= len(cfg.SplitBps) {
				break
			}
			amt := net * cfg.SplitBps[i] / 10000
			s.Payouts = append(s.Payouts, Payout{UserID: uid, Amount: amt})
			distributed += amt
		}
		// rounding remainder goes to rank one so the pool sums exactly
		if rem := net - distributed; rem > 0 && len(s.Payouts) > 0 {
			s.Payouts[0].Amount += rem
		}
	case WinnerTakeAll, "":
		s.Payouts = []Payout{{UserID: ranking[0], Amount: net}}
	default:
		return Settlement{}, fmt.Errorf("settle %s: unknown distribution %q", matchID, cfg.Distribution)
	}

	return s, nil
}

// Refund computes the full-refund instruction for an aborted match: every
// seated player gets their entry fee back, no commission is taken.
func Refund(matchID string, cfg GameConfig, seated []int64) Settlement {
	s := Settlement{
		MatchID:   matchID,
		Aborted:   true,
		GrossPool: cfg.EntryFee * int64(len(seated)),
	}
	for _, uid := range seated {
		s.Payouts = append(s.Payouts, Payout{UserID: uid, Amount: cfg.EntryFee})
	}
	return s
}

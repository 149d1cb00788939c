package service

import (
	"context"
	"fmt"

	"github.com/ludopro/ludo-services/internal/gamesvc/store"
	"github.com/shopspring/decimal"
)

type BalanceService struct {
	balanceStore *store.BalanceStore
}

func NewBalanceService(store *store.BalanceStore) *BalanceService {
	return &BalanceService{balanceStore: store}
}

func (s *BalanceService) GetUserBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.balanceStore.GetBalanceByUserID(ctx, userID)
}

func (s *BalanceService) ChargeEntryFee(ctx context.Context, userID int64, matchID string, fee decimal.Decimal) error {
	tref := fmt.Sprintf("ENTRY-%s-%d", matchID, userID)
	remark := fmt.Sprintf("ludo entry fee match %s", matchID)
	return s.balanceStore.DebitEntryFee(ctx, userID, fee, tref, remark)
}

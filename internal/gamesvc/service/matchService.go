package service

import (
	"context"

	"github.com/ludopro/ludo-services/internal/gamesvc/models"
	"github.com/ludopro/ludo-services/internal/gamesvc/store"
)

type MatchService struct {
	matchStore *store.MatchStore
}

func NewMatchService(matchStore *store.MatchStore) *MatchService {
	return &MatchService{matchStore: matchStore}
}

func (s *MatchService) CreateMatch(ctx context.Context, rec models.MatchRecord) (*models.MatchRecord, error) {
	return s.matchStore.CreateMatch(ctx, rec)
}

func (s *MatchService) GetMatch(ctx context.Context, matchID string) (*models.MatchRecord, error) {
	return s.matchStore.GetByMatchID(ctx, matchID)
}

// GetOpenMatchByFee returns a waiting match at the requested stake, so
// players asking for the same fee land on the same table.
func (s *MatchService) GetOpenMatchByFee(ctx context.Context, entryFee int64, seats int) (*models.MatchRecord, error) {
	return s.matchStore.GetWaitingByFee(ctx, entryFee, seats)
}

func (s *MatchService) MarkActive(ctx context.Context, matchID string) error {
	return s.matchStore.UpdateStatus(ctx, matchID, "active")
}

func (s *MatchService) MarkCompleted(ctx context.Context, matchID string, winnerUserID int64) error {
	if err := s.matchStore.SetWinner(ctx, matchID, winnerUserID); err != nil {
		return err
	}
	return s.matchStore.UpdateStatus(ctx, matchID, "completed")
}

func (s *MatchService) MarkAborted(ctx context.Context, matchID string) error {
	return s.matchStore.UpdateStatus(ctx, matchID, "aborted")
}

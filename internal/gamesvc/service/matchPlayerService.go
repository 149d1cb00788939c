package service

import (
	"context"

	"github.com/ludopro/ludo-services/internal/gamesvc/models"
	"github.com/ludopro/ludo-services/internal/gamesvc/store"
)

type MatchPlayerService struct {
	matchPlayerStore *store.MatchPlayerStore
}

func NewMatchPlayerService(matchPlayerStore *store.MatchPlayerStore) *MatchPlayerService {
	return &MatchPlayerService{matchPlayerStore: matchPlayerStore}
}

func (s *MatchPlayerService) GetPlayersByMatchID(ctx context.Context, matchID string) ([]*models.MatchPlayer, error) {
	return s.matchPlayerStore.GetPlayersByMatchID(ctx, matchID)
}

func (s *MatchPlayerService) SeatPlayer(ctx context.Context, matchID string, userID int64, color string) (*models.MatchPlayer, error) {
	return s.matchPlayerStore.SeatPlayerIfAvailable(ctx, matchID, userID, color)
}

func (s *MatchPlayerService) RecordRank(ctx context.Context, matchID string, userID int64, rank int, status string) error {
	return s.matchPlayerStore.UpdateRank(ctx, matchID, userID, rank, status)
}

func (s *MatchPlayerService) MarkForfeited(ctx context.Context, matchID string, userID int64) error {
	return s.matchPlayerStore.UpdateStatus(ctx, matchID, userID, "forfeited")
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ludopro/ludo-services/internal/gamesvc/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MatchStore struct {
	db *pgxpool.Pool
}

func NewMatchStore(db *pgxpool.Pool) *MatchStore {
	return &MatchStore{db: db}
}

func (s *MatchStore) CreateMatch(ctx context.Context, rec models.MatchRecord) (*models.MatchRecord, error) {
	query := `
		INSERT INTO matches (match_id, seats, entry_fee, commission_pct, distribution, status)
		VALUES ($1, $2, $3, $4, $5, 'waiting')
		RETURNING id, match_id, seats, entry_fee, commission_pct, distribution, winner_user_id, status, created_at, updated_at
	`

	m := &models.MatchRecord{}
	err := s.db.QueryRow(ctx, query,
		rec.MatchID, rec.Seats, rec.EntryFee, rec.CommissionPct, rec.Distribution,
	).Scan(
		&m.ID,
		&m.MatchID,
		&m.Seats,
		&m.EntryFee,
		&m.CommissionPct,
		&m.Distribution,
		&m.WinnerUserID,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create match record: %w", err)
	}

	return m, nil
}

func (s *MatchStore) GetByMatchID(ctx context.Context, matchID string) (*models.MatchRecord, error) {
	query := `
		SELECT id, match_id, seats, entry_fee, commission_pct, distribution, winner_user_id, status, created_at, updated_at
		FROM matches
		WHERE match_id = $1
	`

	m := &models.MatchRecord{}
	err := s.db.QueryRow(ctx, query, matchID).Scan(
		&m.ID,
		&m.MatchID,
		&m.Seats,
		&m.EntryFee,
		&m.CommissionPct,
		&m.Distribution,
		&m.WinnerUserID,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // match not found
		}
		return nil, fmt.Errorf("failed to get match by id: %w", err)
	}

	return m, nil
}

// GetWaitingByFee finds an open match for a given entry fee and seat count,
// so the lobby can pool players into the same table.
func (s *MatchStore) GetWaitingByFee(ctx context.Context, entryFee int64, seats int) (*models.MatchRecord, error) {
	query := `
		SELECT id, match_id, seats, entry_fee, commission_pct, distribution, winner_user_id, status, created_at, updated_at
		FROM matches
		WHERE entry_fee = $1 AND seats = $2 AND status = 'waiting'
		ORDER BY created_at
		LIMIT 1
	`

	m := &models.MatchRecord{}
	err := s.db.QueryRow(ctx, query, entryFee, seats).Scan(
		&m.ID,
		&m.MatchID,
		&m.Seats,
		&m.EntryFee,
		&m.CommissionPct,
		&m.Distribution,
		&m.WinnerUserID,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get waiting match: %w", err)
	}

	return m, nil
}

func (s *MatchStore) UpdateStatus(ctx context.Context, matchID, status string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE matches SET status = $2, updated_at = now() WHERE match_id = $1
	`, matchID, status)
	if err != nil {
		return fmt.Errorf("failed to update match %s status: %w", matchID, err)
	}
	return nil
}

func (s *MatchStore) SetWinner(ctx context.Context, matchID string, userID int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE matches SET winner_user_id = $2, updated_at = now() WHERE match_id = $1
	`, matchID, userID)
	if err != nil {
		return fmt.Errorf("failed to set match %s winner: %w", matchID, err)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ludopro/ludo-services/internal/gamesvc/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSeatUnavailable = errors.New("seat unavailable")
	ErrAlreadySeated   = errors.New("user already seated in match")
	ErrMatchNotOpen    = errors.New("match not open for seating")
)

type MatchPlayerStore struct {
	db *pgxpool.Pool
}

func NewMatchPlayerStore(db *pgxpool.Pool) *MatchPlayerStore {
	return &MatchPlayerStore{db: db}
}

func (s *MatchPlayerStore) GetPlayersByMatchID(ctx context.Context, matchID string) ([]*models.MatchPlayer, error) {
	query := `
		SELECT id, match_id, user_id, color, rank, status, created_at, updated_at
		FROM match_players
		WHERE match_id = $1
		ORDER BY id
	`

	rows, err := s.db.Query(ctx, query, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*models.MatchPlayer
	for rows.Next() {
		var mp models.MatchPlayer
		err := rows.Scan(
			&mp.ID,
			&mp.MatchID,
			&mp.UserID,
			&mp.Color,
			&mp.Rank,
			&mp.Status,
			&mp.CreatedAt,
			&mp.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		players = append(players, &mp)
	}

	return players, nil
}

// It fails with an error if:
// - The color is already taken by another player in the same match (unique_match_color constraint).
// - The user has already joined the match (unique_match_user constraint).
// - The match is not in waiting status, or does not exist.
// Returns the created MatchPlayer on success, or an error on failure.
func (s *MatchPlayerStore) SeatPlayerIfAvailable(ctx context.Context, matchID string, userID int64, color string) (*models.MatchPlayer, error) {
	// Validate inputs
	if matchID == "" {
		return nil, fmt.Errorf("match id cannot be empty")
	}
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user ID: %d", userID)
	}
	if color == "" {
		return nil, fmt.Errorf("color cannot be empty")
	}

	// CTE locks the match row and enforces status='waiting'
	const query = `
WITH locked_match AS (
  SELECT match_id
  FROM matches
  WHERE match_id = $1
    AND status = 'waiting'
  FOR UPDATE
)
INSERT INTO match_players (match_id, user_id, color, status)
SELECT lm.match_id, $2, $3, 'seated'
FROM locked_match lm
RETURNING id, match_id, user_id, color, rank, status, created_at, updated_at;
`
	mp := &models.MatchPlayer{}
	err := s.db.QueryRow(ctx, query, matchID, userID, color).Scan(
		&mp.ID,
		&mp.MatchID,
		&mp.UserID,
		&mp.Color,
		&mp.Rank,
		&mp.Status,
		&mp.CreatedAt,
		&mp.UpdatedAt,
	)
	if err != nil {
		// zero rows means the match isn't waiting (or doesn't exist)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchNotOpen
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// unique constraint violations
			if pgErr.Code == "23505" {
				switch pgErr.ConstraintName {
				case "unique_match_color":
					return nil, ErrSeatUnavailable
				case "unique_match_user":
					return nil, ErrAlreadySeated
				}
			}
			// foreign key violations
			if pgErr.Code == "23503" {
				return nil, fmt.Errorf("invalid reference: %s", pgErr.Message)
			}
		}
		return nil, fmt.Errorf("failed to seat player: %w", err)
	}

	return mp, nil
}

// UpdateRank records a player's final placing once the match concludes.
// A forfeited seat keeps its status; only the rank is backfilled.
func (s *MatchPlayerStore) UpdateRank(ctx context.Context, matchID string, userID int64, rank int, status string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE match_players
		SET rank = $3,
		    status = CASE WHEN status = 'forfeited' THEN status ELSE $4 END,
		    updated_at = now()
		WHERE match_id = $1 AND user_id = $2
	`, matchID, userID, rank, status)
	if err != nil {
		return fmt.Errorf("failed to update rank for user %d in match %s: %w", userID, matchID, err)
	}
	return nil
}

func (s *MatchPlayerStore) UpdateStatus(ctx context.Context, matchID string, userID int64, status string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE match_players SET status = $3, updated_at = now()
		WHERE match_id = $1 AND user_id = $2
	`, matchID, userID, status)
	if err != nil {
		return fmt.Errorf("failed to update status for user %d in match %s: %w", userID, matchID, err)
	}
	return nil
}

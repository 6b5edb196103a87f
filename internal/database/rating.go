// internal/database/rating.go
package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RatingSource implements the lobby rating gate against the users table.
type RatingSource struct{}

// FetchRating returns the player's stored rating. An unknown player is
// rating 0, not an error; the gate treats both the same way.
func (RatingSource) FetchRating(ctx context.Context, playerID uuid.UUID) (int, error) {
	var rating int
	q := `SELECT rating FROM users WHERE id = $1`
	err := DB.QueryRow(ctx, q, playerID).Scan(&rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rating, nil
}

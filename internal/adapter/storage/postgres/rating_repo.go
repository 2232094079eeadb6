package postgres

import (
	"context"
	"fmt"

	"units-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// RatingRepo implements ports.RatingRepository.
type RatingRepo struct {
	pool Pool
}

// NewRatingRepo creates a new RatingRepo.
func NewRatingRepo(pool Pool) *RatingRepo {
	return &RatingRepo{pool: pool}
}

// Create appends a trust rating. Ratings are never updated or
// deleted.
func (r *RatingRepo) Create(ctx context.Context, rating *domain.TrustRating) error {
	query := `INSERT INTO trust_ratings
		(id, rater_id, rated_id, transaction_id, rating, communication, delivery, quality, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		rating.ID, rating.RaterID, rating.RatedID, rating.TransactionID,
		rating.Rating, rating.Subscores.Communication, rating.Subscores.Delivery,
		rating.Subscores.Quality, rating.Comment, rating.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trust rating: %w", err)
	}
	return nil
}

// ListByRatedID returns the most recent ratings of userID,
// newest-first, at most limit entries.
func (r *RatingRepo) ListByRatedID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.TrustRating, error) {
	query := `SELECT id, rater_id, rated_id, transaction_id, rating, communication, delivery, quality, comment, created_at
		FROM trust_ratings WHERE rated_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trust ratings: %w", err)
	}
	defer rows.Close()

	var ratings []domain.TrustRating
	for rows.Next() {
		var t domain.TrustRating
		err := rows.Scan(
			&t.ID, &t.RaterID, &t.RatedID, &t.TransactionID, &t.Rating,
			&t.Subscores.Communication, &t.Subscores.Delivery, &t.Subscores.Quality,
			&t.Comment, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trust rating: %w", err)
		}
		ratings = append(ratings, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trust rating rows: %w", err)
	}
	return ratings, nil
}

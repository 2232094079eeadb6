package memory

import (
	"context"
	"sync"

	"units-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// RatingRepo implements ports.RatingRepository as an append-only
// slice with a per-rated-user index.
type RatingRepo struct {
	mu      sync.RWMutex
	byRated map[uuid.UUID][]domain.TrustRating
}

// NewRatingRepo creates an empty in-memory rating repository.
func NewRatingRepo() *RatingRepo {
	return &RatingRepo{byRated: make(map[uuid.UUID][]domain.TrustRating)}
}

func (r *RatingRepo) Create(ctx context.Context, rating *domain.TrustRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byRated[rating.RatedID] = append(r.byRated[rating.RatedID], *rating)
	return nil
}

func (r *RatingRepo) ListByRatedID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.TrustRating, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.byRated[userID]
	var result []domain.TrustRating
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

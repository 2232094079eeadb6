package domain

import (
	"time"

	"github.com/google/uuid"
)

// Rating bounds. The 1..5 scale comes from the marketplace review UI.
const (
	RatingMin = 1
	RatingMax = 5
)

// Subscores are optional per-aspect ratings attached to an overall
// trust rating.
type Subscores struct {
	Communication *int `json:"communication,omitempty"`
	Delivery      *int `json:"delivery,omitempty"`
	Quality       *int `json:"quality,omitempty"`
}

// TrustRating is one peer's append-only rating of another, optionally
// tied to the transaction it concerns.
type TrustRating struct {
	ID            uuid.UUID  `json:"id"`
	RaterID       uuid.UUID  `json:"rater_id"`
	RatedID       uuid.UUID  `json:"rated_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Rating        int        `json:"rating"`
	Subscores     Subscores  `json:"subscores"`
	Comment       string     `json:"comment,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// InRange reports whether v is a valid rating value.
func InRange(v int) bool {
	return v >= RatingMin && v <= RatingMax
}

// Valid checks the overall rating and any provided subscores.
func (r *TrustRating) Valid() bool {
	if !InRange(r.Rating) {
		return false
	}
	for _, sub := range []*int{r.Subscores.Communication, r.Subscores.Delivery, r.Subscores.Quality} {
		if sub != nil && !InRange(*sub) {
			return false
		}
	}
	return true
}

// TrustSummary is the derived per-user reputation view.
type TrustSummary struct {
	UserID        uuid.UUID `json:"user_id"`
	TrustScore    float64   `json:"trust_score"`
	RatingsCount  int       `json:"ratings_count"`
	AverageRating float64   `json:"average_rating"`
	Breakdown     struct {
		Communication float64 `json:"communication"`
		Delivery      float64 `json:"delivery"`
		Quality       float64 `json:"quality"`
	} `json:"breakdown"`
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"
	"units-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TrustParams tunes score aggregation and the credit-limit
// derivation.
//
// The trust score is a windowed average with a Bayesian prior:
//
//	score = (priorWeight*midpoint + Σ ratings) / ((priorWeight+n) * ratingMax)
//
// over the most recent RatingWindow ratings, with the prior's
// pseudo-ratings pinned at the scale midpoint (2.5) so an unrated
// account stays at the 0.5 default. The prior keeps a single early
// rating from swinging the score to an extreme; as n grows the score
// converges on the plain average.
//
// The credit limit follows the score linearly:
//
//	newLimit = clamp(BaseLimit + score*ScaleFactor, MinLimit, MaxLimit)
//
// which is monotonic non-decreasing in the score.
type TrustParams struct {
	RatingWindow int
	PriorWeight  float64
	BaseLimit    decimal.Decimal
	ScaleFactor  decimal.Decimal
	MinLimit     decimal.Decimal
	MaxLimit     decimal.Decimal
	Workers      int
	QueueSize    int
}

// priorMidpoint is where the prior's pseudo-ratings sit: half of the
// rating scale, mapping to the 0.5 default score.
const priorMidpoint = float64(domain.RatingMax) / 2

// TrustEngineImpl implements ports.TrustEngine. Rating submission
// returns as soon as the rating is durable; score and credit-limit
// recomputation happens on a worker pool with bounded staleness.
type TrustEngineImpl struct {
	ratings ports.RatingRepository
	wallets ports.WalletStore
	params  TrustParams
	log     zerolog.Logger

	queue chan uuid.UUID

	// pending tracks enqueued-but-unfinished recomputations so Flush
	// can wait for them.
	mu      sync.Mutex
	pending int
	waiters []chan struct{}
}

// NewTrustEngine creates a new TrustEngineImpl. Call Start before
// submitting ratings.
func NewTrustEngine(ratings ports.RatingRepository, wallets ports.WalletStore, params TrustParams, log zerolog.Logger) *TrustEngineImpl {
	if params.Workers <= 0 {
		params.Workers = 1
	}
	if params.QueueSize <= 0 {
		params.QueueSize = 64
	}
	if params.RatingWindow <= 0 {
		params.RatingWindow = 50
	}
	return &TrustEngineImpl{
		ratings: ratings,
		wallets: wallets,
		params:  params,
		log:     log,
		queue:   make(chan uuid.UUID, params.QueueSize),
	}
}

// Start launches the recompute workers. The returned channel closes
// once all workers have stopped after ctx is cancelled.
func (e *TrustEngineImpl) Start(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < e.params.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}

	go func() {
		defer close(stopped)
		wg.Wait()
		e.log.Debug().Msg("trust recompute workers stopped")
	}()

	return stopped
}

func (e *TrustEngineImpl) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case userID := <-e.queue:
			if err := e.Recompute(ctx, userID); err != nil {
				e.log.Error().Err(err).Str("user_id", userID.String()).Msg("trust recomputation failed")
			}
			e.finishJob()
		}
	}
}

// SubmitRating validates and persists a rating, then schedules an
// asynchronous recomputation of the rated user's trust score and
// credit limit. The caller does not wait for the recomputation.
func (e *TrustEngineImpl) SubmitRating(ctx context.Context, req ports.RatingRequest) (*domain.TrustRating, error) {
	rating := &domain.TrustRating{
		ID:            uuid.New(),
		RaterID:       req.RaterID,
		RatedID:       req.RatedID,
		TransactionID: req.TransactionID,
		Rating:        req.Rating,
		Subscores:     req.Subscores,
		Comment:       req.Comment,
		CreatedAt:     time.Now().UTC(),
	}
	if !rating.Valid() {
		return nil, apperror.ErrRatingOutOfRange()
	}
	if req.RaterID == req.RatedID {
		return nil, apperror.Validation("users cannot rate themselves")
	}

	// Make sure the rated wallet exists so the recompute has a row to
	// write to.
	if _, err := e.wallets.Get(ctx, req.RatedID); err != nil {
		return nil, err
	}

	if err := e.ratings.Create(ctx, rating); err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("persist rating: %w", err))
	}

	e.enqueue(ctx, req.RatedID)

	e.log.Info().
		Str("rating_id", rating.ID.String()).
		Str("rated_id", req.RatedID.String()).
		Int("rating", req.Rating).
		Msg("trust rating recorded")

	return rating, nil
}

// enqueue hands userID to the worker pool. When the queue is full the
// recomputation runs inline as backpressure.
func (e *TrustEngineImpl) enqueue(ctx context.Context, userID uuid.UUID) {
	e.startJob()
	select {
	case e.queue <- userID:
	default:
		if err := e.Recompute(ctx, userID); err != nil {
			e.log.Error().Err(err).Str("user_id", userID.String()).Msg("inline trust recomputation failed")
		}
		e.finishJob()
	}
}

// Flush blocks until every recomputation enqueued before the call has
// completed, letting a caller read its own rating's effect.
func (e *TrustEngineImpl) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.pending == 0 {
		e.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	e.waiters = append(e.waiters, done)
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *TrustEngineImpl) startJob() {
	e.mu.Lock()
	e.pending++
	e.mu.Unlock()
}

func (e *TrustEngineImpl) finishJob() {
	e.mu.Lock()
	e.pending--
	if e.pending == 0 {
		for _, w := range e.waiters {
			close(w)
		}
		e.waiters = nil
	}
	e.mu.Unlock()
}

// Recompute derives userID's trust score from its rating history and
// writes the score and the resulting credit limit back to the wallet.
// The balance is never touched.
func (e *TrustEngineImpl) Recompute(ctx context.Context, userID uuid.UUID) error {
	ratings, err := e.ratings.ListByRatedID(ctx, userID, e.params.RatingWindow)
	if err != nil {
		return apperror.ErrStorageFault(fmt.Errorf("list ratings: %w", err))
	}

	score := e.scoreOf(ratings)
	limit := e.creditLimitFor(score)

	if err := e.wallets.SetTrustScore(ctx, userID, score); err != nil {
		return err
	}
	if err := e.wallets.SetCreditLimit(ctx, userID, limit); err != nil {
		return err
	}

	e.log.Debug().
		Str("user_id", userID.String()).
		Float64("trust_score", score).
		Str("credit_limit", limit.String()).
		Int("ratings", len(ratings)).
		Msg("trust score recomputed")

	return nil
}

// Summary returns the derived reputation view for userID, computed
// live from the rating window.
func (e *TrustEngineImpl) Summary(ctx context.Context, userID uuid.UUID) (*domain.TrustSummary, error) {
	ratings, err := e.ratings.ListByRatedID(ctx, userID, e.params.RatingWindow)
	if err != nil {
		return nil, apperror.ErrStorageFault(fmt.Errorf("list ratings: %w", err))
	}

	summary := &domain.TrustSummary{
		UserID:       userID,
		TrustScore:   e.scoreOf(ratings),
		RatingsCount: len(ratings),
	}

	if len(ratings) == 0 {
		return summary, nil
	}

	var sum, commSum, delivSum, qualSum float64
	var commN, delivN, qualN int
	for _, r := range ratings {
		sum += float64(r.Rating)
		if r.Subscores.Communication != nil {
			commSum += float64(*r.Subscores.Communication)
			commN++
		}
		if r.Subscores.Delivery != nil {
			delivSum += float64(*r.Subscores.Delivery)
			delivN++
		}
		if r.Subscores.Quality != nil {
			qualSum += float64(*r.Subscores.Quality)
			qualN++
		}
	}
	summary.AverageRating = sum / float64(len(ratings))
	if commN > 0 {
		summary.Breakdown.Communication = commSum / float64(commN)
	}
	if delivN > 0 {
		summary.Breakdown.Delivery = delivSum / float64(delivN)
	}
	if qualN > 0 {
		summary.Breakdown.Quality = qualSum / float64(qualN)
	}
	return summary, nil
}

// scoreOf maps a rating window onto [0,1]. See TrustParams for the
// aggregation rule.
func (e *TrustEngineImpl) scoreOf(ratings []domain.TrustRating) float64 {
	var sum float64
	for _, r := range ratings {
		sum += float64(r.Rating)
	}
	n := float64(len(ratings))
	score := (e.params.PriorWeight*priorMidpoint + sum) /
		((e.params.PriorWeight + n) * float64(domain.RatingMax))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// creditLimitFor derives the credit limit from a trust score,
// monotonic non-decreasing.
func (e *TrustEngineImpl) creditLimitFor(score float64) decimal.Decimal {
	limit := e.params.BaseLimit.Add(e.params.ScaleFactor.Mul(decimal.NewFromFloat(score)))
	if limit.LessThan(e.params.MinLimit) {
		return e.params.MinLimit
	}
	if limit.GreaterThan(e.params.MaxLimit) {
		return e.params.MaxLimit
	}
	return limit
}

var _ ports.TrustEngine = (*TrustEngineImpl)(nil)

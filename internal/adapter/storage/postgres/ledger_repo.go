package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"units-ledger/internal/core/domain"
	"units-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository over an append-only
// transactions table keyed by a BIGSERIAL sequence.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const appendQuery = `INSERT INTO transactions
	(id, from_user_id, to_user_id, amount, type, status, description, metadata, idempotency_key, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING seq`

// Append inserts t and returns its sequence id. A nil tx writes
// directly through the pool, outside any surrounding transaction.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, t *domain.Transaction) (int64, error) {
	metadata, err := marshalMetadata(t.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	row := func() pgx.Row {
		args := []any{
			t.ID, t.FromUserID, t.ToUserID, t.Amount, t.Type,
			t.Status, t.Description, metadata, t.IdempotencyKey, t.CreatedAt,
		}
		if tx != nil {
			return tx.QueryRow(ctx, appendQuery, args...)
		}
		return r.pool.QueryRow(ctx, appendQuery, args...)
	}()

	var seq int64
	if err := row.Scan(&seq); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("append transaction: %w", ports.ErrDuplicateIdempotencyKey)
		}
		return 0, fmt.Errorf("append transaction: %w", err)
	}
	return seq, nil
}

const transactionColumns = `seq, id, from_user_id, to_user_id, amount, type, status, description, metadata, idempotency_key, created_at`

// History returns userID's transactions newest-first by sequence id.
// Pagination over the immutable log is stable.
func (r *LedgerRepo) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY seq DESC LIMIT $2 OFFSET $3`, transactionColumns)

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return txns, nil
}

// FindByIdempotencyKey returns the transaction recorded under key, or
// nil, nil if the key has never been seen.
func (r *LedgerRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE idempotency_key = $1`, transactionColumns)

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FlowTotals sums Completed outgoing and incoming amounts for userID
// since the given time.
func (r *LedgerRepo) FlowTotals(ctx context.Context, userID uuid.UUID, since time.Time) (decimal.Decimal, decimal.Decimal, error) {
	query := `SELECT
		COALESCE(SUM(amount) FILTER (WHERE from_user_id = $1), 0) AS outgoing,
		COALESCE(SUM(amount) FILTER (WHERE to_user_id = $1), 0) AS incoming
		FROM transactions
		WHERE (from_user_id = $1 OR to_user_id = $1)
		AND status = 'COMPLETED' AND created_at >= $2`

	var outgoing, incoming decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, userID, since).Scan(&outgoing, &incoming); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("flow totals: %w", err)
	}
	return outgoing, incoming, nil
}

// Stats aggregates ledger-wide counts and per-category Completed
// volume.
func (r *LedgerRepo) Stats(ctx context.Context) (*ports.LedgerStats, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT type, COALESCE(SUM(amount), 0)
		FROM transactions WHERE status = 'COMPLETED' GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("per-category volume: %w", err)
	}
	defer rows.Close()

	volume := make(map[domain.TransactionType]decimal.Decimal)
	for rows.Next() {
		var txType domain.TransactionType
		var sum decimal.Decimal
		if err := rows.Scan(&txType, &sum); err != nil {
			return nil, fmt.Errorf("scan volume row: %w", err)
		}
		volume[txType] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume rows: %w", err)
	}

	return &ports.LedgerStats{
		TransactionCount:  count,
		PerCategoryVolume: volume,
	}, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var metadata []byte
	err := row.Scan(
		&t.SequenceID, &t.ID, &t.FromUserID, &t.ToUserID, &t.Amount,
		&t.Type, &t.Status, &t.Description, &metadata, &t.IdempotencyKey, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return t, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

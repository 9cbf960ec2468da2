package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/repository"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

const (
	legacyEntryType  = "payment_retry"
	legacyRulePrefix = "_rule_"
)

// RetryLegacyRepositoryImpl is the legacy retry store: records live as
// generic content entries, with each rule field in a prefixed meta side-table
// row. Scheduled dates are stored both site-local and GMT; reads use GMT.
type RetryLegacyRepositoryImpl struct {
	pool     *pgxpool.Pool
	location *time.Location
}

// NewRetryLegacyRepository creates the legacy retry store. location is the
// site-local timezone used for the local date column; nil means UTC.
func NewRetryLegacyRepository(pool *pgxpool.Pool, location *time.Location) *RetryLegacyRepositoryImpl {
	if location == nil {
		location = time.UTC
	}
	return &RetryLegacyRepositoryImpl{pool: pool, location: location}
}

// Save upserts the entry row and rewrites its rule meta rows.
func (r *RetryLegacyRepositoryImpl) Save(ctx context.Context, retry *entity.Retry) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	gmt := retry.Date.UTC()
	local := gmt.In(r.location)

	if retry.ID == 0 {
		query := `
			INSERT INTO legacy_retries (entry_type, parent_order_id, entry_status, scheduled_at_local, scheduled_at_gmt)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING entry_id
		`
		err = tx.QueryRow(ctx, query,
			legacyEntryType, retry.OrderID, retry.Status.String(), local, gmt,
		).Scan(&retry.ID)
		if err != nil {
			return 0, err
		}
	} else {
		query := `
			INSERT INTO legacy_retries (entry_id, entry_type, parent_order_id, entry_status, scheduled_at_local, scheduled_at_gmt)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (entry_id) DO UPDATE
			SET parent_order_id = EXCLUDED.parent_order_id,
			    entry_status = EXCLUDED.entry_status,
			    scheduled_at_local = EXCLUDED.scheduled_at_local,
			    scheduled_at_gmt = EXCLUDED.scheduled_at_gmt
		`
		if _, err = tx.Exec(ctx, query,
			retry.ID, legacyEntryType, retry.OrderID, retry.Status.String(), local, gmt); err != nil {
			return 0, err
		}
	}

	if _, err = tx.Exec(ctx,
		`DELETE FROM legacy_retry_meta WHERE entry_id = $1 AND meta_key LIKE $2`,
		retry.ID, legacyRulePrefix+"%"); err != nil {
		return 0, err
	}
	for key, value := range retry.Rule.Raw() {
		if _, err = tx.Exec(ctx,
			`INSERT INTO legacy_retry_meta (entry_id, meta_key, meta_value) VALUES ($1, $2, $3)`,
			retry.ID, legacyRulePrefix+key, value); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return retry.ID, nil
}

// Get retrieves a record by id.
func (r *RetryLegacyRepositoryImpl) Get(ctx context.Context, id int64) (*entity.Retry, error) {
	query := `
		SELECT entry_id, parent_order_id, entry_status, scheduled_at_gmt
		FROM legacy_retries
		WHERE entry_id = $1 AND entry_type = $2
	`
	retry, err := r.scanEntry(r.pool.QueryRow(ctx, query, id, legacyEntryType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.ErrRetryNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadRule(ctx, retry); err != nil {
		return nil, err
	}
	return retry, nil
}

// Delete removes the entry and, via cascade, its meta rows.
func (r *RetryLegacyRepositoryImpl) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM legacy_retries WHERE entry_id = $1 AND entry_type = $2`, id, legacyEntryType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Query returns records matching the filter, descending by creation order
// unless overridden.
func (r *RetryLegacyRepositoryImpl) Query(ctx context.Context, q repository.RetryQuery) ([]*entity.Retry, error) {
	conditions := []string{"entry_type = $1"}
	args := []any{legacyEntryType}

	if q.Status != nil {
		args = append(args, q.Status.String())
		conditions = append(conditions, fmt.Sprintf("entry_status = $%d", len(args)))
	}
	if q.OrderID != nil {
		args = append(args, *q.OrderID)
		conditions = append(conditions, fmt.Sprintf("parent_order_id = $%d", len(args)))
	}
	if q.DateBefore != nil {
		args = append(args, q.DateBefore.UTC())
		conditions = append(conditions, fmt.Sprintf("scheduled_at_gmt < $%d", len(args)))
	}
	if q.DateAfter != nil {
		args = append(args, q.DateAfter.UTC())
		conditions = append(conditions, fmt.Sprintf("scheduled_at_gmt > $%d", len(args)))
	}

	query := `SELECT entry_id, parent_order_id, entry_status, scheduled_at_gmt FROM legacy_retries WHERE ` +
		strings.Join(conditions, " AND ")
	query += orderClause(q, "entry_id", "scheduled_at_gmt")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*entity.Retry
	for rows.Next() {
		retry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, retry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, retry := range results {
		if err := r.loadRule(ctx, retry); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// IDsForOrder returns retry ids for the order, ascending by creation order.
func (r *RetryLegacyRepositoryImpl) IDsForOrder(ctx context.Context, orderID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT entry_id FROM legacy_retries WHERE parent_order_id = $1 AND entry_type = $2 ORDER BY entry_id ASC`,
		orderID, legacyEntryType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LastForOrder returns the most recently created retry for the order.
func (r *RetryLegacyRepositoryImpl) LastForOrder(ctx context.Context, orderID int64) (*entity.Retry, error) {
	query := `
		SELECT entry_id, parent_order_id, entry_status, scheduled_at_gmt
		FROM legacy_retries
		WHERE parent_order_id = $1 AND entry_type = $2
		ORDER BY entry_id DESC
		LIMIT 1
	`
	retry, err := r.scanEntry(r.pool.QueryRow(ctx, query, orderID, legacyEntryType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadRule(ctx, retry); err != nil {
		return nil, err
	}
	return retry, nil
}

// CountForOrder returns how many retries exist for the order.
func (r *RetryLegacyRepositoryImpl) CountForOrder(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM legacy_retries WHERE parent_order_id = $1 AND entry_type = $2`,
		orderID, legacyEntryType).Scan(&count)
	return count, err
}

func (r *RetryLegacyRepositoryImpl) scanEntry(row pgx.Row) (*entity.Retry, error) {
	retry := &entity.Retry{}
	var status string
	if err := row.Scan(&retry.ID, &retry.OrderID, &status, &retry.Date); err != nil {
		return nil, err
	}
	parsed, err := valueobject.NewRetryStatus(status)
	if err != nil {
		return nil, fmt.Errorf("legacy retry %d: %w", retry.ID, err)
	}
	retry.Status = parsed
	retry.Date = retry.Date.UTC()
	return retry, nil
}

// loadRule rebuilds the rule snapshot from the entry's meta rows.
func (r *RetryLegacyRepositoryImpl) loadRule(ctx context.Context, retry *entity.Retry) error {
	rows, err := r.pool.Query(ctx,
		`SELECT meta_key, meta_value FROM legacy_retry_meta WHERE entry_id = $1 AND meta_key LIKE $2`,
		retry.ID, legacyRulePrefix+"%")
	if err != nil {
		return err
	}
	defer rows.Close()

	raw := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		raw[strings.TrimPrefix(key, legacyRulePrefix)] = value
	}
	if err := rows.Err(); err != nil {
		return err
	}
	retry.Rule = entity.RuleFromRaw(raw)
	return nil
}

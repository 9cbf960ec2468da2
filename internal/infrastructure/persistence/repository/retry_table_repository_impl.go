package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/repository"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// RetryTableRepositoryImpl is the custom-table retry store: one row per
// record with the rule snapshot serialized into rule_raw.
type RetryTableRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewRetryTableRepository creates the custom-table retry store.
func NewRetryTableRepository(pool *pgxpool.Pool) *RetryTableRepositoryImpl {
	return &RetryTableRepositoryImpl{pool: pool}
}

// Save inserts the record, or upserts when it already carries an id (the
// migration path). Upserting an explicit id also bumps the identity sequence
// past it so later inserts cannot collide with migrated ids.
func (r *RetryTableRepositoryImpl) Save(ctx context.Context, retry *entity.Retry) (int64, error) {
	raw, err := json.Marshal(retry.Rule.Raw())
	if err != nil {
		return 0, fmt.Errorf("failed to serialize rule for retry: %w", err)
	}

	if retry.ID == 0 {
		query := `
			INSERT INTO retries (order_id, status, date_gmt, rule_raw)
			VALUES ($1, $2, $3, $4)
			RETURNING retry_id
		`
		var id int64
		err := r.pool.QueryRow(ctx, query,
			retry.OrderID, retry.Status.String(), retry.Date.UTC(), string(raw),
		).Scan(&id)
		if err != nil {
			return 0, err
		}
		retry.ID = id
		return id, nil
	}

	query := `
		INSERT INTO retries (retry_id, order_id, status, date_gmt, rule_raw)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (retry_id) DO UPDATE
		SET order_id = EXCLUDED.order_id,
		    status = EXCLUDED.status,
		    date_gmt = EXCLUDED.date_gmt,
		    rule_raw = EXCLUDED.rule_raw
	`
	_, err = r.pool.Exec(ctx, query,
		retry.ID, retry.OrderID, retry.Status.String(), retry.Date.UTC(), string(raw))
	if err != nil {
		return 0, err
	}

	_, err = r.pool.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('retries', 'retry_id'), (SELECT MAX(retry_id) FROM retries), true)`)
	if err != nil {
		return 0, fmt.Errorf("failed to advance retry id sequence: %w", err)
	}
	return retry.ID, nil
}

// ReserveIDsThrough advances the identity sequence so freshly inserted rows
// take ids strictly above the given value. Called when the migration window
// opens, so fresh records can never collide with a not-yet-migrated legacy id.
func (r *RetryTableRepositoryImpl) ReserveIDsThrough(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		SELECT setval(pg_get_serial_sequence('retries', 'retry_id'),
			GREATEST((SELECT COALESCE(MAX(retry_id), 1) FROM retries), $1), true)
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reserve retry id range: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (r *RetryTableRepositoryImpl) Get(ctx context.Context, id int64) (*entity.Retry, error) {
	query := `
		SELECT retry_id, order_id, status, date_gmt, rule_raw
		FROM retries
		WHERE retry_id = $1
	`
	retry, err := scanRetryRow(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.ErrRetryNotFound
	}
	return retry, err
}

// Delete removes a record, reporting whether it existed.
func (r *RetryTableRepositoryImpl) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM retries WHERE retry_id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Query returns records matching the filter, descending by creation order
// unless overridden.
func (r *RetryTableRepositoryImpl) Query(ctx context.Context, q repository.RetryQuery) ([]*entity.Retry, error) {
	var conditions []string
	var args []any

	if q.Status != nil {
		args = append(args, q.Status.String())
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if q.OrderID != nil {
		args = append(args, *q.OrderID)
		conditions = append(conditions, fmt.Sprintf("order_id = $%d", len(args)))
	}
	if q.DateBefore != nil {
		args = append(args, q.DateBefore.UTC())
		conditions = append(conditions, fmt.Sprintf("date_gmt < $%d", len(args)))
	}
	if q.DateAfter != nil {
		args = append(args, q.DateAfter.UTC())
		conditions = append(conditions, fmt.Sprintf("date_gmt > $%d", len(args)))
	}

	query := `SELECT retry_id, order_id, status, date_gmt, rule_raw FROM retries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += orderClause(q, "retry_id", "date_gmt")
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
		retry, err := scanRetryRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, retry)
	}
	return results, rows.Err()
}

// IDsForOrder returns retry ids for the order, ascending by creation order.
func (r *RetryTableRepositoryImpl) IDsForOrder(ctx context.Context, orderID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT retry_id FROM retries WHERE order_id = $1 ORDER BY retry_id ASC`, orderID)
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
func (r *RetryTableRepositoryImpl) LastForOrder(ctx context.Context, orderID int64) (*entity.Retry, error) {
	query := `
		SELECT retry_id, order_id, status, date_gmt, rule_raw
		FROM retries
		WHERE order_id = $1
		ORDER BY retry_id DESC
		LIMIT 1
	`
	retry, err := scanRetryRow(r.pool.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return retry, err
}

// CountForOrder returns how many retries exist for the order.
func (r *RetryTableRepositoryImpl) CountForOrder(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM retries WHERE order_id = $1`, orderID).Scan(&count)
	return count, err
}

// scanRetryRow builds a retry entity from a (retry_id, order_id, status,
// date_gmt, rule_raw) row.
func scanRetryRow(row pgx.Row) (*entity.Retry, error) {
	retry := &entity.Retry{}
	var status, raw string
	if err := row.Scan(&retry.ID, &retry.OrderID, &status, &retry.Date, &raw); err != nil {
		return nil, err
	}
	parsed, err := valueobject.NewRetryStatus(status)
	if err != nil {
		return nil, fmt.Errorf("retry %d: %w", retry.ID, err)
	}
	retry.Status = parsed

	ruleRaw := map[string]string{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &ruleRaw); err != nil {
			return nil, fmt.Errorf("retry %d: failed to decode rule data: %w", retry.ID, err)
		}
	}
	retry.Rule = entity.RuleFromRaw(ruleRaw)
	retry.Date = retry.Date.UTC()
	return retry, nil
}

// orderClause renders the ORDER BY for a RetryQuery.
func orderClause(q repository.RetryQuery, idColumn, dateColumn string) string {
	column := idColumn
	if q.OrderBy == repository.RetryOrderByDate {
		column = dateColumn
	}
	direction := "DESC"
	if q.Ascending {
		direction = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", column, direction)
}

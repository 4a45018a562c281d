package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bibleverse-backend/internal/domain"
	"bibleverse-backend/pkg/metrics"
)

// GovernanceSchema creates the governance_logs table and its lookup indexes
const GovernanceSchema = `
	CREATE TABLE IF NOT EXISTS governance_logs (
		id UUID PRIMARY KEY,
		scope STRING NOT NULL,
		ref_id STRING NOT NULL,
		action STRING NOT NULL,
		executed_by STRING NOT NULL,
		target_user_id STRING NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		INDEX governance_logs_ref_idx (scope, ref_id, created_at DESC),
		INDEX governance_logs_target_idx (target_user_id, created_at DESC)
	)
`

// GovernanceRepository handles governance log operations
type GovernanceRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewGovernanceRepository creates a new governance repository. m may be nil.
func NewGovernanceRepository(pool *pgxpool.Pool, m *metrics.Metrics) *GovernanceRepository {
	return &GovernanceRepository{pool: pool, metrics: m}
}

func (r *GovernanceRepository) observe(operation string, start time.Time, err error) {
	r.metrics.ObserveStoreQuery("cockroach", operation, err, time.Since(start))
}

// EnsureSchema applies GovernanceSchema
func (r *GovernanceRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, GovernanceSchema); err != nil {
		return fmt.Errorf("failed to create governance_logs: %w", err)
	}
	return nil
}

// Create inserts a governance log
func (r *GovernanceRepository) Create(ctx context.Context, log *domain.GovernanceLog) (err error) {
	defer func(start time.Time) { r.observe("create_governance_log", start, err) }(time.Now())

	query := `
		INSERT INTO governance_logs (
			id, scope, ref_id, action, executed_by, target_user_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(ctx, query,
		log.ID,
		string(log.Scope),
		log.RefID,
		string(log.Action),
		log.ExecutedBy,
		log.TargetUserID,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create governance log: %w", err)
	}

	return nil
}

// ListByRef returns logs about one room, task or call, newest first
func (r *GovernanceRepository) ListByRef(ctx context.Context, scope domain.GovernanceScope, refID string, limit int) (_ []*domain.GovernanceLog, err error) {
	defer func(start time.Time) { r.observe("list_governance_by_ref", start, err) }(time.Now())

	query := `
		SELECT id, scope, ref_id, action, executed_by, target_user_id, created_at
		FROM governance_logs
		WHERE scope = $1 AND ref_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, string(scope), refID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query governance logs: %w", err)
	}
	return collectLogs(rows)
}

// ListByTargetUser returns logs targeting a user, newest first
func (r *GovernanceRepository) ListByTargetUser(ctx context.Context, userID string, limit int) (_ []*domain.GovernanceLog, err error) {
	defer func(start time.Time) { r.observe("list_governance_by_user", start, err) }(time.Now())

	query := `
		SELECT id, scope, ref_id, action, executed_by, target_user_id, created_at
		FROM governance_logs
		WHERE target_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query governance logs: %w", err)
	}
	return collectLogs(rows)
}

func collectLogs(rows pgx.Rows) ([]*domain.GovernanceLog, error) {
	defer rows.Close()

	logs := make([]*domain.GovernanceLog, 0)
	for rows.Next() {
		var (
			log    domain.GovernanceLog
			scope  string
			action string
		)
		if err := rows.Scan(
			&log.ID,
			&scope,
			&log.RefID,
			&action,
			&log.ExecutedBy,
			&log.TargetUserID,
			&log.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan governance log: %w", err)
		}
		log.Scope = domain.GovernanceScope(scope)
		log.Action = domain.GovernanceAction(action)
		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating governance logs: %w", err)
	}

	return logs, nil
}

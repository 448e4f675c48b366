package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	qb "github.com/riskibarqy/lineup-orchestrator/internal/platform/querybuilder"
)

// OptimizationJobRepository persists the job ledger in Postgres.
type OptimizationJobRepository struct {
	db *sqlx.DB
}

var _ optimization.Repository = (*OptimizationJobRepository)(nil)

func NewOptimizationJobRepository(db *sqlx.DB) *OptimizationJobRepository {
	return &OptimizationJobRepository{db: db}
}

// Upsert writes the job. A row that already reached a terminal status is
// left untouched.
func (r *OptimizationJobRepository) Upsert(ctx context.Context, job optimization.Job) error {
	requestID := strings.TrimSpace(job.RequestID)
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}

	params, err := sonic.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal optimization params: %w", err)
	}

	var result *string
	if rec := resultToRecord(job.Result); rec != nil {
		raw, err := sonic.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal optimization result: %w", err)
		}
		encoded := string(raw)
		result = &encoded
	}

	createdAt := job.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := job.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	model := optimizationJobInsertModel{
		RequestID:       requestID,
		RemoteJobID:     job.RemoteJobID,
		TeamID:          job.TeamID,
		Kind:            string(job.Params.Kind),
		Fingerprint:     job.Fingerprint,
		Params:          string(params),
		Status:          string(job.Status),
		ProgressPercent: job.ProgressPercent,
		Result:          result,
		ErrorMessage:    optionalString(job.Error),
		Cached:          job.Cached,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		CompletedAt:     job.CompletedAt,
	}

	query, args, err := qb.InsertModel(optimizationJobsTable, model, `ON CONFLICT (request_id)
DO UPDATE SET
    remote_job_id = EXCLUDED.remote_job_id,
    status = EXCLUDED.status,
    progress_percent = EXCLUDED.progress_percent,
    result = EXCLUDED.result,
    error_message = EXCLUDED.error_message,
    cached = EXCLUDED.cached,
    updated_at = EXCLUDED.updated_at,
    completed_at = COALESCE(EXCLUDED.completed_at, optimization_jobs.completed_at)
WHERE optimization_jobs.status NOT IN ('COMPLETED', 'FAILED', 'CANCELLED')`)
	if err != nil {
		return fmt.Errorf("build upsert optimization job query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert optimization job request_id=%s status=%s: %w", requestID, job.Status, err)
	}
	return nil
}

func (r *OptimizationJobRepository) Get(ctx context.Context, requestID string) (optimization.Job, bool, error) {
	query, args, err := qb.Select(optimizationJobColumns...).
		From(optimizationJobsTable).
		Where(qb.Eq("request_id", requestID)).
		ToSQL()
	if err != nil {
		return optimization.Job{}, false, fmt.Errorf("build get optimization job query: %w", err)
	}

	var row optimizationJobTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return optimization.Job{}, false, nil
		}
		return optimization.Job{}, false, fmt.Errorf("get optimization job: %w", err)
	}

	job, err := optimizationJobFromRow(row)
	if err != nil {
		return optimization.Job{}, false, err
	}
	return job, true, nil
}

func (r *OptimizationJobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := qb.Delete(optimizationJobsTable).
		Where(
			qb.In("status", []any{
				string(optimization.StatusCompleted),
				string(optimization.StatusFailed),
				string(optimization.StatusCancelled),
			}),
			qb.Lt("updated_at", cutoff.UTC()),
		).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build delete optimization jobs query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete terminal optimization jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read deleted optimization job count: %w", err)
	}
	return int(affected), nil
}

func optimizationJobFromRow(row optimizationJobTableModel) (optimization.Job, error) {
	job := optimization.Job{
		RequestID:       row.RequestID,
		RemoteJobID:     row.RemoteJobID,
		TeamID:          row.TeamID,
		Fingerprint:     row.Fingerprint,
		Status:          optimization.Status(row.Status),
		ProgressPercent: row.ProgressPercent,
		Cached:          row.Cached,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		CompletedAt:     row.CompletedAt,
	}
	if row.ErrorMessage != nil {
		job.Error = *row.ErrorMessage
	}

	if len(row.Params) > 0 {
		if err := sonic.Unmarshal(row.Params, &job.Params); err != nil {
			return optimization.Job{}, fmt.Errorf("decode optimization params request_id=%s: %w", row.RequestID, err)
		}
	}
	if job.Params.Kind == "" {
		job.Params.Kind = optimization.Kind(row.Kind)
	}

	if len(row.Result) > 0 {
		var rec resultRecord
		if err := sonic.Unmarshal(row.Result, &rec); err != nil {
			return optimization.Job{}, fmt.Errorf("decode optimization result request_id=%s: %w", row.RequestID, err)
		}
		job.Result = rec.toDomain()
	}
	return job, nil
}

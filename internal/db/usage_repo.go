package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"profilehub/internal/types"
)

// UsageRepository stores monthly usage counters in the usage_monthly table,
// keyed by (user_id, month). It implements billing.UsageStore.
type UsageRepository struct {
	db DBTX
}

// NewUsageRepository creates a UsageRepository backed by the given
// connection (pool or transaction).
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// GetUsage returns the counters for (userID, month), or nil when the user has
// not been charged that month.
func (r *UsageRepository) GetUsage(ctx context.Context, userID, month string) (*types.UsageRecord, error) {
	rec, err := scanUsage(r.db.QueryRow(ctx,
		`SELECT total_cost::text, total_runs_ai, total_runs_api, updated_at
		 FROM usage_monthly
		 WHERE user_id = $1 AND month = $2`,
		userID, month,
	), userID, month)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError("failed to get usage", err)
	}
	return rec, nil
}

// IncrementUsage adds delta to the counters in a single statement. Concurrent
// increments for the same key serialize on the row lock, so none are lost.
//
// SQL pattern:
//
//	INSERT ... ON CONFLICT (user_id, month) DO UPDATE
//	  SET total_cost = usage_monthly.total_cost + EXCLUDED.total_cost, ...
//	RETURNING ...
func (r *UsageRepository) IncrementUsage(ctx context.Context, userID, month string, delta types.UsageDelta) (*types.UsageRecord, error) {
	rec, err := scanUsage(r.db.QueryRow(ctx,
		`INSERT INTO usage_monthly (user_id, month, total_cost, total_runs_ai, total_runs_api, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, NOW())
		 ON CONFLICT (user_id, month) DO UPDATE
		   SET total_cost     = usage_monthly.total_cost + EXCLUDED.total_cost,
		       total_runs_ai  = usage_monthly.total_runs_ai + EXCLUDED.total_runs_ai,
		       total_runs_api = usage_monthly.total_runs_api + EXCLUDED.total_runs_api,
		       updated_at     = NOW()
		 RETURNING total_cost::text, total_runs_ai, total_runs_api, updated_at`,
		userID,
		month,
		delta.Cost.String(),
		boolToCount(delta.AIRun),
		boolToCount(delta.APIRun),
	), userID, month)
	if err != nil {
		return nil, dbError("failed to increment usage", err)
	}
	return rec, nil
}

// ListMonth returns every usage row for the given month ordered by total cost,
// highest first. Used by the operator CLI.
func (r *UsageRepository) ListMonth(ctx context.Context, month string, limit int) ([]types.UsageRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, total_cost::text, total_runs_ai, total_runs_api, updated_at
		 FROM usage_monthly
		 WHERE month = $1
		 ORDER BY total_cost DESC, user_id ASC
		 LIMIT $2`,
		month, limit,
	)
	if err != nil {
		return nil, dbError("failed to list usage", err)
	}
	defer rows.Close()

	var out []types.UsageRecord
	for rows.Next() {
		var (
			rec  = types.UsageRecord{Month: month}
			cost string
		)
		if err := rows.Scan(&rec.UserID, &cost, &rec.TotalRunsAI, &rec.TotalRunsAPI, &rec.UpdatedAt); err != nil {
			return nil, dbError("failed to scan usage row", err)
		}
		if rec.TotalCost, err = decimal.NewFromString(cost); err != nil {
			return nil, dbError("invalid stored cost", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating usage rows", err)
	}
	return out, nil
}

// scanUsage reads (total_cost::text, total_runs_ai, total_runs_api, updated_at).
func scanUsage(row pgx.Row, userID, month string) (*types.UsageRecord, error) {
	var (
		cost      string
		runsAI    int64
		runsAPI   int64
		updatedAt time.Time
	)
	if err := row.Scan(&cost, &runsAI, &runsAPI, &updatedAt); err != nil {
		return nil, err
	}
	total, err := decimal.NewFromString(cost)
	if err != nil {
		return nil, err
	}
	return &types.UsageRecord{
		UserID:       userID,
		Month:        month,
		TotalCost:    total,
		TotalRunsAI:  runsAI,
		TotalRunsAPI: runsAPI,
		UpdatedAt:    updatedAt.UTC(),
	}, nil
}

func boolToCount(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

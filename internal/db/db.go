// Package db provides PostgreSQL-backed stores for the entitlements service.
// All repositories accept a DBTX so the same code runs against *pgxpool.Pool
// or inside a pgx.Tx.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"profilehub/internal/config"
	"profilehub/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool opens a connection pool tuned by cfg and verifies connectivity.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// dbError wraps a query failure. SQLSTATE classes 22 (data exception) and 23
// (integrity constraint violation) mean the statement's input was rejected,
// so they become validation errors rather than internal ones.
func dbError(message string, err error) *types.AppError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		details := map[string]any{"sqlstate": pgErr.Code}
		switch pgErr.Code[:2] {
		case "22":
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue, message+": value rejected by the store", err, details)
		case "23":
			return types.NewAppErrorWithDetails(types.ErrCodeValidationConstraint, message+": constraint violated", err, details)
		}
	}
	return types.NewAppError(types.ErrCodeInternalDB, message, err)
}

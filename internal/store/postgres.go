package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/estimator/internal/db"
	"github.com/sells-group/estimator/internal/model"
)

// PostgresStore implements Store using pgxpool. Besides the estimate
// document it keeps one estimate_items row per line item for reporting.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
	// Prepare prepares the hot queries on every new connection. The schema
	// must already exist, so leave it off for the connection that migrates.
	Prepare bool `yaml:"prepare" mapstructure:"prepare"`
}

const (
	sqlUpsertEstimate = `INSERT INTO estimates (id, job_name, provider, total, doc, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET job_name = EXCLUDED.job_name, provider = EXCLUDED.provider, total = EXCLUDED.total, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`
	sqlDeleteItems  = `DELETE FROM estimate_items WHERE estimate_id = $1`
	sqlGetEstimate  = `SELECT doc FROM estimates WHERE id = $1`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"upsert_estimate": sqlUpsertEstimate,
	"delete_items":    sqlDeleteItems,
	"get_estimate":    sqlGetEstimate,
}

var itemColumns = []string{
	"estimate_id", "position", "category", "task", "quantity", "unit",
	"unit_price", "subtotal", "needs_review",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	if poolCfg != nil && poolCfg.Prepare {
		pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			for name, sql := range preparedStatements {
				if _, err := conn.Prepare(ctx, name, sql); err != nil {
					return eris.Wrapf(err, "postgres: prepare %s", name)
				}
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS estimates (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_name   TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	total      BIGINT NOT NULL DEFAULT 0,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS estimate_items (
	estimate_id  TEXT NOT NULL REFERENCES estimates(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	category     TEXT NOT NULL,
	task         TEXT NOT NULL,
	quantity     DOUBLE PRECISION NOT NULL,
	unit         TEXT NOT NULL,
	unit_price   BIGINT NOT NULL,
	subtotal     BIGINT NOT NULL,
	needs_review BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (estimate_id, position)
);

CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_estimates_provider ON estimates(provider);
CREATE INDEX IF NOT EXISTS idx_estimate_items_category ON estimate_items(category);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveEstimate(ctx context.Context, est *model.Estimate) error {
	prepareEstimate(est)

	doc, err := json.Marshal(est)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal estimate")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, sqlUpsertEstimate,
		est.ID, est.Job.Name, est.Provider, est.Totals.Total, doc, est.CreatedAt, time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert estimate %s", est.ID)
	}
	if _, err := tx.Exec(ctx, sqlDeleteItems, est.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear items %s", est.ID)
	}

	if _, err := db.CopySlice(ctx, tx, "estimate_items", itemColumns, est.Items, func(i int, it model.LineItem) []any {
		return []any{
			est.ID, i, string(it.Category), it.Task, it.Quantity, it.Unit,
			it.UnitPrice, it.Subtotal, it.NeedsReview,
		}
	}); err != nil {
		return eris.Wrapf(err, "postgres: copy items %s", est.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) GetEstimate(ctx context.Context, id string) (*model.Estimate, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, sqlGetEstimate, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get estimate %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get estimate %s", id)
	}

	var est model.Estimate
	if err := json.Unmarshal(doc, &est); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal estimate")
	}
	return &est, nil
}

func (s *PostgresStore) ListEstimates(ctx context.Context, filter EstimateFilter) ([]model.Estimate, error) {
	query := `SELECT doc FROM estimates WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Provider != "" {
		query += fmt.Sprintf(` AND provider = $%d`, argIdx)
		args = append(args, filter.Provider)
		argIdx++
	}
	if filter.JobName != "" {
		query += fmt.Sprintf(` AND strpos(job_name, $%d) > 0`, argIdx)
		args = append(args, filter.JobName)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, listLimit(filter), filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list estimates")
	}
	defer rows.Close()

	var out []model.Estimate
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan estimate")
		}
		var est model.Estimate
		if err := json.Unmarshal(doc, &est); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal estimate")
		}
		out = append(out, est)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate estimates")
}

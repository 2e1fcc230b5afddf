package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/estimator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS estimates (
	id         TEXT PRIMARY KEY,
	job_name   TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	total      INTEGER NOT NULL DEFAULT 0,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at);
CREATE INDEX IF NOT EXISTS idx_estimates_provider ON estimates(provider);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveEstimate(ctx context.Context, est *model.Estimate) error {
	prepareEstimate(est)

	doc, err := json.Marshal(est)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal estimate")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO estimates (id, job_name, provider, total, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 	job_name = excluded.job_name,
		 	provider = excluded.provider,
		 	total = excluded.total,
		 	doc = excluded.doc,
		 	updated_at = excluded.updated_at`,
		est.ID, est.Job.Name, est.Provider, est.Totals.Total, string(doc), est.CreatedAt, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save estimate %s", est.ID)
}

func (s *SQLiteStore) GetEstimate(ctx context.Context, id string) (*model.Estimate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM estimates WHERE id = ?`, id)
	est, err := scanEstimate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get estimate %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get estimate %s", id)
	}
	return est, nil
}

func (s *SQLiteStore) ListEstimates(ctx context.Context, filter EstimateFilter) ([]model.Estimate, error) {
	query := `SELECT doc FROM estimates WHERE 1=1`
	var args []any

	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if filter.JobName != "" {
		query += ` AND instr(job_name, ?) > 0`
		args = append(args, filter.JobName)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list estimates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Estimate
	for rows.Next() {
		est, err := scanEstimate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list estimates")
		}
		out = append(out, *est)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate estimates")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

// scanEstimate decodes a single doc column. sql.ErrNoRows is returned
// unwrapped so callers can map it to ErrNotFound.
func scanEstimate(row scannable) (*model.Estimate, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		return nil, err
	}
	var est model.Estimate
	if err := json.Unmarshal([]byte(doc), &est); err != nil {
		return nil, eris.Wrap(err, "unmarshal estimate")
	}
	return &est, nil
}
